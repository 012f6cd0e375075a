// Package client is a typed HTTP client for the exam room API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/response"
)

// ErrServiceUnavailable wraps transport failures (DNS, refused connections, timeouts).
var ErrServiceUnavailable = errors.New("exam room service unavailable")

// APIError is a non-2xx reply carrying the envelope's error code.
type APIError struct {
	StatusCode int
	Code       response.ErrCode
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// HasCode reports whether err is an APIError with the given code.
func HasCode(err error, code response.ErrCode) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Client calls the API on behalf of one identity.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a Client. An empty baseURL targets a local server.
func New(baseURL, token string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, token: token, httpClient: httpClient}
}

// Attempt is the student's view of their attempt.
type Attempt struct {
	ID                      uuid.UUID           `json:"id"`
	SessionID               uuid.UUID           `json:"session_id"`
	DraftAnswers            model.Answers       `json:"draft_answers"`
	Submitted               bool                `json:"submitted"`
	SubmittedAt             *time.Time          `json:"submitted_at,omitempty"`
	Score                   *int                `json:"score,omitempty"`
	ScoreVisible            bool                `json:"score_visible"`
	LastSavedAt             time.Time           `json:"last_saved_at"`
	JoinedAt                time.Time           `json:"joined_at"`
	Deadline                *time.Time          `json:"deadline,omitempty"`
	Session                 model.PublicSession `json:"session"`
	Paper                   *model.QuizPaper    `json:"paper,omitempty"`
	AutosaveIntervalSeconds int                 `json:"autosave_interval_seconds"`
}

// Submission is the outcome of a submit. Score is nil while hidden.
type Submission struct {
	AttemptID    uuid.UUID `json:"attempt_id"`
	SubmittedAt  time.Time `json:"submitted_at"`
	Score        *int      `json:"score,omitempty"`
	ScoreVisible bool      `json:"score_visible"`
}

type answersBody struct {
	Answers model.Answers `json:"answers"`
}

// ─── Student ───────────────────────────────────────────────────────

// Join enters a session by access code. Joining twice returns the same attempt.
func (c *Client) Join(ctx context.Context, accessCode string) (*Attempt, error) {
	var out struct {
		Attempt Attempt `json:"attempt"`
	}
	body := model.JoinSessionRequest{AccessCode: strings.TrimSpace(accessCode)}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/student/sessions/join", body, &out); err != nil {
		return nil, err
	}
	return &out.Attempt, nil
}

// SessionByCode returns the public view of a session for the waiting screen.
func (c *Client) SessionByCode(ctx context.Context, accessCode string) (*model.PublicSession, error) {
	var out struct {
		Session model.PublicSession `json:"session"`
	}
	path := "/api/v1/student/sessions/" + url.PathEscape(strings.TrimSpace(accessCode))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

// GetAttempt reloads an attempt with its stored draft.
func (c *Client) GetAttempt(ctx context.Context, attemptID uuid.UUID) (*Attempt, error) {
	var out struct {
		Attempt Attempt `json:"attempt"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/student/attempts/"+attemptID.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out.Attempt, nil
}

// SaveDraft replaces the stored draft and returns when the server accepted it.
func (c *Client) SaveDraft(ctx context.Context, attemptID uuid.UUID, answers model.Answers) (time.Time, error) {
	var out struct {
		SavedAt time.Time `json:"saved_at"`
	}
	path := "/api/v1/student/attempts/" + attemptID.String() + "/draft"
	if err := c.doJSON(ctx, http.MethodPut, path, answersBody{Answers: nonNil(answers)}, &out); err != nil {
		return time.Time{}, err
	}
	return out.SavedAt, nil
}

// Submit finalizes the attempt.
func (c *Client) Submit(ctx context.Context, attemptID uuid.UUID, answers model.Answers) (*Submission, error) {
	var out struct {
		Submission Submission `json:"submission"`
	}
	path := "/api/v1/student/attempts/" + attemptID.String() + "/submit"
	if err := c.doJSON(ctx, http.MethodPost, path, answersBody{Answers: nonNil(answers)}, &out); err != nil {
		return nil, err
	}
	return &out.Submission, nil
}

// ─── Teacher ───────────────────────────────────────────────────────

// CreateQuiz stores a new quiz.
func (c *Client) CreateQuiz(ctx context.Context, req model.CreateQuizRequest) (*model.Quiz, error) {
	var out struct {
		Quiz model.Quiz `json:"quiz"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/teacher/quizzes", req, &out); err != nil {
		return nil, err
	}
	return &out.Quiz, nil
}

// CreateSession makes a quiz live.
func (c *Client) CreateSession(ctx context.Context, req model.CreateSessionRequest) (*model.Session, error) {
	var out struct {
		Session model.Session `json:"session"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/teacher/sessions", req, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

// StartSession moves a PENDING session to ACTIVE.
func (c *Client) StartSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	return c.sessionAction(ctx, sessionID, "start")
}

// EndSession moves an ACTIVE session to ARCHIVED.
func (c *Client) EndSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	return c.sessionAction(ctx, sessionID, "end")
}

func (c *Client) sessionAction(ctx context.Context, sessionID uuid.UUID, action string) (*model.Session, error) {
	var out struct {
		Session model.Session `json:"session"`
	}
	path := "/api/v1/teacher/sessions/" + sessionID.String() + "/" + action
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

// SessionAttempts lists every attempt in a session the caller created.
func (c *Client) SessionAttempts(ctx context.Context, sessionID uuid.UUID) ([]model.AttemptWithStudent, error) {
	var out struct {
		Attempts []model.AttemptWithStudent `json:"attempts"`
	}
	path := "/api/v1/teacher/sessions/" + sessionID.String() + "/attempts"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Attempts, nil
}

// ─── Profile ───────────────────────────────────────────────────────

// SyncProfile mirrors the caller's identity. An empty displayName keeps the token's name.
func (c *Client) SyncProfile(ctx context.Context, displayName string) (*model.User, error) {
	var out struct {
		User model.User `json:"user"`
	}
	var body interface{}
	if strings.TrimSpace(displayName) != "" {
		body = model.SyncProfileRequest{DisplayName: displayName}
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/me/sync", body, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Logout revokes the client's token.
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/me/logout", nil, nil)
}

func nonNil(a model.Answers) model.Answers {
	if a == nil {
		return model.Answers{}
	}
	return a
}

// envelope is the server's response wrapper.
type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, requestBody any, responseBody any) error {
	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Fields = env.Error.Fields
		}
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if responseBody == nil {
		return nil
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if err := json.Unmarshal(env.Data, responseBody); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
