package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/examroom/internal/autosave"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/response"
)

var _ autosave.Saver = (*Client)(nil)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func writeData(t *testing.T, w http.ResponseWriter, status int, data interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response.Response{Data: data})
}

func writeError(w http.ResponseWriter, status int, code response.ErrCode) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response.Response{
		Error: &response.ErrorBody{Code: code, Message: response.GetMessage(code)},
	})
}

func TestDoJSON_ServiceUnavailable(t *testing.T) {
	c := New("http://example.test", "tok", &http.Client{
		Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("dial error")
		}),
	})

	_, err := c.GetAttempt(context.Background(), uuid.New())
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("err = %v, want ErrServiceUnavailable", err)
	}
}

func TestDoJSON_APIErrorCarriesCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusConflict, response.ErrAlreadySubmitted)
	}))
	defer server.Close()

	c := New(server.URL, "tok", server.Client())
	_, err := c.SaveDraft(context.Background(), uuid.New(), model.Answers{0: "A"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %T %v, want *APIError", err, err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != response.ErrAlreadySubmitted {
		t.Fatalf("apiErr = %+v", apiErr)
	}
	if !HasCode(err, response.ErrAlreadySubmitted) || HasCode(err, response.ErrSessionClosed) {
		t.Fatal("HasCode mismatch")
	}
}

func TestDoJSON_NonEnvelopeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	c := New(server.URL, "", server.Client())
	err := c.Logout(context.Background())

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway || apiErr.Message == "" {
		t.Fatalf("err = %v", err)
	}
}

func TestJoin(t *testing.T) {
	attemptID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/student/sessions/join" {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer student-token" {
			t.Fatalf("authorization = %q", r.Header.Get("Authorization"))
		}
		var body model.JoinSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.AccessCode != "ABC234" {
			t.Fatalf("access code = %q", body.AccessCode)
		}
		writeData(t, w, http.StatusOK, map[string]interface{}{
			"attempt": map[string]interface{}{
				"id":                        attemptID,
				"draft_answers":             map[string]string{"1": "Tokyo"},
				"autosave_interval_seconds": 30,
				"session":                   map[string]interface{}{"status": "ACTIVE", "mode": "PRACTICE"},
				"paper": map[string]interface{}{
					"title":     "Capitals",
					"questions": []map[string]interface{}{{"index": 0, "prompt": "France?", "options": []string{"Paris", "Lyon"}}},
				},
			},
		})
	}))
	defer server.Close()

	c := New(server.URL+"/", "student-token", server.Client())
	a, err := c.Join(context.Background(), "  ABC234 ")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if a.ID != attemptID || a.DraftAnswers[1] != "Tokyo" || a.AutosaveIntervalSeconds != 30 {
		t.Fatalf("attempt = %+v", a)
	}
	if a.Session.Status != model.SessionStatusActive || a.Paper == nil || len(a.Paper.Questions) != 1 {
		t.Fatalf("attempt session/paper = %+v %+v", a.Session, a.Paper)
	}
}

func TestSaveDraftAndSubmit(t *testing.T) {
	attemptID := uuid.New()
	savedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	score := 50

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body struct {
			Answers map[string]string `json:"answers"`
		}
		if err := json.Unmarshal(raw, &body); err != nil || body.Answers == nil {
			t.Fatalf("body %s: answers must be an object", raw)
		}

		switch r.Method + " " + r.URL.Path {
		case "PUT /api/v1/student/attempts/" + attemptID.String() + "/draft":
			writeData(t, w, http.StatusOK, map[string]interface{}{"saved_at": savedAt})
		case "POST /api/v1/student/attempts/" + attemptID.String() + "/submit":
			writeData(t, w, http.StatusOK, map[string]interface{}{
				"submission": map[string]interface{}{"attempt_id": attemptID, "score": score, "score_visible": true},
			})
		default:
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	c := New(server.URL, "tok", server.Client())

	got, err := c.SaveDraft(context.Background(), attemptID, nil)
	if err != nil || !got.Equal(savedAt) {
		t.Fatalf("SaveDraft = %v, %v", got, err)
	}

	sub, err := c.Submit(context.Background(), attemptID, model.Answers{0: "Paris"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.Score == nil || *sub.Score != 50 || !sub.ScoreVisible {
		t.Fatalf("submission = %+v", sub)
	}
}

func TestSessionActions(t *testing.T) {
	sessionID := uuid.New()
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/api/v1/teacher/sessions/" + sessionID.String() + "/start":
			writeData(t, w, http.StatusOK, map[string]interface{}{"session": map[string]interface{}{"id": sessionID, "status": "ACTIVE"}})
		case "/api/v1/teacher/sessions/" + sessionID.String() + "/end":
			writeError(w, http.StatusConflict, response.ErrInvalidStateTransition)
		case "/api/v1/teacher/sessions/" + sessionID.String() + "/attempts":
			writeData(t, w, http.StatusOK, map[string]interface{}{"attempts": []map[string]interface{}{{"student_id": "s1", "student_name": "Ada"}}})
		}
	}))
	defer server.Close()

	c := New(server.URL, "teacher-token", server.Client())
	ctx := context.Background()

	sess, err := c.StartSession(ctx, sessionID)
	if err != nil || sess.Status != model.SessionStatusActive {
		t.Fatalf("StartSession = %+v, %v", sess, err)
	}
	if _, err := c.EndSession(ctx, sessionID); !HasCode(err, response.ErrInvalidStateTransition) {
		t.Fatalf("EndSession err = %v", err)
	}
	attempts, err := c.SessionAttempts(ctx, sessionID)
	if err != nil || len(attempts) != 1 || attempts[0].StudentName != "Ada" {
		t.Fatalf("SessionAttempts = %+v, %v", attempts, err)
	}
	if len(paths) != 3 || paths[0] != "POST /api/v1/teacher/sessions/"+sessionID.String()+"/start" {
		t.Fatalf("paths = %v", paths)
	}
}

func TestSyncProfile_OmitsEmptyBody(t *testing.T) {
	var lengths []int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lengths = append(lengths, r.ContentLength)
		writeData(t, w, http.StatusOK, map[string]interface{}{"user": map[string]interface{}{"id": "u1", "display_name": "Ada"}})
	}))
	defer server.Close()

	c := New(server.URL, "tok", server.Client())
	if _, err := c.SyncProfile(context.Background(), ""); err != nil {
		t.Fatalf("SyncProfile: %v", err)
	}
	u, err := c.SyncProfile(context.Background(), "Ada")
	if err != nil || u.DisplayName != "Ada" {
		t.Fatalf("SyncProfile = %+v, %v", u, err)
	}
	if lengths[0] != 0 || lengths[1] <= 0 {
		t.Fatalf("content lengths = %v", lengths)
	}
}
