package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/middleware"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/response"
	"github.com/stemsi/examroom/internal/service"
	"github.com/stemsi/examroom/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

var (
	teacherID = service.Identity{ID: "teacher-1", DisplayName: "Ms Lovelace", Role: model.RoleTeacher}
	studentID = service.Identity{ID: "student-1", DisplayName: "Alan", Role: model.RoleStudent}
)

// asCaller stands in for RequireAuth.
func asCaller(id service.Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := &service.Claims{Role: id.Role, Name: id.DisplayName}
		claims.Subject = id.ID
		claims.ID = "jti-" + id.ID
		c.Set(middleware.ContextKeyClaims, claims)
		c.Next()
	}
}

type fakeQuizService struct {
	create func(caller service.Identity, title string, qs []model.Question) (*model.Quiz, error)
	get    func(id uuid.UUID, callerID string) (*model.Quiz, error)
	list   func(teacherID string) ([]model.Quiz, error)
}

func (f *fakeQuizService) CreateQuiz(_ context.Context, caller service.Identity, title string, qs []model.Question) (*model.Quiz, error) {
	return f.create(caller, title, qs)
}
func (f *fakeQuizService) GetQuiz(_ context.Context, id uuid.UUID, callerID string) (*model.Quiz, error) {
	return f.get(id, callerID)
}
func (f *fakeQuizService) ListQuizzes(_ context.Context, teacherID string) ([]model.Quiz, error) {
	return f.list(teacherID)
}

type fakeSessionService struct {
	create    func(caller service.Identity, in service.CreateSessionInput) (*model.Session, error)
	start     func(id uuid.UUID, callerID string) (*model.Session, error)
	end       func(id uuid.UUID, callerID string) (*model.Session, error)
	get       func(id uuid.UUID, callerID string) (*model.Session, error)
	getByCode func(code string) (*model.PublicSession, error)
	list      func(callerID string) ([]model.Session, error)
	del       func(id uuid.UUID, callerID string) error
}

func (f *fakeSessionService) CreateSession(_ context.Context, caller service.Identity, in service.CreateSessionInput) (*model.Session, error) {
	return f.create(caller, in)
}
func (f *fakeSessionService) StartSession(_ context.Context, id uuid.UUID, callerID string) (*model.Session, error) {
	return f.start(id, callerID)
}
func (f *fakeSessionService) EndSession(_ context.Context, id uuid.UUID, callerID string) (*model.Session, error) {
	return f.end(id, callerID)
}
func (f *fakeSessionService) GetSession(_ context.Context, id uuid.UUID, callerID string) (*model.Session, error) {
	return f.get(id, callerID)
}
func (f *fakeSessionService) GetSessionByCode(_ context.Context, code string) (*model.PublicSession, error) {
	return f.getByCode(code)
}
func (f *fakeSessionService) ListTeacherSessions(_ context.Context, callerID string) ([]model.Session, error) {
	return f.list(callerID)
}
func (f *fakeSessionService) DeleteSession(_ context.Context, id uuid.UUID, callerID string) error {
	return f.del(id, callerID)
}

type fakeAttemptService struct {
	join     func(code, studentID string) (*service.AttemptView, error)
	get      func(id uuid.UUID, callerID string) (*service.AttemptView, error)
	save     func(id uuid.UUID, callerID string, answers model.Answers) (time.Time, error)
	submit   func(id uuid.UUID, callerID string, answers model.Answers) (*service.Submission, error)
	listBySe func(sessionID uuid.UUID, callerID string) ([]model.AttemptWithStudent, error)
}

func (f *fakeAttemptService) JoinSession(_ context.Context, code, studentID string) (*service.AttemptView, error) {
	return f.join(code, studentID)
}
func (f *fakeAttemptService) GetAttempt(_ context.Context, id uuid.UUID, callerID string) (*service.AttemptView, error) {
	return f.get(id, callerID)
}
func (f *fakeAttemptService) SaveDraft(_ context.Context, id uuid.UUID, callerID string, answers model.Answers) (time.Time, error) {
	return f.save(id, callerID, answers)
}
func (f *fakeAttemptService) SubmitAttempt(_ context.Context, id uuid.UUID, callerID string, answers model.Answers) (*service.Submission, error) {
	return f.submit(id, callerID, answers)
}
func (f *fakeAttemptService) GetSessionAttempts(_ context.Context, sessionID uuid.UUID, callerID string) ([]model.AttemptWithStudent, error) {
	return f.listBySe(sessionID, callerID)
}

type fakePresenceService struct {
	snapshot func(sessionID uuid.UUID, callerID string) ([]service.PresenceEntry, error)
	watch    func(ctx context.Context, sessionID uuid.UUID, callerID string) (<-chan service.PresenceUpdate, error)
}

func (f *fakePresenceService) Snapshot(_ context.Context, sessionID uuid.UUID, callerID string) ([]service.PresenceEntry, error) {
	return f.snapshot(sessionID, callerID)
}
func (f *fakePresenceService) Watch(ctx context.Context, sessionID uuid.UUID, callerID string) (<-chan service.PresenceUpdate, error) {
	return f.watch(ctx, sessionID, callerID)
}

type fakeUserService struct {
	sync func(caller service.Identity, name string) (*model.User, error)
	get  func(id string) (*model.User, error)
}

func (f *fakeUserService) SyncProfile(_ context.Context, caller service.Identity, name string) (*model.User, error) {
	return f.sync(caller, name)
}
func (f *fakeUserService) GetProfile(_ context.Context, id string) (*model.User, error) {
	return f.get(id)
}

type fakeRevoker struct {
	revoked []string
	err     error
}

func (f *fakeRevoker) Revoke(_ context.Context, claims *service.Claims) error {
	if f.err != nil {
		return f.err
	}
	f.revoked = append(f.revoked, claims.ID)
	return nil
}

// envelope mirrors response.Response with a raw data field.
type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v (%s)", err, w.Body.String())
		}
	}
	return w, env
}

func decodeData(t *testing.T, env envelope, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data: %v (%s)", err, string(env.Data))
	}
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, env envelope, status int, code response.ErrCode) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (%s)", w.Code, status, w.Body.String())
	}
	if env.Error == nil || env.Error.Code != code {
		t.Fatalf("error = %+v, want code %s", env.Error, code)
	}
}

var nopLog = zerolog.Nop()

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func sampleQuiz() *model.Quiz {
	return &model.Quiz{
		ID:        uuid.New(),
		Title:     "Capitals",
		TeacherID: teacherID.ID,
		Questions: []model.Question{
			{Prompt: "France?", Options: []string{"Paris", "Lyon"}, CorrectAnswer: "Paris"},
			{Prompt: "Japan?", Options: []string{"Osaka", "Tokyo"}, CorrectAnswer: "Tokyo"},
		},
	}
}

func sampleView(status model.SessionStatus, mode model.SessionMode) *service.AttemptView {
	now := time.Now().UTC().Truncate(time.Second)
	quiz := sampleQuiz()
	sess := &model.Session{
		ID:         uuid.New(),
		QuizID:     quiz.ID,
		TeacherID:  teacherID.ID,
		Title:      "Period 3",
		AccessCode: "ABC234",
		Status:     status,
		Mode:       mode,
		CreatedAt:  now,
	}
	if status != model.SessionStatusPending {
		sess.StartedAt = timePtr(now)
	}
	return &service.AttemptView{
		Attempt: &model.Attempt{
			ID:           uuid.New(),
			SessionID:    sess.ID,
			StudentID:    studentID.ID,
			DraftAnswers: model.Answers{0: "Paris"},
			LastSavedAt:  now,
			CreatedAt:    now,
		},
		Session: sess,
		Quiz:    quiz,
	}
}
