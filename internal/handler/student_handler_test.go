package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/response"
	"github.com/stemsi/examroom/internal/service"
)

func studentRouter(sessions *fakeSessionService, attempts *fakeAttemptService) *gin.Engine {
	h := NewStudentHandler(sessions, attempts, 30*time.Second, nopLog)
	r := gin.New()
	g := r.Group("/api/v1/student", asCaller(studentID))
	g.POST("/sessions/join", h.JoinSession)
	g.GET("/sessions/:code", h.GetSessionByCode)
	g.GET("/attempts/:id", h.GetAttempt)
	g.PUT("/attempts/:id/draft", h.SaveDraft)
	g.POST("/attempts/:id/submit", h.SubmitAttempt)
	return r
}

func TestJoinSession_ReturnsAttemptWithPaper(t *testing.T) {
	view := sampleView(model.SessionStatusActive, model.SessionModePractice)
	var gotCode, gotStudent string
	attempts := &fakeAttemptService{join: func(code, sid string) (*service.AttemptView, error) {
		gotCode, gotStudent = code, sid
		return view, nil
	}}
	r := studentRouter(&fakeSessionService{}, attempts)

	w, env := do(t, r, http.MethodPost, "/api/v1/student/sessions/join", `{"access_code":"abc234"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if gotCode != "abc234" || gotStudent != studentID.ID {
		t.Fatalf("service got code=%q student=%q", gotCode, gotStudent)
	}

	var data struct {
		Attempt attemptResponse `json:"attempt"`
	}
	decodeData(t, env, &data)
	if data.Attempt.ID != view.Attempt.ID {
		t.Fatalf("attempt id = %s", data.Attempt.ID)
	}
	if data.Attempt.Paper == nil || len(data.Attempt.Paper.Questions) != 2 {
		t.Fatalf("paper = %+v", data.Attempt.Paper)
	}
	if data.Attempt.DraftAnswers[0] != "Paris" {
		t.Fatalf("draft = %v", data.Attempt.DraftAnswers)
	}
	if data.Attempt.AutosaveIntervalSeconds != 30 {
		t.Fatalf("autosave interval = %d", data.Attempt.AutosaveIntervalSeconds)
	}
	if strings.Contains(w.Body.String(), "correct_answer") {
		t.Fatal("response leaks the answer key")
	}
}

func TestJoinSession_PendingHidesPaper(t *testing.T) {
	view := sampleView(model.SessionStatusPending, model.SessionModePractice)
	attempts := &fakeAttemptService{join: func(string, string) (*service.AttemptView, error) { return view, nil }}
	r := studentRouter(&fakeSessionService{}, attempts)

	w, env := do(t, r, http.MethodPost, "/api/v1/student/sessions/join", `{"access_code":"ABC234"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var data struct {
		Attempt attemptResponse `json:"attempt"`
	}
	decodeData(t, env, &data)
	if data.Attempt.Paper != nil {
		t.Fatal("paper sent before the session started")
	}
	if data.Attempt.Session.Status != model.SessionStatusPending {
		t.Fatalf("session status = %s", data.Attempt.Session.Status)
	}
}

func TestJoinSession_Errors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		code   response.ErrCode
	}{
		{"bad code format", `{"access_code":"AB"}`, nil, http.StatusBadRequest, response.ErrValidation},
		{"missing body", `{}`, nil, http.StatusBadRequest, response.ErrValidation},
		{"unknown code", `{"access_code":"ZZZ999"}`, service.ErrInvalidAccessCode, http.StatusNotFound, response.ErrInvalidAccessCode},
		{"archived", `{"access_code":"ZZZ999"}`, service.ErrSessionClosed, http.StatusConflict, response.ErrSessionClosed},
		{"store down", `{"access_code":"ZZZ999"}`, errors.New("db down"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			attempts := &fakeAttemptService{join: func(string, string) (*service.AttemptView, error) {
				if tc.err == nil {
					t.Fatal("service called for an invalid request")
				}
				return nil, tc.err
			}}
			r := studentRouter(&fakeSessionService{}, attempts)
			w, env := do(t, r, http.MethodPost, "/api/v1/student/sessions/join", tc.body)
			wantError(t, w, env, tc.status, tc.code)
		})
	}
}

func TestGetSessionByCode(t *testing.T) {
	pub := &model.PublicSession{ID: uuid.New(), Title: "Period 3", Status: model.SessionStatusPending, Mode: model.SessionModeExam}
	sessions := &fakeSessionService{getByCode: func(code string) (*model.PublicSession, error) {
		if code != "abc234" {
			return nil, service.ErrInvalidAccessCode
		}
		return pub, nil
	}}
	r := studentRouter(sessions, &fakeAttemptService{})

	w, env := do(t, r, http.MethodGet, "/api/v1/student/sessions/abc234", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var data struct {
		Session model.PublicSession `json:"session"`
	}
	decodeData(t, env, &data)
	if data.Session.ID != pub.ID {
		t.Fatalf("session = %+v", data.Session)
	}

	w, env = do(t, r, http.MethodGet, "/api/v1/student/sessions/nope99", "")
	wantError(t, w, env, http.StatusNotFound, response.ErrInvalidAccessCode)
}

func TestGetAttempt_WithholdsScoreInExamMode(t *testing.T) {
	view := sampleView(model.SessionStatusActive, model.SessionModeExam)
	view.Attempt.FinalScore = intPtr(50)
	view.Attempt.SubmittedAt = timePtr(time.Now())
	attempts := &fakeAttemptService{get: func(id uuid.UUID, callerID string) (*service.AttemptView, error) {
		if id != view.Attempt.ID || callerID != studentID.ID {
			return nil, service.ErrForbidden
		}
		return view, nil
	}}
	r := studentRouter(&fakeSessionService{}, attempts)

	path := "/api/v1/student/attempts/" + view.Attempt.ID.String()
	w, env := do(t, r, http.MethodGet, path, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var data struct {
		Attempt attemptResponse `json:"attempt"`
	}
	decodeData(t, env, &data)
	if data.Attempt.Score != nil || data.Attempt.ScoreVisible {
		t.Fatalf("score leaked in exam mode: %+v", data.Attempt)
	}
	if !data.Attempt.Submitted {
		t.Fatal("submitted flag missing")
	}

	// Once archived the score is revealed.
	view.Session.Status = model.SessionStatusArchived
	_, env = do(t, r, http.MethodGet, path, "")
	decodeData(t, env, &data)
	if data.Attempt.Score == nil || *data.Attempt.Score != 50 {
		t.Fatalf("score after archive = %v", data.Attempt.Score)
	}
}

func TestGetAttempt_InvalidID(t *testing.T) {
	r := studentRouter(&fakeSessionService{}, &fakeAttemptService{})
	w, env := do(t, r, http.MethodGet, "/api/v1/student/attempts/not-a-uuid", "")
	wantError(t, w, env, http.StatusBadRequest, response.ErrInvalidID)
}

func TestGetAttempt_ReportsDeadline(t *testing.T) {
	view := sampleView(model.SessionStatusActive, model.SessionModePractice)
	view.Session.DurationMinutes = intPtr(20)
	attempts := &fakeAttemptService{get: func(uuid.UUID, string) (*service.AttemptView, error) { return view, nil }}
	r := studentRouter(&fakeSessionService{}, attempts)

	_, env := do(t, r, http.MethodGet, "/api/v1/student/attempts/"+view.Attempt.ID.String(), "")
	var data struct {
		Attempt attemptResponse `json:"attempt"`
	}
	decodeData(t, env, &data)
	want := view.Attempt.CreatedAt.Add(20 * time.Minute)
	if data.Attempt.Deadline == nil || !data.Attempt.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", data.Attempt.Deadline, want)
	}
}

func TestSaveDraft(t *testing.T) {
	id := uuid.New()
	savedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var got model.Answers
	attempts := &fakeAttemptService{save: func(gotID uuid.UUID, callerID string, answers model.Answers) (time.Time, error) {
		if gotID != id || callerID != studentID.ID {
			t.Fatalf("save called with %s %s", gotID, callerID)
		}
		got = answers
		return savedAt, nil
	}}
	r := studentRouter(&fakeSessionService{}, attempts)

	w, env := do(t, r, http.MethodPut, "/api/v1/student/attempts/"+id.String()+"/draft", `{"answers":{"0":"Paris","1":"Osaka"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if got[0] != "Paris" || got[1] != "Osaka" {
		t.Fatalf("answers = %v", got)
	}
	var data struct {
		SavedAt time.Time `json:"saved_at"`
	}
	decodeData(t, env, &data)
	if !data.SavedAt.Equal(savedAt) {
		t.Fatalf("saved_at = %v", data.SavedAt)
	}
}

func TestSaveDraft_ServiceErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{service.ErrAlreadySubmitted, http.StatusConflict, response.ErrAlreadySubmitted},
		{service.ErrSessionClosed, http.StatusConflict, response.ErrSessionClosed},
		{service.ErrSessionNotActive, http.StatusConflict, response.ErrSessionNotActive},
		{service.ErrAttemptExpired, http.StatusConflict, response.ErrAttemptExpired},
		{fmt.Errorf("%w: index 7", service.ErrInvalidAnswers), http.StatusUnprocessableEntity, response.ErrInvalidAnswers},
		{service.ErrForbidden, http.StatusForbidden, response.ErrForbidden},
		{service.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			attempts := &fakeAttemptService{save: func(uuid.UUID, string, model.Answers) (time.Time, error) {
				return time.Time{}, tc.err
			}}
			r := studentRouter(&fakeSessionService{}, attempts)
			w, env := do(t, r, http.MethodPut, "/api/v1/student/attempts/"+uuid.NewString()+"/draft", `{"answers":{}}`)
			wantError(t, w, env, tc.status, tc.code)
		})
	}
}

func TestSaveDraft_RequiresAnswers(t *testing.T) {
	r := studentRouter(&fakeSessionService{}, &fakeAttemptService{})
	w, env := do(t, r, http.MethodPut, "/api/v1/student/attempts/"+uuid.NewString()+"/draft", `{}`)
	wantError(t, w, env, http.StatusBadRequest, response.ErrValidation)
}

func TestSubmitAttempt_ScoreVisibility(t *testing.T) {
	for _, visible := range []bool{true, false} {
		t.Run(fmt.Sprintf("visible=%v", visible), func(t *testing.T) {
			id := uuid.New()
			attempts := &fakeAttemptService{submit: func(uuid.UUID, string, model.Answers) (*service.Submission, error) {
				return &service.Submission{AttemptID: id, Score: 50, SubmittedAt: time.Now(), ScoreVisible: visible}, nil
			}}
			r := studentRouter(&fakeSessionService{}, attempts)

			w, env := do(t, r, http.MethodPost, "/api/v1/student/attempts/"+id.String()+"/submit", `{"answers":{"0":"Paris"}}`)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var data struct {
				Submission submissionResponse `json:"submission"`
			}
			decodeData(t, env, &data)
			if visible && (data.Submission.Score == nil || *data.Submission.Score != 50) {
				t.Fatalf("score = %v, want 50", data.Submission.Score)
			}
			if !visible && data.Submission.Score != nil {
				t.Fatalf("score leaked: %v", *data.Submission.Score)
			}
		})
	}
}

func TestSubmitAttempt_AlreadySubmitted(t *testing.T) {
	attempts := &fakeAttemptService{submit: func(uuid.UUID, string, model.Answers) (*service.Submission, error) {
		return nil, service.ErrAlreadySubmitted
	}}
	r := studentRouter(&fakeSessionService{}, attempts)
	w, env := do(t, r, http.MethodPost, "/api/v1/student/attempts/"+uuid.NewString()+"/submit", `{"answers":{}}`)
	wantError(t, w, env, http.StatusConflict, response.ErrAlreadySubmitted)
}
