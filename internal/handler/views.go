package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/service"
)

// attemptResponse is what a student sees of their own attempt.
type attemptResponse struct {
	ID           uuid.UUID           `json:"id"`
	SessionID    uuid.UUID           `json:"session_id"`
	DraftAnswers model.Answers       `json:"draft_answers"`
	Submitted    bool                `json:"submitted"`
	SubmittedAt  *time.Time          `json:"submitted_at,omitempty"`
	Score        *int                `json:"score,omitempty"`
	ScoreVisible bool                `json:"score_visible"`
	LastSavedAt  time.Time           `json:"last_saved_at"`
	JoinedAt     time.Time           `json:"joined_at"`
	Deadline     *time.Time          `json:"deadline,omitempty"`
	Session      model.PublicSession `json:"session"`
	// Paper is withheld until the session is ACTIVE.
	Paper *model.QuizPaper `json:"paper,omitempty"`
	// AutosaveIntervalSeconds tells the client how often to push its draft.
	AutosaveIntervalSeconds int `json:"autosave_interval_seconds"`
}

func newAttemptResponse(v *service.AttemptView, autosave time.Duration) attemptResponse {
	a := v.Attempt
	out := attemptResponse{
		ID:                      a.ID,
		SessionID:               a.SessionID,
		DraftAnswers:            a.DraftAnswers,
		Submitted:               a.Submitted(),
		SubmittedAt:             a.SubmittedAt,
		ScoreVisible:            v.Session.ScoreVisible(),
		LastSavedAt:             a.LastSavedAt,
		JoinedAt:                a.CreatedAt,
		Session:                 v.Session.Public(),
		AutosaveIntervalSeconds: int(autosave / time.Second),
	}
	if out.DraftAnswers == nil {
		out.DraftAnswers = model.Answers{}
	}
	if out.ScoreVisible {
		out.Score = a.FinalScore
	}
	if deadline, ok := v.Deadline(); ok {
		out.Deadline = &deadline
	}
	if v.Session.Status != model.SessionStatusPending && v.Quiz != nil {
		paper := v.Quiz.Paper()
		out.Paper = &paper
	}
	return out
}

type submissionResponse struct {
	AttemptID    uuid.UUID `json:"attempt_id"`
	SubmittedAt  time.Time `json:"submitted_at"`
	Score        *int      `json:"score,omitempty"`
	ScoreVisible bool      `json:"score_visible"`
}

func newSubmissionResponse(s *service.Submission) submissionResponse {
	out := submissionResponse{
		AttemptID:    s.AttemptID,
		SubmittedAt:  s.SubmittedAt,
		ScoreVisible: s.ScoreVisible,
	}
	if s.ScoreVisible {
		score := s.Score
		out.Score = &score
	}
	return out
}
