package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Answers maps a question index to the selected option text.
// JSON encodes the keys as strings ("0", "1", ...).
type Answers map[int]string

// OutOfRange returns the sorted indexes that do not address a question in a
// quiz of questionCount questions.
func (a Answers) OutOfRange(questionCount int) []int {
	var bad []int
	for idx := range a {
		if idx < 0 || idx >= questionCount {
			bad = append(bad, idx)
		}
	}
	sort.Ints(bad)
	return bad
}

// Clone returns a copy that is safe to hand to another goroutine.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Attempt is one student's participation in one session.
type Attempt struct {
	ID           uuid.UUID  `json:"id"`
	SessionID    uuid.UUID  `json:"session_id"`
	StudentID    string     `json:"student_id"`
	DraftAnswers Answers    `json:"draft_answers"`
	FinalScore   *int       `json:"final_score,omitempty"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	LastSavedAt  time.Time  `json:"last_saved_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Submitted reports whether the attempt has been finalized.
func (a *Attempt) Submitted() bool {
	return a.SubmittedAt != nil
}

// AttemptWithStudent is an attempt decorated with the student's display name.
type AttemptWithStudent struct {
	Attempt
	StudentName string `json:"student_name"`
}

// AttemptDeadline identifies an open attempt whose time has run out.
type AttemptDeadline struct {
	AttemptID uuid.UUID
	SessionID uuid.UUID
	QuizID    uuid.UUID
	StudentID string
	Draft     Answers
}

// SaveDraftRequest is the autosave payload. The whole draft replaces the stored one.
type SaveDraftRequest struct {
	Answers Answers `json:"answers" binding:"required"`
}

// SubmitAttemptRequest is the final submission payload.
type SubmitAttemptRequest struct {
	Answers Answers `json:"answers" binding:"required"`
}

// AttemptFinalization is a server-side submit of an attempt whose time ran out.
// Answers is the draft that Score was computed from and is stored with it.
type AttemptFinalization struct {
	AttemptID   uuid.UUID
	Answers     Answers
	Score       int
	SubmittedAt time.Time
}
