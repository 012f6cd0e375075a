package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/examroom/internal/model"
)

// The services depend on these narrow interfaces rather than the concrete
// pgx repositories so they can be exercised against in-memory stores.

// QuizStore persists quizzes.
type QuizStore interface {
	Create(ctx context.Context, q *model.Quiz) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]model.Quiz, error)
}

// QuizSource loads a quiz with its answer key, possibly from cache.
type QuizSource interface {
	Load(ctx context.Context, id uuid.UUID) (*model.Quiz, error)
}

// SessionStore persists live sessions. Transition must be a single
// conditional write that only succeeds while the row is still in from.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	FindByAccessCode(ctx context.Context, code string) (*model.Session, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]model.Session, error)
	Transition(ctx context.Context, id uuid.UUID, from, to model.SessionStatus, at time.Time) (*model.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListDueForStart(ctx context.Context, now time.Time) ([]model.Session, error)
}

// AttemptStore persists attempts. SaveDraft and Submit report false when the
// attempt has already been submitted.
type AttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetBySessionAndStudent(ctx context.Context, sessionID uuid.UUID, studentID string) (*model.Attempt, error)
	Create(ctx context.Context, a *model.Attempt) error
	SaveDraft(ctx context.Context, id uuid.UUID, answers model.Answers, at time.Time) (bool, error)
	Submit(ctx context.Context, id uuid.UUID, answers model.Answers, score int, at time.Time) (bool, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.AttemptWithStudent, error)
	ListExpired(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]model.AttemptDeadline, error)
	Finalize(ctx context.Context, batch []model.AttemptFinalization) ([]uuid.UUID, error)
}

// UserStore persists mirrored identity profiles.
type UserStore interface {
	Upsert(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
}
