package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/service"
)

// The handlers depend on these narrow views of the services so they can be
// exercised with small fakes.

type QuizService interface {
	CreateQuiz(ctx context.Context, caller service.Identity, title string, questions []model.Question) (*model.Quiz, error)
	GetQuiz(ctx context.Context, id uuid.UUID, callerID string) (*model.Quiz, error)
	ListQuizzes(ctx context.Context, teacherID string) ([]model.Quiz, error)
}

type SessionService interface {
	CreateSession(ctx context.Context, caller service.Identity, in service.CreateSessionInput) (*model.Session, error)
	StartSession(ctx context.Context, sessionID uuid.UUID, callerID string) (*model.Session, error)
	EndSession(ctx context.Context, sessionID uuid.UUID, callerID string) (*model.Session, error)
	GetSession(ctx context.Context, sessionID uuid.UUID, callerID string) (*model.Session, error)
	GetSessionByCode(ctx context.Context, code string) (*model.PublicSession, error)
	ListTeacherSessions(ctx context.Context, callerID string) ([]model.Session, error)
	DeleteSession(ctx context.Context, sessionID uuid.UUID, callerID string) error
}

type AttemptService interface {
	JoinSession(ctx context.Context, accessCode, studentID string) (*service.AttemptView, error)
	GetAttempt(ctx context.Context, attemptID uuid.UUID, callerID string) (*service.AttemptView, error)
	SaveDraft(ctx context.Context, attemptID uuid.UUID, callerID string, answers model.Answers) (time.Time, error)
	SubmitAttempt(ctx context.Context, attemptID uuid.UUID, callerID string, answers model.Answers) (*service.Submission, error)
	GetSessionAttempts(ctx context.Context, sessionID uuid.UUID, callerID string) ([]model.AttemptWithStudent, error)
}

type PresenceService interface {
	Snapshot(ctx context.Context, sessionID uuid.UUID, callerID string) ([]service.PresenceEntry, error)
	Watch(ctx context.Context, sessionID uuid.UUID, callerID string) (<-chan service.PresenceUpdate, error)
}

type UserService interface {
	SyncProfile(ctx context.Context, caller service.Identity, displayName string) (*model.User, error)
	GetProfile(ctx context.Context, id string) (*model.User, error)
}

type TokenRevoker interface {
	Revoke(ctx context.Context, claims *service.Claims) error
}
