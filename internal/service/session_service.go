package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/accesscode"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/realtime"
	"github.com/stemsi/examroom/internal/repository"
)

// maxCodeAttempts bounds access-code regeneration when a live session already holds the code.
const maxCodeAttempts = 5

// CreateSessionInput describes a new live session.
type CreateSessionInput struct {
	QuizID          uuid.UUID
	Title           string
	Mode            model.SessionMode
	ScheduledStart  *time.Time
	DurationMinutes *int
	// AccessCode is an optional code previewed by the teacher. Generated when empty.
	AccessCode string
}

// SessionService drives the session lifecycle: PENDING -> ACTIVE -> ARCHIVED.
// Only the creating teacher may change a session.
type SessionService struct {
	sessions SessionStore
	quizzes  QuizSource
	events   realtime.Publisher
	log      zerolog.Logger

	now     func() time.Time
	newCode func() string
}

// NewSessionService creates a new SessionService.
func NewSessionService(sessions SessionStore, quizzes QuizSource, events realtime.Publisher, log zerolog.Logger) *SessionService {
	return &SessionService{
		sessions: sessions,
		quizzes:  quizzes,
		events:   events,
		log:      log.With().Str("component", "session_service").Logger(),
		now:      time.Now,
		newCode:  accesscode.Generate,
	}
}

// CreateSession makes a quiz live. Without a future scheduled start the session
// is ACTIVE immediately; otherwise it waits in PENDING.
func (s *SessionService) CreateSession(ctx context.Context, caller Identity, in CreateSessionInput) (*model.Session, error) {
	if !caller.IsTeacher() {
		return nil, ErrTeacherOnly
	}

	quiz, err := s.quizzes.Load(ctx, in.QuizID)
	if err != nil {
		return nil, err
	}
	if quiz.TeacherID != caller.ID {
		return nil, ErrForbidden
	}

	now := s.now()
	sess := &model.Session{
		QuizID:          quiz.ID,
		TeacherID:       caller.ID,
		Title:           strings.TrimSpace(in.Title),
		Mode:            in.Mode,
		ScheduledStart:  in.ScheduledStart,
		DurationMinutes: in.DurationMinutes,
	}
	if sess.Title == "" {
		sess.Title = quiz.Title
	}
	if sess.Mode == "" {
		sess.Mode = model.SessionModePractice
	}
	if in.ScheduledStart != nil && in.ScheduledStart.After(now) {
		sess.Status = model.SessionStatusPending
	} else {
		sess.Status = model.SessionStatusActive
		sess.StartedAt = &now
	}

	if in.AccessCode != "" {
		code := accesscode.Normalize(in.AccessCode)
		if !accesscode.Valid(code) {
			return nil, ErrInvalidAccessCode
		}
		sess.AccessCode = code
		if err := s.sessions.Create(ctx, sess); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return nil, ErrAccessCodeInUse
			}
			return nil, fmt.Errorf("create session: %w", err)
		}
	} else if err := s.createWithFreshCode(ctx, sess); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("quiz_id", sess.QuizID.String()).
		Str("status", string(sess.Status)).
		Str("mode", string(sess.Mode)).
		Msg("Session created")
	return sess, nil
}

func (s *SessionService) createWithFreshCode(ctx context.Context, sess *model.Session) error {
	for i := 0; i < maxCodeAttempts; i++ {
		sess.AccessCode = s.newCode()
		err := s.sessions.Create(ctx, sess)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("create session: %w", err)
		}
		s.log.Debug().Str("code", sess.AccessCode).Msg("Access code collision, regenerating")
	}
	return fmt.Errorf("create session: no free access code after %d attempts", maxCodeAttempts)
}

// StartSession moves a PENDING session to ACTIVE.
func (s *SessionService) StartSession(ctx context.Context, sessionID uuid.UUID, callerID string) (*model.Session, error) {
	return s.transition(ctx, sessionID, callerID, model.SessionStatusPending, model.SessionStatusActive)
}

// EndSession moves an ACTIVE session to ARCHIVED. Open attempts are closed by the deadline worker.
func (s *SessionService) EndSession(ctx context.Context, sessionID uuid.UUID, callerID string) (*model.Session, error) {
	return s.transition(ctx, sessionID, callerID, model.SessionStatusActive, model.SessionStatusArchived)
}

func (s *SessionService) transition(ctx context.Context, sessionID uuid.UUID, callerID string, from, to model.SessionStatus) (*model.Session, error) {
	current, err := s.owned(ctx, sessionID, callerID)
	if err != nil {
		return nil, err
	}
	if current.Status != from || !current.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, current.Status, to)
	}

	updated, err := s.sessions.Transition(ctx, sessionID, from, to, s.now())
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("transition session: %w", err)
		}
		// Lost a race: the row was deleted or moved on since we read it.
		latest, getErr := s.sessions.GetByID(ctx, sessionID)
		if getErr != nil {
			if errors.Is(getErr, repository.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("get session: %w", getErr)
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, latest.Status, to)
	}

	s.publishStatus(ctx, updated)
	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Session transitioned")
	return updated, nil
}

func (s *SessionService) publishStatus(ctx context.Context, sess *model.Session) {
	ev := realtime.Event{
		Type:      realtime.EventSessionStatus,
		SessionID: sess.ID,
		Status:    sess.Status,
		At:        s.now(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to publish status event")
	}
}

// owned loads a session and checks the caller created it.
func (s *SessionService) owned(ctx context.Context, sessionID uuid.UUID, callerID string) (*model.Session, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.TeacherID != callerID {
		return nil, ErrForbidden
	}
	return sess, nil
}

// GetSession returns a session to its creator.
func (s *SessionService) GetSession(ctx context.Context, sessionID uuid.UUID, callerID string) (*model.Session, error) {
	return s.owned(ctx, sessionID, callerID)
}

// GetSessionByCode returns the student-facing view of the session holding code.
func (s *SessionService) GetSessionByCode(ctx context.Context, code string) (*model.PublicSession, error) {
	code = accesscode.Normalize(code)
	if !accesscode.Valid(code) {
		return nil, ErrInvalidAccessCode
	}
	sess, err := s.sessions.FindByAccessCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidAccessCode
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	pub := sess.Public()
	return &pub, nil
}

// ListTeacherSessions returns the caller's sessions, newest first.
func (s *SessionService) ListTeacherSessions(ctx context.Context, callerID string) ([]model.Session, error) {
	sessions, err := s.sessions.ListByTeacher(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes a session and, through the foreign key, its attempts.
func (s *SessionService) DeleteSession(ctx context.Context, sessionID uuid.UUID, callerID string) error {
	if _, err := s.owned(ctx, sessionID, callerID); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete session: %w", err)
	}
	s.log.Info().Str("session_id", sessionID.String()).Msg("Session deleted")
	return nil
}

// AutoStartDue activates PENDING sessions whose scheduled start has passed.
// Returns how many sessions were started.
func (s *SessionService) AutoStartDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.sessions.ListDueForStart(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due sessions: %w", err)
	}

	started := 0
	for _, sess := range due {
		if !sess.Status.CanTransitionTo(model.SessionStatusActive) {
			continue
		}
		updated, err := s.sessions.Transition(ctx, sess.ID, model.SessionStatusPending, model.SessionStatusActive, now)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue // started by hand or deleted meanwhile
			}
			return started, fmt.Errorf("auto-start session %s: %w", sess.ID, err)
		}
		started++
		s.publishStatus(ctx, updated)
		s.log.Info().Str("session_id", sess.ID.String()).Msg("Scheduled session auto-started")
	}
	return started, nil
}
