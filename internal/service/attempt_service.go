package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/accesscode"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/realtime"
	"github.com/stemsi/examroom/internal/repository"
	"github.com/stemsi/examroom/internal/scoring"
)

// UnknownStudentName is shown when a student's profile cannot be resolved.
const UnknownStudentName = "Unknown Student"

// AttemptView bundles an attempt with the session and quiz it belongs to.
type AttemptView struct {
	Attempt *model.Attempt
	Session *model.Session
	Quiz    *model.Quiz
}

// Deadline returns when the attempt stops accepting drafts, if the session is timed.
func (v *AttemptView) Deadline() (time.Time, bool) {
	return v.Session.DeadlineFor(v.Attempt.CreatedAt)
}

// Submission is the outcome of a final submit.
type Submission struct {
	AttemptID   uuid.UUID
	Score       int
	SubmittedAt time.Time
	// ScoreVisible is false in EXAM mode until the session is archived.
	ScoreVisible bool
}

// AttemptService handles joining, autosave, submission and attempt listing.
type AttemptService struct {
	sessions SessionStore
	attempts AttemptStore
	quizzes  QuizSource
	events   realtime.Publisher
	grace    time.Duration
	log      zerolog.Logger

	now func() time.Time
}

// NewAttemptService creates a new AttemptService. grace is how long past the
// deadline a final submit is still accepted.
func NewAttemptService(
	sessions SessionStore,
	attempts AttemptStore,
	quizzes QuizSource,
	events realtime.Publisher,
	grace time.Duration,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		sessions: sessions,
		attempts: attempts,
		quizzes:  quizzes,
		events:   events,
		grace:    grace,
		log:      log.With().Str("component", "attempt_service").Logger(),
		now:      time.Now,
	}
}

// JoinSession finds the session holding accessCode and returns the student's
// attempt for it, creating an empty one on first join. Joining again returns
// the same attempt with its draft intact.
func (s *AttemptService) JoinSession(ctx context.Context, accessCode, studentID string) (*AttemptView, error) {
	code := accesscode.Normalize(accessCode)
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
	if sess.Status == model.SessionStatusArchived {
		return nil, ErrSessionClosed
	}

	quiz, err := s.quizzes.Load(ctx, sess.QuizID)
	if err != nil {
		return nil, err
	}

	existing, err := s.attempts.GetBySessionAndStudent(ctx, sess.ID, studentID)
	if err == nil {
		return &AttemptView{Attempt: existing, Session: sess, Quiz: quiz}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}

	attempt := &model.Attempt{
		SessionID:    sess.ID,
		StudentID:    studentID,
		DraftAnswers: model.Answers{},
		CreatedAt:    s.now(),
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		// Concurrent join from another tab won the insert.
		attempt, err = s.attempts.GetBySessionAndStudent(ctx, sess.ID, studentID)
		if err != nil {
			return nil, fmt.Errorf("concurrent join detected, but fetch failed: %w", err)
		}
		return &AttemptView{Attempt: attempt, Session: sess, Quiz: quiz}, nil
	}

	sess.ParticipantCount++
	s.publish(ctx, realtime.Event{
		Type:      realtime.EventAttemptJoined,
		SessionID: sess.ID,
		AttemptID: attempt.ID.String(),
		StudentID: studentID,
		At:        attempt.CreatedAt,
	})
	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("attempt_id", attempt.ID.String()).
		Str("student_id", studentID).
		Msg("Student joined session")
	return &AttemptView{Attempt: attempt, Session: sess, Quiz: quiz}, nil
}

// GetAttempt returns the caller's own attempt with its session and quiz.
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID uuid.UUID, callerID string) (*AttemptView, error) {
	return s.load(ctx, attemptID, callerID)
}

func (s *AttemptService) load(ctx context.Context, attemptID uuid.UUID, callerID string) (*AttemptView, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != callerID {
		return nil, ErrForbidden
	}
	sess, err := s.sessions.GetByID(ctx, attempt.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	quiz, err := s.quizzes.Load(ctx, sess.QuizID)
	if err != nil {
		return nil, err
	}
	return &AttemptView{Attempt: attempt, Session: sess, Quiz: quiz}, nil
}

// checkWritable enforces the session state for draft and submit writes.
func checkWritable(sess *model.Session) error {
	switch sess.Status {
	case model.SessionStatusPending:
		return ErrSessionNotActive
	case model.SessionStatusArchived:
		return ErrSessionClosed
	}
	return nil
}

func checkAnswers(quiz *model.Quiz, answers model.Answers) error {
	if bad := answers.OutOfRange(quiz.QuestionCount()); len(bad) > 0 {
		return fmt.Errorf("%w: question indexes %v out of range for %d questions", ErrInvalidAnswers, bad, quiz.QuestionCount())
	}
	return nil
}

// SaveDraft replaces the attempt's draft with answers. It is the server side of
// the periodic autosave and returns the time the draft was stored.
func (s *AttemptService) SaveDraft(ctx context.Context, attemptID uuid.UUID, callerID string, answers model.Answers) (time.Time, error) {
	view, err := s.load(ctx, attemptID, callerID)
	if err != nil {
		return time.Time{}, err
	}
	if view.Attempt.Submitted() {
		return time.Time{}, ErrAlreadySubmitted
	}
	if err := checkWritable(view.Session); err != nil {
		return time.Time{}, err
	}

	now := s.now()
	if deadline, ok := view.Deadline(); ok && now.After(deadline) {
		return time.Time{}, ErrAttemptExpired
	}
	if err := checkAnswers(view.Quiz, answers); err != nil {
		return time.Time{}, err
	}

	saved, err := s.attempts.SaveDraft(ctx, attemptID, answers, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("save draft: %w", err)
	}
	if !saved {
		return time.Time{}, ErrAlreadySubmitted
	}

	s.publish(ctx, realtime.Event{
		Type:      realtime.EventAttemptHeartbeat,
		SessionID: view.Session.ID,
		AttemptID: attemptID.String(),
		StudentID: callerID,
		At:        now,
	})
	return now, nil
}

// SubmitAttempt scores answers and finalizes the attempt. The check and the
// write are one conditional update, so of two racing submits exactly one wins
// and the other gets ErrAlreadySubmitted.
func (s *AttemptService) SubmitAttempt(ctx context.Context, attemptID uuid.UUID, callerID string, answers model.Answers) (*Submission, error) {
	view, err := s.load(ctx, attemptID, callerID)
	if err != nil {
		return nil, err
	}
	if view.Attempt.Submitted() {
		return nil, ErrAlreadySubmitted
	}
	if err := checkWritable(view.Session); err != nil {
		return nil, err
	}

	now := s.now()
	if deadline, ok := view.Deadline(); ok && now.After(deadline.Add(s.grace)) {
		return nil, ErrAttemptExpired
	}
	if err := checkAnswers(view.Quiz, answers); err != nil {
		return nil, err
	}

	result := scoring.Tally(view.Quiz, answers)
	ok, err := s.attempts.Submit(ctx, attemptID, answers, result.Score, now)
	if err != nil {
		return nil, fmt.Errorf("submit attempt: %w", err)
	}
	if !ok {
		return nil, ErrAlreadySubmitted
	}

	s.publish(ctx, realtime.Event{
		Type:      realtime.EventAttemptSubmitted,
		SessionID: view.Session.ID,
		AttemptID: attemptID.String(),
		StudentID: callerID,
		At:        now,
	})
	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("correct", result.Correct).
		Int("total", result.Total).
		Int("score", result.Score).
		Msg("Attempt submitted")

	return &Submission{
		AttemptID:    attemptID,
		Score:        result.Score,
		SubmittedAt:  now,
		ScoreVisible: view.Session.ScoreVisible(),
	}, nil
}

// GetSessionAttempts lists every attempt of a session for its creator.
// Students without a resolvable profile are shown as UnknownStudentName.
func (s *AttemptService) GetSessionAttempts(ctx context.Context, sessionID uuid.UUID, callerID string) ([]model.AttemptWithStudent, error) {
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

	attempts, err := s.attempts.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	for i := range attempts {
		if attempts[i].StudentName == "" {
			attempts[i].StudentName = UnknownStudentName
		}
	}
	return attempts, nil
}

// FinalizeExpired submits, on the students' behalf, open attempts whose time
// ran out or whose session was archived. The stored draft is scored.
// Returns the number of attempts finalized.
func (s *AttemptService) FinalizeExpired(ctx context.Context, batchSize int) (int, error) {
	now := s.now()
	expired, err := s.attempts.ListExpired(ctx, now, s.grace, batchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired attempts: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	quizzes := make(map[uuid.UUID]*model.Quiz)
	batch := make([]model.AttemptFinalization, 0, len(expired))
	byID := make(map[uuid.UUID]model.AttemptDeadline, len(expired))
	for _, d := range expired {
		quiz, ok := quizzes[d.QuizID]
		if !ok {
			quiz, err = s.quizzes.Load(ctx, d.QuizID)
			if err != nil {
				s.log.Error().Err(err).Str("quiz_id", d.QuizID.String()).Msg("Skipping attempts of unloadable quiz")
				quizzes[d.QuizID] = nil
				continue
			}
			quizzes[d.QuizID] = quiz
		}
		if quiz == nil {
			continue
		}
		batch = append(batch, model.AttemptFinalization{
			AttemptID:   d.AttemptID,
			Answers:     d.Draft,
			Score:       scoring.Score(quiz, d.Draft),
			SubmittedAt: now,
		})
		byID[d.AttemptID] = d
	}

	finalized, err := s.attempts.Finalize(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("finalize attempts: %w", err)
	}

	for _, id := range finalized {
		d := byID[id]
		s.publish(ctx, realtime.Event{
			Type:      realtime.EventAttemptSubmitted,
			SessionID: d.SessionID,
			AttemptID: id.String(),
			StudentID: d.StudentID,
			Auto:      true,
			At:        now,
		})
	}
	return len(finalized), nil
}

func (s *AttemptService) publish(ctx context.Context, ev realtime.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("session_id", ev.SessionID.String()).
			Str("type", string(ev.Type)).
			Msg("Failed to publish event")
	}
}
