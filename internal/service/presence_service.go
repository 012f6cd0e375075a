package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/realtime"
	"github.com/stemsi/examroom/internal/repository"
)

// PresenceState is a UI hint, not an online/offline signal.
type PresenceState string

const (
	// PresenceActive marks a student who joined while the view was open.
	PresenceActive PresenceState = "active"
	// PresenceInactive marks a student already present when the view loaded.
	PresenceInactive PresenceState = "inactive"
)

// PresenceEntry is one joined student on the teacher's monitor.
type PresenceEntry struct {
	AttemptID   string        `json:"attempt_id"`
	StudentID   string        `json:"student_id"`
	DisplayName string        `json:"display_name"`
	State       PresenceState `json:"state"`
	JoinedAt    time.Time     `json:"joined_at"`
	LastSavedAt *time.Time    `json:"last_saved_at,omitempty"`
	Submitted   bool          `json:"submitted"`
}

// PresenceUpdate is a live change on a watched session. Entry is set for joins.
type PresenceUpdate struct {
	Type      realtime.EventType  `json:"type"`
	Entry     *PresenceEntry      `json:"entry,omitempty"`
	AttemptID string              `json:"attempt_id,omitempty"`
	StudentID string              `json:"student_id,omitempty"`
	Status    model.SessionStatus `json:"status,omitempty"`
	Auto      bool                `json:"auto,omitempty"`
	At        time.Time           `json:"at"`
}

// PresenceService derives who has joined a session from stored attempts and
// the session's realtime events. It never writes.
type PresenceService struct {
	sessions SessionStore
	attempts AttemptStore
	users    UserStore
	events   realtime.Subscriber
	log      zerolog.Logger
}

// NewPresenceService creates a new PresenceService.
func NewPresenceService(sessions SessionStore, attempts AttemptStore, users UserStore, events realtime.Subscriber, log zerolog.Logger) *PresenceService {
	return &PresenceService{
		sessions: sessions,
		attempts: attempts,
		users:    users,
		events:   events,
		log:      log.With().Str("component", "presence_service").Logger(),
	}
}

func (s *PresenceService) authorize(ctx context.Context, sessionID uuid.UUID, callerID string) error {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get session: %w", err)
	}
	if sess.TeacherID != callerID {
		return ErrForbidden
	}
	return nil
}

// Snapshot lists every student who has joined so far, all marked inactive.
func (s *PresenceService) Snapshot(ctx context.Context, sessionID uuid.UUID, callerID string) ([]PresenceEntry, error) {
	if err := s.authorize(ctx, sessionID, callerID); err != nil {
		return nil, err
	}
	attempts, err := s.attempts.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	entries := make([]PresenceEntry, 0, len(attempts))
	for _, a := range attempts {
		name := a.StudentName
		if name == "" {
			name = UnknownStudentName
		}
		lastSaved := a.LastSavedAt
		entries = append(entries, PresenceEntry{
			AttemptID:   a.ID.String(),
			StudentID:   a.StudentID,
			DisplayName: name,
			State:       PresenceInactive,
			JoinedAt:    a.CreatedAt,
			LastSavedAt: &lastSaved,
			Submitted:   a.Submitted(),
		})
	}
	return entries, nil
}

// Watch streams the session's live changes until ctx is cancelled. Joins carry
// an active PresenceEntry whose name is resolved best-effort. The returned
// channel is closed when watching stops.
func (s *PresenceService) Watch(ctx context.Context, sessionID uuid.UUID, callerID string) (<-chan PresenceUpdate, error) {
	if err := s.authorize(ctx, sessionID, callerID); err != nil {
		return nil, err
	}
	sub, err := s.events.Subscribe(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan PresenceUpdate)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				update := PresenceUpdate{
					Type:      ev.Type,
					AttemptID: ev.AttemptID,
					StudentID: ev.StudentID,
					Status:    ev.Status,
					Auto:      ev.Auto,
					At:        ev.At,
				}
				if ev.Type == realtime.EventAttemptJoined {
					update.Entry = &PresenceEntry{
						AttemptID:   ev.AttemptID,
						StudentID:   ev.StudentID,
						DisplayName: s.displayName(ctx, ev.StudentID),
						State:       PresenceActive,
						JoinedAt:    ev.At,
					}
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *PresenceService) displayName(ctx context.Context, studentID string) string {
	u, err := s.users.GetByID(ctx, studentID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn().Err(err).Str("student_id", studentID).Msg("Profile lookup failed")
		}
		return UnknownStudentName
	}
	if u.DisplayName == "" {
		return UnknownStudentName
	}
	return u.DisplayName
}
