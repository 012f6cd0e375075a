// Package realtime carries per-session notifications (joins, autosave
// heartbeats, submissions and status changes) from the services to anyone
// watching a session: the teacher's monitor stream and student WebSockets.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/examroom/internal/model"
)

// EventType names a session event.
type EventType string

const (
	EventAttemptJoined    EventType = "attempt.joined"
	EventAttemptHeartbeat EventType = "attempt.heartbeat"
	EventAttemptSubmitted EventType = "attempt.submitted"
	EventSessionStatus    EventType = "session.status"
)

// Event is the payload published on a session channel.
type Event struct {
	Type      EventType           `json:"type"`
	SessionID uuid.UUID           `json:"session_id"`
	AttemptID string              `json:"attempt_id,omitempty"`
	StudentID string              `json:"student_id,omitempty"`
	Status    model.SessionStatus `json:"status,omitempty"`
	// Auto is set on submissions made by the server after the deadline.
	Auto bool      `json:"auto,omitempty"`
	At   time.Time `json:"at"`
}

// Publisher fans an event out to the event's session channel.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber opens a stream of a single session's events.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID uuid.UUID) (*Subscription, error)
}

// Bus is both ends of the event channel.
type Bus interface {
	Publisher
	Subscriber
}

// Subscription delivers events on C until Close is called or the context
// passed to Subscribe is cancelled. C is closed when delivery stops.
type Subscription struct {
	C <-chan Event

	once    sync.Once
	closeFn func() error
	err     error
}

func newSubscription(c <-chan Event, closeFn func() error) *Subscription {
	return &Subscription{C: c, closeFn: closeFn}
}

// Close stops delivery. Safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.err = s.closeFn()
	})
	return s.err
}
