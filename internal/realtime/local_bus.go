package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// LocalBus is an in-process Bus for single-replica deployments
// (REALTIME_BUS=local) and tests.
// Subscribers that fall behind lose events rather than block publishers.
type LocalBus struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan Event]struct{}
}

// NewLocalBus creates an empty LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[uuid.UUID]map[chan Event]struct{})}
}

func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, sessionID uuid.UUID) (*Subscription, error) {
	ch := make(chan Event, subscriptionBuffer)

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan Event]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	remove := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[sessionID], ch)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			close(ch)
			b.mu.Unlock()
		})
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			remove()
		case <-stop:
		}
	}()

	return newSubscription(ch, func() error {
		close(stop)
		remove()
		return nil
	}), nil
}
