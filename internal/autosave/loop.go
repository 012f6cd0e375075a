// Package autosave pushes a student's in-progress answers to the server on a
// fixed interval. A failed save is logged and left for the next tick.
package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/model"
)

// DefaultInterval is the reference autosave period.
const DefaultInterval = 30 * time.Second

// DraftSource returns the current draft. It must be safe to call from the loop goroutine.
type DraftSource interface {
	Draft() model.Answers
}

// Saver persists a draft for an attempt.
type Saver interface {
	SaveDraft(ctx context.Context, attemptID uuid.UUID, answers model.Answers) (time.Time, error)
}

// Loop is one attempt's autosave ticker.
type Loop struct {
	attemptID uuid.UUID
	interval  time.Duration
	source    DraftSource
	saver     Saver
	log       zerolog.Logger

	// StopOn, when set, ends the loop after a save error it reports true for,
	// e.g. the attempt was submitted from another device.
	StopOn func(error) bool

	saveMu sync.Mutex

	mu        sync.Mutex
	lastSaved time.Time
	lastErr   error
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a stopped Loop. A non-positive interval uses DefaultInterval.
func New(attemptID uuid.UUID, interval time.Duration, source DraftSource, saver Saver, log zerolog.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		attemptID: attemptID,
		interval:  interval,
		source:    source,
		saver:     saver,
		log:       log.With().Str("component", "autosave").Str("attempt_id", attemptID.String()).Logger(),
	}
}

// Start runs the loop in the background until Stop is called or ctx ends.
// Calling Start on a running loop does nothing.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Bound each save by the interval so a hung request never overlaps the next tick.
			saveCtx, cancel := context.WithTimeout(ctx, l.interval)
			err := l.save(saveCtx)
			cancel()
			if err != nil && l.StopOn != nil && l.StopOn(err) {
				l.log.Info().Err(err).Msg("Autosave stopped")
				return
			}
		}
	}
}

// Flush saves the current draft now and returns the outcome.
func (l *Loop) Flush(ctx context.Context) error {
	return l.save(ctx)
}

func (l *Loop) save(ctx context.Context) error {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	draft := l.source.Draft()
	savedAt, err := l.saver.SaveDraft(ctx, l.attemptID, draft)

	l.mu.Lock()
	l.lastErr = err
	if err == nil {
		l.lastSaved = savedAt
	}
	l.mu.Unlock()

	if err != nil {
		l.log.Warn().Err(err).Int("answers", len(draft)).Msg("Autosave failed")
		return err
	}
	l.log.Debug().Int("answers", len(draft)).Time("saved_at", savedAt).Msg("Draft saved")
	return nil
}

// Stop ends the loop and waits for an in-flight save to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the loop exits. Nil before Start.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// LastSaved returns when the server last accepted a draft.
func (l *Loop) LastSaved() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSaved
}

// LastError returns the outcome of the most recent save.
func (l *Loop) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Draft is a concurrency-safe DraftSource the UI writes answers into.
type Draft struct {
	mu      sync.RWMutex
	answers model.Answers
}

// NewDraft seeds a draft, typically from the attempt's stored answers.
func NewDraft(initial model.Answers) *Draft {
	return &Draft{answers: initial.Clone()}
}

// Set records the answer for a question.
func (d *Draft) Set(index int, answer string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.answers[index] = answer
}

// Clear removes the answer for a question.
func (d *Draft) Clear(index int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.answers, index)
}

// Draft returns a snapshot copy of the answers.
func (d *Draft) Draft() model.Answers {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.answers.Clone()
}
