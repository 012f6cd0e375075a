package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/config"
)

const (
	// DeadlineBatchSize is how many expired attempts are finalized per statement.
	DeadlineBatchSize = 50
	// deadlineMaxBatches caps one sweep so a backlog cannot starve the next tick.
	deadlineMaxBatches = 20
	sweepTimeout       = 25 * time.Second
	lockTTL            = sweepTimeout + 5*time.Second
)

// releaseLock deletes the lock only if this replica still holds it.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Finalizer submits attempts whose time ran out.
type Finalizer interface {
	FinalizeExpired(ctx context.Context, batchSize int) (int, error)
}

// AutoStarter activates scheduled sessions whose start time has passed.
type AutoStarter interface {
	AutoStartDue(ctx context.Context) (int, error)
}

// DeadlineWorker periodically auto-submits expired attempts and, when enabled,
// starts scheduled sessions. A Redis lock keeps one replica sweeping at a time.
type DeadlineWorker struct {
	finalizer Finalizer
	starter   AutoStarter
	rdb       *redis.Client
	spec      string
	instance  string
	log       zerolog.Logger
}

// NewDeadlineWorker creates a new DeadlineWorker. starter may be nil to leave
// scheduled sessions for the teacher to start; rdb may be nil on a single replica.
func NewDeadlineWorker(finalizer Finalizer, starter AutoStarter, rdb *redis.Client, spec string, log zerolog.Logger) *DeadlineWorker {
	return &DeadlineWorker{
		finalizer: finalizer,
		starter:   starter,
		rdb:       rdb,
		spec:      spec,
		instance:  uuid.NewString(),
		log:       log.With().Str("component", "deadline_worker").Logger(),
	}
}

// Start schedules sweeps on the cron spec and blocks until ctx is cancelled,
// then waits for a running sweep to finish.
func (w *DeadlineWorker) Start(ctx context.Context) error {
	c := cron.New(
		cron.WithLogger(cronLogger{log: w.log}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: w.log})),
	)

	if _, err := c.AddFunc(w.spec, func() {
		sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
		defer cancel()
		w.Sweep(sweepCtx)
	}); err != nil {
		return err
	}

	w.log.Info().
		Str("schedule", w.spec).
		Bool("auto_start", w.starter != nil).
		Msg("Deadline worker started")
	c.Start()

	<-ctx.Done()
	w.log.Info().Msg("Deadline worker stopping...")
	<-c.Stop().Done()
	w.log.Info().Msg("Deadline worker stopped")
	return nil
}

// Sweep runs one pass. It is a no-op when another replica holds the lock.
func (w *DeadlineWorker) Sweep(ctx context.Context) {
	if !w.acquire(ctx) {
		w.log.Debug().Msg("Sweep skipped, lock held elsewhere")
		return
	}
	defer w.release()

	if w.starter != nil {
		started, err := w.starter.AutoStartDue(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("Auto-start failed")
		} else if started > 0 {
			w.log.Info().Int("count", started).Msg("Scheduled sessions started")
		}
	}

	total := 0
	for i := 0; i < deadlineMaxBatches; i++ {
		n, err := w.finalizer.FinalizeExpired(ctx, DeadlineBatchSize)
		if err != nil {
			w.log.Error().Err(err).Msg("Finalize expired attempts failed")
			break
		}
		total += n
		if n < DeadlineBatchSize {
			break
		}
	}
	if total > 0 {
		w.log.Info().Int("count", total).Msg("Expired attempts auto-submitted")
	}
}

func (w *DeadlineWorker) acquire(ctx context.Context) bool {
	if w.rdb == nil {
		return true
	}
	ok, err := w.rdb.SetNX(ctx, config.CacheKey.DeadlineLockKey(), w.instance, lockTTL).Result()
	if err != nil {
		w.log.Warn().Err(err).Msg("Lock acquire failed")
		return false
	}
	return ok
}

func (w *DeadlineWorker) release() {
	if w.rdb == nil {
		return
	}
	// The sweep context may already be done; release on a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseLock.Run(ctx, w.rdb, []string{config.CacheKey.DeadlineLockKey()}, w.instance).Err(); err != nil {
		w.log.Warn().Err(err).Msg("Lock release failed")
	}
}

// cronLogger routes robfig/cron's logging through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
