package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/config"
	"github.com/stemsi/examroom/internal/database"
	"github.com/stemsi/examroom/internal/handler"
	"github.com/stemsi/examroom/internal/logger"
	"github.com/stemsi/examroom/internal/repository"
	"github.com/stemsi/examroom/internal/router"
	"github.com/stemsi/examroom/internal/service"
	"github.com/stemsi/examroom/internal/validator"
	"github.com/stemsi/examroom/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Dur("autosave_interval", cfg.AutosaveInterval).
		Msg("Starting examroom server")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	quizRepo := repository.NewQuizRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	// Session events fan out through Redis so every replica sees them.
	bus := newEventBus(cfg.RealtimeBus, rdb, logger.Component(log, "realtime"))

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	userService := service.NewUserService(userRepo, log)
	quizService := service.NewQuizService(quizRepo, rdb, cfg.QuizCacheTTL, log)
	sessionService := service.NewSessionService(sessionRepo, quizService, bus, log)
	attemptService := service.NewAttemptService(sessionRepo, attemptRepo, quizService, bus, cfg.SubmitGrace, log)
	presenceService := service.NewPresenceService(sessionRepo, attemptRepo, userRepo, bus, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	checks := map[string]handler.HealthCheck{
		"postgres": pool.Ping,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}

	handlers := &router.Handlers{
		Health:  handler.NewHealthHandler(checks, log),
		Profile: handler.NewProfileHandler(userService, authService, log),
		Quiz:    handler.NewQuizHandler(quizService, log),
		Session: handler.NewSessionHandler(sessionService, attemptService, log),
		Student: handler.NewStudentHandler(sessionService, attemptService, cfg.AutosaveInterval, log),
		Monitor: handler.NewMonitorHandler(presenceService, log),
		WS:      handler.NewWSHandler(attemptService, bus, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	var starter worker.AutoStarter
	if cfg.AutoStartScheduled {
		starter = sessionService
	}
	deadlineWorker := worker.NewDeadlineWorker(attemptService, starter, rdb, cfg.DeadlineSweepSpec, log)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := deadlineWorker.Start(workerCtx); err != nil {
			log.Error().Err(err).Msg("Deadline worker stopped")
		}
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, rdb, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := newHTTPServer(ctx, ":"+cfg.ServerPort, r)

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Cut open monitor and attempt streams, then stop accepting new HTTP
	//    requests (5s timeout).
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the deadline worker; an in-flight sweep finishes first.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Deadline worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
