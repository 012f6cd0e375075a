package router

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/config"
	"github.com/stemsi/examroom/internal/handler"
	"github.com/stemsi/examroom/internal/middleware"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Health  *handler.HealthHandler
	Profile *handler.ProfileHandler
	Quiz    *handler.QuizHandler
	Session *handler.SessionHandler
	Student *handler.StudentHandler
	Monitor *handler.MonitorHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// rdb backs the join/submit rate limiter and may be nil.
func SetupRouter(
	auth middleware.TokenVerifier,
	handlers *Handlers,
	cfg *config.Config,
	rdb *redis.Client,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	// ─── CORS ──────────────────────────────────────────────────────────
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "X-RateLimit-Remaining", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:   middleware.DefaultBrotliConfig.Quality,
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		// Browsers open the monitor without an SSE Accept header in some polyfills.
		Skip: func(c *gin.Context) bool { return strings.HasSuffix(c.Request.URL.Path, "/monitor") },
	}))

	router.GET("/health", handlers.Health.Health)

	authenticated := []gin.HandlerFunc{
		middleware.RequireAuth(auth),
		middleware.RejectRevokedTokens(auth, log),
	}
	joinLimiter := middleware.NewRateLimiter(rdb, "join", cfg.RateLimitPerMinute, time.Minute, log)
	submitLimiter := middleware.NewRateLimiter(rdb, "submit", cfg.RateLimitPerMinute, time.Minute, log)

	// ─── 1. Profile (any role) ─────────────────────────────────────────
	me := router.Group("/api/v1/me")
	me.Use(authenticated...)
	{
		me.GET("", handlers.Profile.GetProfile)
		me.POST("/sync", handlers.Profile.SyncProfile)
		me.POST("/logout", handlers.Profile.Logout)
	}

	// ─── 2. Student ────────────────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(authenticated...)
	studentAPI.Use(middleware.RequireRole(model.RoleStudent), middleware.NoStore())
	{
		studentAPI.POST("/sessions/join", joinLimiter.Middleware(), handlers.Student.JoinSession)
		studentAPI.GET("/sessions/:code", handlers.Student.GetSessionByCode)
		studentAPI.GET("/attempts/:id", handlers.Student.GetAttempt)
		studentAPI.PUT("/attempts/:id/draft", handlers.Student.SaveDraft)
		studentAPI.POST("/attempts/:id/submit", submitLimiter.Middleware(), handlers.Student.SubmitAttempt)
	}

	// ─── 3. WebSocket (token in query) ─────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(authenticated...)
	ws.Use(middleware.RequireRole(model.RoleStudent))
	{
		ws.GET("/student/attempts/:id/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Teacher ────────────────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(authenticated...)
	teacherAPI.Use(middleware.RequireRole(model.RoleTeacher))
	{
		teacherAPI.POST("/quizzes", handlers.Quiz.CreateQuiz)
		teacherAPI.GET("/quizzes", handlers.Quiz.ListQuizzes)
		teacherAPI.GET("/quizzes/:id", handlers.Quiz.GetQuiz)

		teacherAPI.GET("/access-codes", handlers.Session.PreviewAccessCode)

		teacherAPI.POST("/sessions", handlers.Session.CreateSession)
		teacherAPI.GET("/sessions", handlers.Session.ListSessions)
		teacherAPI.GET("/sessions/:id", handlers.Session.GetSession)
		teacherAPI.DELETE("/sessions/:id", handlers.Session.DeleteSession)
		teacherAPI.POST("/sessions/:id/start", handlers.Session.StartSession)
		teacherAPI.POST("/sessions/:id/end", handlers.Session.EndSession)
		teacherAPI.GET("/sessions/:id/attempts", handlers.Session.ListAttempts)
		teacherAPI.GET("/sessions/:id/monitor", handlers.Monitor.MonitorSessionSSE)
	}

	return router
}

// requestLogger logs one line per request through zerolog.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Str("request_id", response.RequestID(c)).
			Msg("Request")
	}
}
