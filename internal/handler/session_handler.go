package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/accesscode"
	"github.com/stemsi/examroom/internal/middleware"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/response"
	"github.com/stemsi/examroom/internal/service"
	"github.com/stemsi/examroom/internal/validator"
)

// SessionHandler handles the teacher side of live sessions.
type SessionHandler struct {
	sessionService SessionService
	attemptService AttemptService
	log            zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService SessionService, attemptService AttemptService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		attemptService: attemptService,
		log:            log.With().Str("component", "session_handler").Logger(),
	}
}

// PreviewAccessCode godoc
// GET /api/v1/teacher/access-codes
// Returns a fresh code the teacher can show before creating the session.
// Uniqueness is only checked when the session is created.
func (h *SessionHandler) PreviewAccessCode(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"access_code": accesscode.Regenerate()})
}

// CreateSession godoc
// POST /api/v1/teacher/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	quizID, err := uuid.Parse(req.QuizID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sess, err := h.sessionService.CreateSession(c.Request.Context(), caller, service.CreateSessionInput{
		QuizID:          quizID,
		Title:           req.Title,
		Mode:            model.SessionMode(req.Mode),
		ScheduledStart:  req.ScheduledStart,
		DurationMinutes: req.DurationMinutes,
		AccessCode:      req.AccessCode,
	})
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": sess})
}

// ListSessions godoc
// GET /api/v1/teacher/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessions, err := h.sessionService.ListTeacherSessions(c.Request.Context(), caller.ID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.List(c, "sessions", sessions)
}

// GetSession godoc
// GET /api/v1/teacher/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	h.withSession(c, func(caller service.Identity, id uuid.UUID) {
		sess, err := h.sessionService.GetSession(c.Request.Context(), id, caller.ID)
		if err != nil {
			failWith(c, h.log, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"session": sess})
	})
}

// StartSession godoc
// POST /api/v1/teacher/sessions/:id/start
func (h *SessionHandler) StartSession(c *gin.Context) {
	h.withSession(c, func(caller service.Identity, id uuid.UUID) {
		sess, err := h.sessionService.StartSession(c.Request.Context(), id, caller.ID)
		if err != nil {
			failWith(c, h.log, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"session": sess})
	})
}

// EndSession godoc
// POST /api/v1/teacher/sessions/:id/end
func (h *SessionHandler) EndSession(c *gin.Context) {
	h.withSession(c, func(caller service.Identity, id uuid.UUID) {
		sess, err := h.sessionService.EndSession(c.Request.Context(), id, caller.ID)
		if err != nil {
			failWith(c, h.log, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"session": sess})
	})
}

// DeleteSession godoc
// DELETE /api/v1/teacher/sessions/:id
// Removes the session and every attempt in it.
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	h.withSession(c, func(caller service.Identity, id uuid.UUID) {
		if err := h.sessionService.DeleteSession(c.Request.Context(), id, caller.ID); err != nil {
			failWith(c, h.log, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{})
	})
}

// ListAttempts godoc
// GET /api/v1/teacher/sessions/:id/attempts
func (h *SessionHandler) ListAttempts(c *gin.Context) {
	h.withSession(c, func(caller service.Identity, id uuid.UUID) {
		attempts, err := h.attemptService.GetSessionAttempts(c.Request.Context(), id, caller.ID)
		if err != nil {
			failWith(c, h.log, err)
			return
		}
		response.List(c, "attempts", attempts)
	})
}

func (h *SessionHandler) withSession(c *gin.Context, fn func(caller service.Identity, id uuid.UUID)) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	fn(caller, id)
}
