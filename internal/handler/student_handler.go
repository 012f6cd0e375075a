package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/middleware"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/response"
	"github.com/stemsi/examroom/internal/validator"
)

// StudentHandler handles the student side: joining, autosave and submission.
type StudentHandler struct {
	sessionService   SessionService
	attemptService   AttemptService
	autosaveInterval time.Duration
	log              zerolog.Logger
}

// NewStudentHandler creates a new StudentHandler. autosaveInterval is
// advertised to clients with every attempt.
func NewStudentHandler(
	sessionService SessionService,
	attemptService AttemptService,
	autosaveInterval time.Duration,
	log zerolog.Logger,
) *StudentHandler {
	return &StudentHandler{
		sessionService:   sessionService,
		attemptService:   attemptService,
		autosaveInterval: autosaveInterval,
		log:              log.With().Str("component", "student_handler").Logger(),
	}
}

// JoinSession godoc
// POST /api/v1/student/sessions/join
// Idempotent: joining again returns the same attempt with its draft.
func (h *StudentHandler) JoinSession(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.JoinSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.attemptService.JoinSession(c.Request.Context(), req.AccessCode, caller.ID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": newAttemptResponse(view, h.autosaveInterval)})
}

// GetSessionByCode godoc
// GET /api/v1/student/sessions/:code
// Public session fields for the waiting view.
func (h *StudentHandler) GetSessionByCode(c *gin.Context) {
	sess, err := h.sessionService.GetSessionByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// GetAttempt godoc
// GET /api/v1/student/attempts/:id
// Covers page reloads: the stored draft, the paper and the deadline.
func (h *StudentHandler) GetAttempt(c *gin.Context) {
	caller, id, ok := h.attemptParams(c)
	if !ok {
		return
	}

	view, err := h.attemptService.GetAttempt(c.Request.Context(), id, caller)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": newAttemptResponse(view, h.autosaveInterval)})
}

// SaveDraft godoc
// PUT /api/v1/student/attempts/:id/draft
// Replaces the whole stored draft.
func (h *StudentHandler) SaveDraft(c *gin.Context) {
	caller, id, ok := h.attemptParams(c)
	if !ok {
		return
	}

	var req model.SaveDraftRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	savedAt, err := h.attemptService.SaveDraft(c.Request.Context(), id, caller, req.Answers)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"saved_at": savedAt})
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:id/submit
// The score is omitted in EXAM mode until the session is archived.
func (h *StudentHandler) SubmitAttempt(c *gin.Context) {
	caller, id, ok := h.attemptParams(c)
	if !ok {
		return
	}

	var req model.SubmitAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sub, err := h.attemptService.SubmitAttempt(c.Request.Context(), id, caller, req.Answers)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": newSubmissionResponse(sub)})
}

func (h *StudentHandler) attemptParams(c *gin.Context) (string, uuid.UUID, bool) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return "", uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", uuid.Nil, false
	}
	return caller.ID, id, true
}
