package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/middleware"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/response"
	"github.com/stemsi/examroom/internal/validator"
)

// ProfileHandler handles the caller's own profile and sign-out.
type ProfileHandler struct {
	userService UserService
	revoker     TokenRevoker
	log         zerolog.Logger
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(userService UserService, revoker TokenRevoker, log zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{
		userService: userService,
		revoker:     revoker,
		log:         log.With().Str("component", "profile_handler").Logger(),
	}
}

// SyncProfile godoc
// POST /api/v1/me/sync
// Mirrors the caller's identity into the local users table. The body may
// override the display name carried in the token.
func (h *ProfileHandler) SyncProfile(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SyncProfileRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	user, err := h.userService.SyncProfile(c.Request.Context(), caller, req.DisplayName)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": user})
}

// GetProfile godoc
// GET /api/v1/me
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	user, err := h.userService.GetProfile(c.Request.Context(), caller.ID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": user})
}

// Logout godoc
// POST /api/v1/me/logout
// Revokes the presented token until it expires.
func (h *ProfileHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.revoker.Revoke(c.Request.Context(), claims); err != nil {
		h.log.Error().Err(err).Str("user_id", claims.Subject).Msg("Token revocation failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
