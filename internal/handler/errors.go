package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/response"
	"github.com/stemsi/examroom/internal/service"
)

var errorTable = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	{service.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrForbidden, http.StatusForbidden, response.ErrForbidden},
	{service.ErrTeacherOnly, http.StatusForbidden, response.ErrTeacherAccessOnly},
	{service.ErrInvalidAccessCode, http.StatusNotFound, response.ErrInvalidAccessCode},
	{service.ErrAccessCodeInUse, http.StatusConflict, response.ErrAccessCodeInUse},
	{service.ErrSessionClosed, http.StatusConflict, response.ErrSessionClosed},
	{service.ErrSessionNotActive, http.StatusConflict, response.ErrSessionNotActive},
	{service.ErrInvalidStateTransition, http.StatusConflict, response.ErrInvalidStateTransition},
	{service.ErrAlreadySubmitted, http.StatusConflict, response.ErrAlreadySubmitted},
	{service.ErrAttemptExpired, http.StatusConflict, response.ErrAttemptExpired},
	{service.ErrInvalidAnswers, http.StatusUnprocessableEntity, response.ErrInvalidAnswers},
	{service.ErrInvalidQuiz, http.StatusUnprocessableEntity, response.ErrInvalidQuiz},
	{service.ErrTokenRevoked, http.StatusUnauthorized, response.ErrTokenRevoked},
	{service.ErrInvalidToken, http.StatusUnauthorized, response.ErrTokenInvalid},
}

// classify maps a service error to an HTTP status and API error code.
// Unknown errors are internal.
func classify(err error) (int, response.ErrCode) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failWith writes the envelope for err, logging only unexpected failures.
func failWith(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.Fail(c, status, code)
}
