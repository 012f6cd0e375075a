package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/response"
	"github.com/stemsi/examroom/internal/service"
)

// RejectRevokedTokens blocks tokens signed out through the logout endpoint.
// A Redis failure lets the request through; the token signature is already verified.
func RejectRevokedTokens(auth TokenVerifier, log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "revocation").Logger()

	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if err := auth.CheckNotRevoked(c.Request.Context(), claims); err != nil {
			if errors.Is(err, service.ErrTokenRevoked) {
				response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRevoked)
				return
			}
			log.Warn().Err(err).Str("user_id", claims.Subject).Msg("Revocation check failed")
		}

		c.Next()
	}
}
