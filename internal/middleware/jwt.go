package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/examroom/internal/response"
	"github.com/stemsi/examroom/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
)

// TokenVerifier is the part of service.AuthService the middleware needs.
type TokenVerifier interface {
	ValidateToken(tokenStr string) (*service.Claims, error)
	CheckNotRevoked(ctx context.Context, claims *service.Claims) error
}

var errNoToken = errors.New("authorization header or token query required")

// RequireAuth validates the identity token from the Authorization header,
// falling back to ?token= for EventSource and WebSocket clients.
func RequireAuth(auth TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := auth.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetIdentity returns the authenticated caller. ok is false without RequireAuth.
func GetIdentity(c *gin.Context) (service.Identity, bool) {
	claims := GetClaims(c)
	if claims == nil {
		return service.Identity{}, false
	}
	return claims.Identity(), true
}

func extractToken(c *gin.Context) (string, error) {
	tokenStr := ""

	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			tokenStr = strings.TrimSpace(parts[1])
		}
	}

	// EventSource and browser WebSocket clients cannot send headers.
	if tokenStr == "" {
		tokenStr = c.Query("token")
	}

	if tokenStr == "" {
		return "", errNoToken
	}
	return tokenStr, nil
}
