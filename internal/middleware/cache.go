package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore keeps attempt drafts and scores out of shared and browser caches.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
