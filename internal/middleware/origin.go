package middleware

import (
	"net/http"

	"client/internal/utils"

	"github.com/gin-gonic/gin"
)

// OriginGuard rejects state-changing requests and websocket upgrades sent by
// pages outside the UI origins. Simple cross-site requests skip CORS
// preflight, so the browser would otherwise deliver them.
func OriginGuard(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch {
		case c.Request.Method == http.MethodGet && c.GetHeader("Upgrade") == "",
			c.Request.Method == http.MethodHead,
			c.Request.Method == http.MethodOptions:
			c.Next()
			return
		}
		if origin := c.GetHeader("Origin"); !utils.OriginAllowed(allowedOrigins, origin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}
		c.Next()
	}
}
