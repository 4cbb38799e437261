package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"popkat/internal/shared/server/respond"
)

// AdminToken rejects requests that do not present token as a bearer token
// or X-Admin-Token header. An empty token disables the guard.
func AdminToken(token string) gin.HandlerFunc {
	token = strings.TrimSpace(token)
	return func(c *gin.Context) {
		if token == "" || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		presented := strings.TrimSpace(c.GetHeader("X-Admin-Token"))
		if presented == "" {
			authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
			if strings.HasPrefix(authHeader, "Bearer ") {
				presented = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			}
		}

		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		c.Next()
	}
}
