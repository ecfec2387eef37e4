package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gym-status-backend/internal/ws"
)

// Context keys set by the auth middleware.
const (
	ContextUserID = "userID"
	ContextGymID  = "gymID"
)

// Auth verifies the Bearer token and stores the caller's identity on
// the request context. Login and token issuance live outside this
// service; only verification happens here.
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		userID, gymID, err := ws.VerifyToken(token, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ContextUserID, userID)
		c.Set(ContextGymID, gymID)
		c.Next()
	}
}
