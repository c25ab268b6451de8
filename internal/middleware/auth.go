package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"casino-engine/internal/services"
)

// Context keys set by AuthMiddleware.
const (
	KeyUserID    = "user_id"
	KeySessionID = "session_id"
)

// bearerToken reads the Authorization header, falling back to ?token for
// websocket clients that cannot set headers. On failure it returns the
// message for the 401 body.
func bearerToken(c *gin.Context) (token, problem string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token = c.Query("token"); token != "" {
			return token, ""
		}
		return "", "Authorization header required"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", "Invalid authorization format"
	}
	return token, ""
}

func AuthMiddleware(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := bearerToken(c)
		if problem != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": problem})
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(KeyUserID, claims.UserID)
		c.Set(KeySessionID, claims.SessionID)

		c.Next()
	}
}
