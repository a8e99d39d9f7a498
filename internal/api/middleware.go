package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/auth"
)

func authenticate(c *gin.Context, tokenString string) bool {
	session, err := auth.ValidateToken(tokenString)
	if err != nil {
		respondError(c, err)
		c.Abort()
		return false
	}

	c.Set("userID", session.UserID)
	c.Set("email", session.Email)
	return true
}

// AuthMiddleware validates JWT tokens and sets user info in context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			respondError(c, apperr.Unauthorized("Authorization header required"))
			c.Abort()
			return
		}

		if authenticate(c, strings.TrimPrefix(authHeader, "Bearer ")) {
			c.Next()
		}
	}
}

// TokenAuthMiddleware accepts the token from the Authorization header or,
// for browsers opening a websocket, from the token query parameter
func TokenAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if token == "" {
			log.Debug("No token on %s from %s", c.Request.URL.Path, c.ClientIP())
			respondError(c, apperr.Unauthorized("Authentication token required"))
			c.Abort()
			return
		}

		if authenticate(c, token) {
			c.Next()
		}
	}
}
