package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chachabrian/quickmatch-backend/pkg/utils"
)

// AuthMiddleware validates the session token and sets userId and userType.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tokenString string

		// First try to get token from Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		// Browsers cannot set headers on websocket upgrades
		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": "Authorization header or token query parameter required"})
			return
		}

		claims, err := utils.ValidateToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(401, gin.H{"error": "Invalid token"})
			return
		}
		if claims.UserType != "client" && claims.UserType != "business" {
			c.AbortWithStatusJSON(403, gin.H{"error": "Unsupported account type"})
			return
		}

		c.Set("userId", claims.UserID)
		c.Set("userType", claims.UserType)
		c.Next()
	}
}

// AdminKey guards operator endpoints with a static key in X-Admin-Key.
func AdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Admin-Key")
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(401, gin.H{"error": "Invalid admin key"})
			return
		}
		c.Next()
	}
}
