package middleware

import (
	"errors"
	"net/http"
	"strings"

	"checkout-service/common/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	UserContextKey = "userID"
	RoleContextKey = "role"
	AdminRole      = "admin"
)

// AuthMiddleware trusts the X-User-ID / X-User-Role headers set by the API
// gateway and falls back to verifying a bearer token with jwtSecret.
func AuthMiddleware(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		role := c.GetHeader("X-User-Role")

		if userID == "" {
			if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
				id, err := auth.ParseUserID(token, jwtSecret)
				if err != nil {
					c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
					c.Abort()
					return
				}
				userID = id
			}
		}

		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		id, err := uuid.Parse(userID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID format"})
			c.Abort()
			return
		}

		c.Set(UserContextKey, id)
		c.Set(RoleContextKey, role)
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(RoleContextKey)
		if !exists || role != AdminRole {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID returns the caller set by AuthMiddleware.
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	if val, ok := c.Get(UserContextKey); ok {
		if id, ok := val.(uuid.UUID); ok {
			return id, nil
		}
	}
	return uuid.Nil, errors.New("user ID not found in context")
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
