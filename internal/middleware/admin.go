package middleware

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AdminMiddleware provides admin authentication middleware
type AdminMiddleware struct {
	apiKey string
	hashed bool
}

// NewAdminMiddleware creates a new admin authentication middleware.
// The configured key may be either the plain key or its bcrypt hash;
// hashes are recognized by their "$2" prefix.
func NewAdminMiddleware(apiKey string) *AdminMiddleware {
	if apiKey == "" {
		apiKey = os.Getenv("ADMIN_API_KEY")
	}
	if apiKey == "" {
		// Use a default key for development (should be changed in production)
		apiKey = "admin-dev-key-change-in-production"
	}

	return &AdminMiddleware{
		apiKey: apiKey,
		hashed: strings.HasPrefix(apiKey, "$2"),
	}
}

// RequireAdminAuth middleware validates admin API keys
func (am *AdminMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for API key in Authorization header (Bearer token)
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) == 2 && tokenParts[0] == "Bearer" {
				if am.ValidateAdminKey(tokenParts[1]) {
					c.Next()
					return
				}
			}
		}

		// Check for API key in X-API-Key header
		if am.ValidateAdminKey(c.GetHeader("X-API-Key")) {
			c.Next()
			return
		}

		// Check for API key in query parameter (less secure, for development only)
		if am.ValidateAdminKey(c.Query("api_key")) {
			c.Next()
			return
		}

		// No valid API key found
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": "Valid admin API key required for this endpoint",
		})
		c.Abort()
	}
}

// ValidateAdminKey validates an admin API key
func (am *AdminMiddleware) ValidateAdminKey(key string) bool {
	if key == "" {
		return false
	}
	if am.hashed {
		return bcrypt.CompareHashAndPassword([]byte(am.apiKey), []byte(key)) == nil
	}
	return key == am.apiKey
}
