package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adpulse/adpulse-go/internal/middleware"
)

// AuthHandler issues the JWT tokens the data endpoints require. Clients
// authenticate with the shared admin key; tokens carry the client id.
type AuthHandler struct {
	auth   *middleware.AuthMiddleware
	admin  *middleware.AdminMiddleware
	expiry time.Duration
}

func NewAuthHandler(auth *middleware.AuthMiddleware, admin *middleware.AdminMiddleware, expiry time.Duration) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		admin:  admin,
		expiry: expiry,
	}
}

type tokenRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
}

// IssueToken serves POST /api/v1/auth/token.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id and client_secret are required"})
		return
	}

	if !h.admin.ValidateAdminKey(req.ClientSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid client credentials"})
		return
	}

	token, err := h.auth.GenerateToken(req.ClientID, h.expiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int(h.expiry.Seconds()),
	})
}
