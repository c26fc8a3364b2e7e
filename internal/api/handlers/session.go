package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adpulse/adpulse-go/internal/database"
	"github.com/adpulse/adpulse-go/internal/services"
)

type SessionHandler struct {
	engine *services.Engine
}

func NewSessionHandler(engine *services.Engine) *SessionHandler {
	return &SessionHandler{engine: engine}
}

// GetSession serves GET /api/v1/sessions/:id. Clients poll this after a
// series request returns a pending or fetching session.
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session id is required"})
		return
	}

	session, err := h.engine.GetSessionStatus(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session":  session,
		"terminal": session.IsTerminal(),
	})
}
