package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adpulse/adpulse-go/internal/services"
)

type PerformanceHandler struct {
	engine *services.Engine
}

func NewPerformanceHandler(engine *services.Engine) *PerformanceHandler {
	return &PerformanceHandler{engine: engine}
}

// GetSnapshot serves GET /api/v1/performance with the current day's
// cache, latency and budget telemetry for one account.
func (h *PerformanceHandler) GetSnapshot(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required"})
		return
	}

	snapshot, err := h.engine.GetPerformanceSnapshot(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build performance snapshot"})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}
