package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adpulse/adpulse-go/internal/models"
	"github.com/adpulse/adpulse-go/internal/services"
)

type AnomalyHandler struct {
	engine *services.Engine
}

func NewAnomalyHandler(engine *services.Engine) *AnomalyHandler {
	return &AnomalyHandler{engine: engine}
}

type AnomalyListResponse struct {
	Data      []models.AnomalyRecord `json:"data"`
	Total     int                    `json:"total"`
	Timestamp time.Time              `json:"timestamp"`
}

// GetAnomalies serves GET /api/v1/anomalies, newest and most severe first.
func (h *AnomalyHandler) GetAnomalies(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	anomalies, err := h.engine.GetActiveAnomalies(c.Request.Context(), accountID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load anomalies"})
		return
	}

	c.JSON(http.StatusOK, AnomalyListResponse{
		Data:      anomalies,
		Total:     len(anomalies),
		Timestamp: time.Now(),
	})
}
