package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adpulse/adpulse-go/internal/models"
	"github.com/adpulse/adpulse-go/internal/services"
)

type GapHandler struct {
	engine *services.Engine
}

func NewGapHandler(engine *services.Engine) *GapHandler {
	return &GapHandler{engine: engine}
}

type GapListResponse struct {
	Data      []models.GapRecord `json:"data"`
	Total     int                `json:"total"`
	Timestamp time.Time          `json:"timestamp"`
}

// GetGaps serves GET /api/v1/gaps. An optional ad_id narrows the result
// to one ad's delivery gaps.
func (h *GapHandler) GetGaps(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required"})
		return
	}

	gaps, err := h.engine.GetGaps(c.Request.Context(), accountID, c.Query("ad_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load delivery gaps"})
		return
	}

	c.JSON(http.StatusOK, GapListResponse{
		Data:      gaps,
		Total:     len(gaps),
		Timestamp: time.Now(),
	})
}
