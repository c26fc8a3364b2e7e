package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adpulse/adpulse-go/internal/cache"
	"github.com/adpulse/adpulse-go/internal/database"
	"github.com/adpulse/adpulse-go/internal/ratelimit"
	"github.com/adpulse/adpulse-go/internal/utils"
)

// AdminHandler exposes operational endpoints behind the admin key:
// cache invalidation, budget inspection and anomaly resolution.
type AdminHandler struct {
	coordinator *cache.Coordinator
	budget      *ratelimit.BudgetTracker
	anomalies   *database.AnomalyRepository
}

func NewAdminHandler(coordinator *cache.Coordinator, budget *ratelimit.BudgetTracker, anomalies *database.AnomalyRepository) *AdminHandler {
	return &AdminHandler{
		coordinator: coordinator,
		budget:      budget,
		anomalies:   anomalies,
	}
}

// InvalidateCache serves POST /api/v1/admin/cache/invalidate. The next
// series request for the same key goes back to the loader.
func (h *AdminHandler) InvalidateCache(c *gin.Context) {
	req, ok := bindSeriesRequest(c)
	if !ok {
		return
	}

	h.coordinator.Invalidate(c.Request.Context(), req)
	c.JSON(http.StatusOK, gin.H{"invalidated": req.Key()})
}

// GetBudget serves GET /api/v1/admin/budget.
func (h *AdminHandler) GetBudget(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required"})
		return
	}

	hourly, daily := h.budget.Remaining(accountID)
	c.JSON(http.StatusOK, gin.H{
		"account_id":       accountID,
		"remaining_hourly": hourly,
		"remaining_daily":  daily,
		"stats":            h.budget.GetStats(accountID),
	})
}

// ResolveAnomaly serves POST /api/v1/admin/anomalies/:id/resolve.
func (h *AdminHandler) ResolveAnomaly(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Anomaly id is required"})
		return
	}

	if err := h.anomalies.ResolveAnomaly(c.Request.Context(), id); err != nil {
		if utils.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Anomaly not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve anomaly"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"resolved": id})
}
