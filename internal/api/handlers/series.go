package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adpulse/adpulse-go/internal/middleware"
	"github.com/adpulse/adpulse-go/internal/models"
	"github.com/adpulse/adpulse-go/internal/services"
)

const seriesDateLayout = "2006-01-02"

type SeriesHandler struct {
	engine *services.Engine
}

func NewSeriesHandler(engine *services.Engine) *SeriesHandler {
	return &SeriesHandler{engine: engine}
}

// SeriesResponse carries one timeline slice plus the cache metadata the
// dashboard uses to decide whether to poll the session for updates.
type SeriesResponse struct {
	Data      []models.TimelinePoint `json:"data"`
	Total     int                    `json:"total"`
	Cache     *CacheMeta             `json:"cache,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

type CacheMeta struct {
	Layer     models.CacheLayer     `json:"layer"`
	Freshness models.FreshnessLabel `json:"freshness"`
	HitCount  int64                 `json:"hit_count"`
	SessionID string                `json:"session_id,omitempty"`
	WrittenAt time.Time             `json:"written_at"`
}

// GetSeries serves GET /api/v1/series. The range is inclusive and
// expressed as calendar days.
func (h *SeriesHandler) GetSeries(c *gin.Context) {
	req, ok := bindSeriesRequest(c)
	if !ok {
		return
	}

	middleware.AddSpanAttribute(c, "account_id", req.AccountID)
	points, entry, err := h.engine.RequestSeries(c.Request.Context(), req)
	if err != nil {
		middleware.RecordError(c, err, "series request rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response := SeriesResponse{
		Data:      points,
		Total:     len(points),
		Timestamp: time.Now(),
	}
	if entry != nil {
		response.Cache = &CacheMeta{
			Layer:     entry.Layer,
			Freshness: entry.DataFreshness,
			HitCount:  entry.HitCount,
			SessionID: entry.DataID,
			WrittenAt: entry.WrittenAt,
		}
	}

	c.JSON(http.StatusOK, response)
}

func bindSeriesRequest(c *gin.Context) (models.SeriesRequest, bool) {
	accountID := c.Query("account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required"})
		return models.SeriesRequest{}, false
	}

	start, err := time.Parse(seriesDateLayout, c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be a YYYY-MM-DD date"})
		return models.SeriesRequest{}, false
	}
	end, err := time.Parse(seriesDateLayout, c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be a YYYY-MM-DD date"})
		return models.SeriesRequest{}, false
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must not precede start"})
		return models.SeriesRequest{}, false
	}

	return models.SeriesRequest{
		AccountID: accountID,
		AdID:      c.Query("ad_id"),
		DateRange: models.NewDateRange(start, end),
	}, true
}
