package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/adpulse/adpulse-go/internal/api/handlers"
	"github.com/adpulse/adpulse-go/internal/cache"
	"github.com/adpulse/adpulse-go/internal/database"
	"github.com/adpulse/adpulse-go/internal/middleware"
	"github.com/adpulse/adpulse-go/internal/ratelimit"
	"github.com/adpulse/adpulse-go/internal/services"
	"github.com/adpulse/adpulse-go/internal/telemetry"
)

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
}

// Dependencies carries everything the route tree needs.
type Dependencies struct {
	Engine      *services.Engine
	DB          *database.PostgresDB
	Redis       *database.RedisClient
	Coordinator *cache.Coordinator
	Budget      *ratelimit.BudgetTracker
	Anomalies   *database.AnomalyRepository
	Auth        *middleware.AuthMiddleware
	Admin       *middleware.AdminMiddleware
	TokenExpiry time.Duration
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.Use(otelgin.Middleware(telemetry.DefaultServiceName,
		otelgin.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		})))

	// Health check endpoint
	router.GET("/health", healthCheck(deps.DB, deps.Redis))

	seriesHandler := handlers.NewSeriesHandler(deps.Engine)
	sessionHandler := handlers.NewSessionHandler(deps.Engine)
	anomalyHandler := handlers.NewAnomalyHandler(deps.Engine)
	gapHandler := handlers.NewGapHandler(deps.Engine)
	performanceHandler := handlers.NewPerformanceHandler(deps.Engine)
	adminHandler := handlers.NewAdminHandler(deps.Coordinator, deps.Budget, deps.Anomalies)
	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Admin, deps.TokenExpiry)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/token", authHandler.IssueToken)
		}

		// Data routes require a client token
		data := v1.Group("")
		data.Use(deps.Auth.RequireAuth())
		{
			data.GET("/series", seriesHandler.GetSeries)
			data.GET("/sessions/:id", sessionHandler.GetSession)
			data.GET("/anomalies", anomalyHandler.GetAnomalies)
			data.GET("/gaps", gapHandler.GetGaps)
			data.GET("/performance", performanceHandler.GetSnapshot)
		}

		// Operational routes require the admin key
		admin := v1.Group("/admin")
		admin.Use(deps.Admin.RequireAdminAuth())
		{
			admin.POST("/cache/invalidate", adminHandler.InvalidateCache)
			admin.GET("/budget", adminHandler.GetBudget)
			admin.POST("/anomalies/:id/resolve", adminHandler.ResolveAnomaly)
		}
	}
}

func healthCheck(db *database.PostgresDB, redis *database.RedisClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := services.HealthCheck(c.Request.Context(), db, redis)

		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now(),
			Version:   telemetry.ServiceVersion,
			Services:  checks,
		}
		for _, status := range checks {
			if status != "healthy" {
				response.Status = "degraded"
				break
			}
		}

		statusCode := http.StatusOK
		if response.Status == "degraded" {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, response)
	}
}
