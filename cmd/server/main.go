package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/adpulse/adpulse-go/internal/analyzer"
	"github.com/adpulse/adpulse-go/internal/api"
	"github.com/adpulse/adpulse-go/internal/cache"
	"github.com/adpulse/adpulse-go/internal/config"
	"github.com/adpulse/adpulse-go/internal/database"
	"github.com/adpulse/adpulse-go/internal/freshness"
	"github.com/adpulse/adpulse-go/internal/logging"
	"github.com/adpulse/adpulse-go/internal/middleware"
	"github.com/adpulse/adpulse-go/internal/orchestrator"
	"github.com/adpulse/adpulse-go/internal/planner"
	"github.com/adpulse/adpulse-go/internal/ratelimit"
	"github.com/adpulse/adpulse-go/internal/services"
	"github.com/adpulse/adpulse-go/internal/telemetry"
	"github.com/adpulse/adpulse-go/pkg/insights"
)

const monitorSnapshotInterval = time.Minute

func main() {
	// Local development reads secrets from .env; missing file is fine
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)

	otlpLogger, err := logging.NewOTLPLogger(logging.OTLPConfig{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: telemetry.ServiceVersion,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OTLP logging")
	}

	ctx := context.Background()
	tracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracing")
	}

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// Repositories share one traced pool
	pool := database.NewTracedPool(db.Pool)
	timelineRepo := database.NewTimelineRepository(pool)
	sessionRepo := database.NewSessionRepository(pool)
	anomalyRepo := database.NewAnomalyRepository(pool)
	gapRepo := database.NewGapRepository(pool)
	performanceRepo := database.NewPerformanceRepository(pool)
	cacheRepo := database.NewCacheEntryRepository(pool)

	// Retrieval chain
	client := insights.NewClient(&cfg.Insights)
	budget := ratelimit.NewBudgetTracker(cfg.RateLimit, logger)
	evaluator := freshness.NewEvaluator(cfg.Freshness)
	updatePlanner := planner.NewPlanner(cfg.Planner, client.PageSize(), budget, logger)
	delivery := analyzer.NewDeliveryAnalyzer(cfg.Analyzer, logger)
	detector := analyzer.NewAnomalyDetector(cfg.Anomaly, logger)

	monitor := services.NewPerformanceMonitor(budget, cacheRepo, performanceRepo, logger)
	notifier := services.NewAnomalyNotifier(cfg.Telegram, logger)

	orch := orchestrator.New(client, budget, sessionRepo, timelineRepo, gapRepo, anomalyRepo,
		delivery, detector, services.NotifierFanout{notifier, monitor}, logger)

	engine := services.NewEngine(orch, evaluator, updatePlanner, sessionRepo, anomalyRepo, gapRepo, monitor, logger)

	// Cache tiers
	memory := cache.NewMemoryCache(cfg.Cache.MemoryTTLDuration())
	series := cache.NewRedisSeriesCache(redis.Client, cfg.Cache.PersistentTTLDuration())
	coordinator := cache.NewCoordinator(memory, series, cacheRepo, engine, evaluator, monitor, logger)
	engine.AttachCoordinator(coordinator)

	janitor := services.NewCacheJanitor(memory, cacheRepo)
	janitor.Start(cfg.Cache.JanitorIntervalDuration())
	monitor.Start(monitorSnapshotInterval)

	// HTTP surface
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	tokenExpiry := 24 * time.Hour
	if d, err := time.ParseDuration(cfg.Security.JWTExpiry); err == nil {
		tokenExpiry = d
	}

	api.SetupRoutes(router, api.Dependencies{
		Engine:      engine,
		DB:          db,
		Redis:       redis,
		Coordinator: coordinator,
		Budget:      budget,
		Anomalies:   anomalyRepo,
		Auth:        middleware.NewAuthMiddleware(cfg.Security.JWTSecret),
		Admin:       middleware.NewAdminMiddleware(cfg.Security.AdminKey),
		TokenExpiry: tokenExpiry,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	monitor.Stop()
	janitor.Stop()

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to flush traces")
	}
	if err := otlpLogger.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to flush logs")
	}

	logger.Info("Server exited")
}
