package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adpulse/adpulse-go/internal/cache"
	"github.com/adpulse/adpulse-go/internal/database"
	"github.com/adpulse/adpulse-go/internal/freshness"
	"github.com/adpulse/adpulse-go/internal/models"
	"github.com/adpulse/adpulse-go/internal/orchestrator"
	"github.com/adpulse/adpulse-go/internal/planner"
	"github.com/adpulse/adpulse-go/internal/telemetry"
)

// SessionReader looks up sessions for status queries and freshness context.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*models.RetrievalSession, error)
	GetLastCompletedSession(ctx context.Context, accountID string, dateRange models.DateRange) (*models.RetrievalSession, error)
}

// AnomalyReader serves the active anomaly query surface.
type AnomalyReader interface {
	GetActiveAnomalies(ctx context.Context, accountID string, limit int) ([]models.AnomalyRecord, error)
}

// GapReader serves the gap query surface.
type GapReader interface {
	GetGaps(ctx context.Context, accountID, adID string) ([]models.GapRecord, error)
}

// Engine is the caller-facing facade of the synchronization engine. It also
// implements cache.Loader: a cache miss runs the freshness, planning and
// retrieval chain through here.
type Engine struct {
	coordinator *cache.Coordinator
	orch        *orchestrator.Orchestrator
	evaluator   *freshness.Evaluator
	planner     *planner.Planner
	sessions    SessionReader
	anomalies   AnomalyReader
	gaps        GapReader
	monitor     *PerformanceMonitor
	tracer      *telemetry.SyncTracer
	logger      *logrus.Logger
	now         func() time.Time
}

// NewEngine wires the facade. The coordinator is attached afterwards via
// AttachCoordinator because it needs the engine as its loader.
func NewEngine(orch *orchestrator.Orchestrator, evaluator *freshness.Evaluator, pl *planner.Planner, sessions SessionReader, anomalies AnomalyReader, gaps GapReader, monitor *PerformanceMonitor, logger *logrus.Logger) *Engine {
	return &Engine{
		orch:      orch,
		evaluator: evaluator,
		planner:   pl,
		sessions:  sessions,
		anomalies: anomalies,
		gaps:      gaps,
		monitor:   monitor,
		tracer:    telemetry.NewSyncTracer(),
		logger:    logger,
		now:       time.Now,
	}
}

// AttachCoordinator completes the wiring cycle between engine and cache.
func (e *Engine) AttachCoordinator(coordinator *cache.Coordinator) {
	e.coordinator = coordinator
}

// RequestSeries returns the metric series for an (account, date range),
// served from cache when possible and fetched upstream otherwise.
func (e *Engine) RequestSeries(ctx context.Context, req models.SeriesRequest) ([]models.TimelinePoint, *models.CacheEntry, error) {
	if req.AccountID == "" {
		return nil, nil, fmt.Errorf("account id is required")
	}
	if req.DateRange.Days() == 0 {
		return nil, nil, fmt.Errorf("date range is empty or inverted")
	}
	e.monitor.TrackAccount(req.AccountID)
	return e.coordinator.Get(ctx, req)
}

// GetSessionStatus returns a retrieval session by id.
func (e *Engine) GetSessionStatus(ctx context.Context, sessionID string) (*models.RetrievalSession, error) {
	return e.sessions.GetSession(ctx, sessionID)
}

// GetActiveAnomalies returns unresolved anomalies for an account.
func (e *Engine) GetActiveAnomalies(ctx context.Context, accountID string, limit int) ([]models.AnomalyRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.anomalies.GetActiveAnomalies(ctx, accountID, limit)
}

// GetGaps returns the stored delivery gaps for an ad.
func (e *Engine) GetGaps(ctx context.Context, accountID, adID string) ([]models.GapRecord, error) {
	return e.gaps.GetGaps(ctx, accountID, adID)
}

// GetPerformanceSnapshot returns the current day's engine telemetry for an
// account.
func (e *Engine) GetPerformanceSnapshot(ctx context.Context, accountID string) (*models.PerformanceSnapshot, error) {
	return e.monitor.Snapshot(ctx, accountID)
}

// LoadSeries implements cache.Loader: evaluate freshness, plan the update
// and hand the planned parts to the orchestrator. A skip plan returns the
// base series untouched.
func (e *Engine) LoadSeries(ctx context.Context, req models.SeriesRequest, base []models.TimelinePoint) ([]models.TimelinePoint, *models.RetrievalSession, error) {
	ctx, span := e.tracer.StartSeriesLoad(ctx, req)

	fctx := freshness.Context{
		AccountID:   req.AccountID,
		DateRange:   req.DateRange,
		LastFetched: e.lastFetched(ctx, req, base),
		Now:         e.now(),
	}
	state := e.evaluator.Evaluate(base, fctx)

	var knownGaps []models.GapRecord
	if req.AdID != "" {
		gaps, err := e.gaps.GetGaps(ctx, req.AccountID, req.AdID)
		if err != nil {
			e.logger.WithField("ad_id", req.AdID).WithError(err).Debug("Failed to load known gaps for planning")
		} else {
			knownGaps = gaps
		}
	}

	plan := e.planner.CreateUpdatePlan(base, fctx, state, knownGaps)

	e.logger.WithFields(logrus.Fields{
		"account_id": req.AccountID,
		"range":      req.DateRange.Key(),
		"strategy":   string(plan.Strategy),
		"est_calls":  plan.EstimatedAPICalls,
		"priority":   string(plan.Priority),
		"staleness":  state.Staleness,
	}).Info("Series update planned")
	e.tracer.RecordPlan(span, string(plan.Strategy), plan.EstimatedAPICalls, state.Staleness)

	if plan.Strategy == planner.StrategySkip {
		e.tracer.EndSeriesLoad(span, nil, len(base), nil)
		return base, nil, nil
	}

	points, session, err := e.orch.Execute(ctx, req, plan.DataParts)
	e.tracer.EndSeriesLoad(span, session, len(points), err)
	return points, session, err
}

// lastFetched derives the freshness reference time: the most recent
// completed session for the exact range wins, else the newest fetch
// timestamp carried by the cached points themselves.
func (e *Engine) lastFetched(ctx context.Context, req models.SeriesRequest, base []models.TimelinePoint) time.Time {
	session, err := e.sessions.GetLastCompletedSession(ctx, req.AccountID, req.DateRange)
	if err == nil && session != nil {
		return session.UpdatedAt
	}
	var newest time.Time
	for _, p := range base {
		if p.FetchedAt.After(newest) {
			newest = p.FetchedAt
		}
	}
	return newest
}

// HealthCheck verifies the engine can reach its persistence dependencies.
func HealthCheck(ctx context.Context, db *database.PostgresDB, redis *database.RedisClient) map[string]string {
	status := map[string]string{
		"database": "healthy",
		"redis":    "healthy",
	}
	if db == nil {
		status["database"] = "unhealthy: not configured"
	} else if err := db.HealthCheck(ctx); err != nil {
		status["database"] = "unhealthy: " + err.Error()
	}
	if redis == nil {
		status["redis"] = "unhealthy: not configured"
	} else if err := redis.HealthCheck(ctx); err != nil {
		status["redis"] = "unhealthy: " + err.Error()
	}
	return status
}
