package planner

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adpulse/adpulse-go/internal/freshness"
	"github.com/adpulse/adpulse-go/internal/models"
)

// Strategy selects how much of a range gets re-fetched.
type Strategy string

const (
	StrategySkip        Strategy = "skip"
	StrategyIncremental Strategy = "incremental"
	StrategyFull        Strategy = "full"
)

// UpdatePlan is the planner's answer: what to fetch and what it costs.
type UpdatePlan struct {
	Strategy          Strategy                 `json:"strategy"`
	EstimatedAPICalls int                      `json:"estimated_api_calls"`
	EstimatedDuration time.Duration            `json:"estimated_duration"`
	Priority          freshness.UpdatePriority `json:"priority"`
	DataParts         []models.DateRange       `json:"data_parts"`
}

// BudgetReader is the read-only view of the rate budget the planner
// consults. Checking is not reserving.
type BudgetReader interface {
	Remaining(name string) (hourly, daily int)
}

// Config holds planning knobs.
type Config struct {
	EstimatedRowsPerDay int           `mapstructure:"estimated_rows_per_day"`
	MinConfidence       float64       `mapstructure:"min_confidence"`
	IncrementalTailDays int           `mapstructure:"incremental_tail_days"`
	PerCallLatency      time.Duration `mapstructure:"per_call_latency"`
}

// Planner chooses a fetch strategy from the freshness state and the
// currently remaining API budget. This is the engine's core
// cost/freshness trade-off: a plan is downgraded full -> incremental ->
// skip rather than ever exceeding the remaining quota.
type Planner struct {
	cfg      Config
	pageSize int
	budget   BudgetReader
	logger   *logrus.Logger
}

// NewPlanner creates a planner estimating costs against the upstream
// page size.
func NewPlanner(cfg Config, pageSize int, budget BudgetReader, logger *logrus.Logger) *Planner {
	if cfg.EstimatedRowsPerDay <= 0 {
		cfg.EstimatedRowsPerDay = 10
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.4
	}
	if cfg.IncrementalTailDays <= 0 {
		cfg.IncrementalTailDays = 2
	}
	if cfg.PerCallLatency <= 0 {
		cfg.PerCallLatency = 800 * time.Millisecond
	}
	if pageSize <= 0 {
		pageSize = 25
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Planner{cfg: cfg, pageSize: pageSize, budget: budget, logger: logger}
}

// CreateUpdatePlan builds the differential update plan for one series.
// Known delivery gaps are re-fetched alongside the recent tail when the
// strategy is incremental.
func (p *Planner) CreateUpdatePlan(current []models.TimelinePoint, fctx freshness.Context, state freshness.State, gaps []models.GapRecord) UpdatePlan {
	plan := UpdatePlan{Priority: state.UpdatePriority}

	switch {
	case state.Status == models.FreshnessExpired || state.Confidence < p.cfg.MinConfidence:
		plan.Strategy = StrategyFull
		plan.DataParts = []models.DateRange{fctx.DateRange}
	case state.Status == models.FreshnessFresh && !fctx.DateRange.IncludesRecent(fctx.Now):
		plan.Strategy = StrategySkip
	default:
		plan.Strategy = StrategyIncremental
		plan.DataParts = p.incrementalParts(fctx, gaps)
	}

	if plan.Strategy == StrategySkip {
		return plan
	}

	plan.EstimatedAPICalls = p.estimateCalls(plan.DataParts)

	// Read-only budget check: shrink the plan until it fits what is left.
	hourly, daily := p.budget.Remaining(fctx.AccountID)
	remaining := hourly
	if daily < remaining {
		remaining = daily
	}

	if plan.EstimatedAPICalls > remaining && plan.Strategy == StrategyFull {
		p.logger.WithFields(logrus.Fields{
			"account_id": fctx.AccountID,
			"estimated":  plan.EstimatedAPICalls,
			"remaining":  remaining,
		}).Debug("Downgrading full plan to incremental for budget")
		plan.Strategy = StrategyIncremental
		plan.DataParts = p.incrementalParts(fctx, gaps)
		plan.EstimatedAPICalls = p.estimateCalls(plan.DataParts)
	}
	if plan.EstimatedAPICalls > remaining {
		p.logger.WithFields(logrus.Fields{
			"account_id": fctx.AccountID,
			"estimated":  plan.EstimatedAPICalls,
			"remaining":  remaining,
		}).Debug("Downgrading incremental plan to skip for budget")
		plan.Strategy = StrategySkip
		plan.DataParts = nil
		plan.EstimatedAPICalls = 0
	}

	plan.EstimatedDuration = time.Duration(plan.EstimatedAPICalls) * p.cfg.PerCallLatency
	return plan
}

// incrementalParts enumerates the concrete sub-ranges to re-fetch: the
// recent tail of the range plus any known delivery gaps inside it.
func (p *Planner) incrementalParts(fctx freshness.Context, gaps []models.GapRecord) []models.DateRange {
	var parts []models.DateRange

	tailStart := fctx.DateRange.End.AddDate(0, 0, -(p.cfg.IncrementalTailDays - 1))
	if tailStart.Before(fctx.DateRange.Start) {
		tailStart = fctx.DateRange.Start
	}
	parts = append(parts, models.NewDateRange(tailStart, fctx.DateRange.End))

	for _, gap := range gaps {
		if gap.EndDate.Before(fctx.DateRange.Start) || gap.StartDate.After(fctx.DateRange.End) {
			continue
		}
		start, end := gap.StartDate, gap.EndDate
		if start.Before(fctx.DateRange.Start) {
			start = fctx.DateRange.Start
		}
		if end.After(fctx.DateRange.End) {
			end = fctx.DateRange.End
		}
		if end.Before(tailStart) {
			parts = append(parts, models.NewDateRange(start, end))
		}
	}
	return parts
}

// estimateCalls derives the page count from the expected row volume of
// each part and the upstream page size.
func (p *Planner) estimateCalls(parts []models.DateRange) int {
	calls := 0
	for _, part := range parts {
		rows := part.Days() * p.cfg.EstimatedRowsPerDay
		pages := (rows + p.pageSize - 1) / p.pageSize
		if pages < 1 {
			pages = 1
		}
		calls += pages
	}
	return calls
}
