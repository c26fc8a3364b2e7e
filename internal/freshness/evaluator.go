package freshness

import (
	"math"
	"time"

	"github.com/adpulse/adpulse-go/internal/models"
)

// UpdatePriority ranks how urgently cached data should be refreshed.
type UpdatePriority string

const (
	PriorityLow    UpdatePriority = "low"
	PriorityNormal UpdatePriority = "normal"
	PriorityHigh   UpdatePriority = "high"
	PriorityUrgent UpdatePriority = "urgent"
)

// Context carries the inputs of a freshness evaluation. Now is explicit
// so the evaluation stays a pure function of its inputs.
type Context struct {
	AccountID   string
	DateRange   models.DateRange
	LastFetched time.Time
	Now         time.Time
}

// State is the result of a freshness evaluation.
type State struct {
	Status         models.FreshnessLabel `json:"status"`
	UpdatePriority UpdatePriority        `json:"update_priority"`
	Staleness      float64               `json:"staleness"`
	Confidence     float64               `json:"confidence"`
}

// Config holds the staleness half-lives per range recency class.
type Config struct {
	RecentHalfLife     time.Duration `mapstructure:"recent_half_life"`
	OngoingHalfLife    time.Duration `mapstructure:"ongoing_half_life"`
	HistoricalHalfLife time.Duration `mapstructure:"historical_half_life"`
}

// Evaluator scores how stale a cached series is and how urgently it
// should be refreshed. Recent and ongoing ranges go stale faster than
// closed historical ranges, since upstream keeps finalizing delivery
// data for the last day or two.
type Evaluator struct {
	cfg Config
}

// NewEvaluator creates a freshness evaluator.
func NewEvaluator(cfg Config) *Evaluator {
	if cfg.RecentHalfLife <= 0 {
		cfg.RecentHalfLife = time.Hour
	}
	if cfg.OngoingHalfLife <= 0 {
		cfg.OngoingHalfLife = 12 * time.Hour
	}
	if cfg.HistoricalHalfLife <= 0 {
		cfg.HistoricalHalfLife = 7 * 24 * time.Hour
	}
	return &Evaluator{cfg: cfg}
}

// Evaluate scores the staleness of a series. Pure: identical inputs
// always produce identical output.
func (e *Evaluator) Evaluate(series []models.TimelinePoint, ctx Context) State {
	state := State{
		Confidence: completeness(series, ctx.DateRange),
	}

	if ctx.LastFetched.IsZero() {
		state.Staleness = 100
		state.Status = models.FreshnessExpired
		state.UpdatePriority = PriorityUrgent
		return state
	}

	age := ctx.Now.Sub(ctx.LastFetched)
	if age < 0 {
		age = 0
	}

	halfLife := e.halfLifeFor(ctx)
	// Exponential saturation toward 100: strictly increasing in age.
	state.Staleness = 100 * (1 - math.Exp2(-float64(age)/float64(halfLife)))
	state.Status = statusFor(state.Staleness)
	state.UpdatePriority = priorityFor(state.Status, ctx)
	return state
}

func (e *Evaluator) halfLifeFor(ctx Context) time.Duration {
	if ctx.DateRange.IncludesRecent(ctx.Now) {
		return e.cfg.RecentHalfLife
	}
	weekAgo := ctx.Now.AddDate(0, 0, -7)
	if ctx.DateRange.End.After(weekAgo) {
		return e.cfg.OngoingHalfLife
	}
	return e.cfg.HistoricalHalfLife
}

func statusFor(staleness float64) models.FreshnessLabel {
	switch {
	case staleness < 25:
		return models.FreshnessFresh
	case staleness < 50:
		return models.FreshnessAging
	case staleness < 80:
		return models.FreshnessStale
	default:
		return models.FreshnessExpired
	}
}

// priorityFor derives the update priority from the status bucket. A
// range touching today or yesterday is always at least high priority
// regardless of score: same-day data is the most volatile.
func priorityFor(status models.FreshnessLabel, ctx Context) UpdatePriority {
	var priority UpdatePriority
	switch status {
	case models.FreshnessFresh:
		priority = PriorityLow
	case models.FreshnessAging:
		priority = PriorityNormal
	case models.FreshnessStale:
		priority = PriorityHigh
	default:
		priority = PriorityUrgent
	}

	if ctx.DateRange.IncludesRecent(ctx.Now) && (priority == PriorityLow || priority == PriorityNormal) {
		priority = PriorityHigh
	}
	return priority
}

// completeness measures how much of the requested range the series
// already covers, independent of staleness.
func completeness(series []models.TimelinePoint, dateRange models.DateRange) float64 {
	total := dateRange.Days()
	if total == 0 {
		return 0
	}
	seen := make(map[string]bool, len(series))
	for _, p := range series {
		if dateRange.Contains(p.Date) {
			seen[p.Date.Format("2006-01-02")] = true
		}
	}
	return float64(len(seen)) / float64(total)
}
