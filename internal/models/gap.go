package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GapSeverity grades a delivery gap by its duration.
type GapSeverity string

const (
	GapMinor    GapSeverity = "minor"
	GapMajor    GapSeverity = "major"
	GapCritical GapSeverity = "critical"
)

// GapCause is a heuristic label for why delivery stopped.
type GapCause string

const (
	CauseBudgetExhausted    GapCause = "budget_exhausted"
	CauseAudienceSaturation GapCause = "audience_saturation"
	CauseLowEngagement      GapCause = "low_engagement"
	CauseUnknown            GapCause = "unknown"
)

// GapPrecedingMetrics averages the delivered days immediately before a gap.
type GapPrecedingMetrics struct {
	AvgSpend     decimal.Decimal `json:"avg_spend"`
	AvgCTR       float64         `json:"avg_ctr"`
	AvgFrequency float64         `json:"avg_frequency"`
}

// GapAffectedMetrics extrapolates what the gap likely cost,
// precedingMetrics scaled by the gap duration.
type GapAffectedMetrics struct {
	MissedImpressions int64           `json:"missed_impressions"`
	MissedSpend       decimal.Decimal `json:"missed_spend"`
	MissedConversions int64           `json:"missed_conversions"`
}

// GapRecord describes one contiguous run of non-delivery days.
type GapRecord struct {
	ID               string              `json:"id" db:"id"`
	AdID             string              `json:"ad_id" db:"ad_id"`
	AccountID        string              `json:"account_id" db:"account_id"`
	StartDate        time.Time           `json:"start_date" db:"start_date"`
	EndDate          time.Time           `json:"end_date" db:"end_date"`
	DurationDays     int                 `json:"duration_days" db:"duration_days"`
	Severity         GapSeverity         `json:"severity" db:"severity"`
	InferredCause    GapCause            `json:"inferred_cause" db:"inferred_cause"`
	CauseConfidence  float64             `json:"cause_confidence" db:"cause_confidence"`
	AffectedMetrics  GapAffectedMetrics  `json:"affected_metrics"`
	PrecedingMetrics GapPrecedingMetrics `json:"preceding_metrics"`
	CreatedAt        time.Time           `json:"created_at" db:"created_at"`
}
