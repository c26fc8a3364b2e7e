package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AnomalyType identifies the detector rule that produced a record.
type AnomalyType string

const (
	AnomalyHighFrequency          AnomalyType = "high_frequency"
	AnomalyCTRCollapse            AnomalyType = "ctr_collapse"
	AnomalySpendWithoutConversion AnomalyType = "spend_without_conversion"
	AnomalyImpressionSpike        AnomalyType = "impression_spike"
)

// AnomalySeverity grades how severe a detected deviation is.
type AnomalySeverity string

const (
	SeverityLow      AnomalySeverity = "low"
	SeverityMedium   AnomalySeverity = "medium"
	SeverityHigh     AnomalySeverity = "high"
	SeverityCritical AnomalySeverity = "critical"
)

// AnomalyMetrics quantifies the impact of an anomaly.
type AnomalyMetrics struct {
	ImpactScore           float64         `json:"impact_score"`
	AffectedSpend         decimal.Decimal `json:"affected_spend"`
	LostOpportunities     int64           `json:"lost_opportunities"`
	DeviationFromBaseline float64         `json:"deviation_from_baseline"`
}

// AnomalyRecord is immutable once created by the detector. The Resolved
// flag may be set externally but is never re-derived.
type AnomalyRecord struct {
	ID             string          `json:"id" db:"id"`
	AdID           string          `json:"ad_id" db:"ad_id"`
	AccountID      string          `json:"account_id" db:"account_id"`
	Type           AnomalyType     `json:"type" db:"type"`
	Severity       AnomalySeverity `json:"severity" db:"severity"`
	DateRange      DateRange       `json:"date_range"`
	Confidence     float64         `json:"confidence" db:"confidence"`
	Metrics        AnomalyMetrics  `json:"metrics"`
	Message        string          `json:"message" db:"message"`
	Recommendation string          `json:"recommendation" db:"recommendation"`
	Resolved       bool            `json:"resolved" db:"resolved"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}
