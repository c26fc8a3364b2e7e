package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateRange represents an inclusive day-granular date range.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange builds a range with both bounds truncated to midnight UTC.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: truncateDay(start), End: truncateDay(end)}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Days returns the number of days covered by the range, inclusive.
func (r DateRange) Days() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Contains reports whether the given day falls inside the range.
func (r DateRange) Contains(day time.Time) bool {
	d := truncateDay(day)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Key returns the deterministic string form used in cache keys and the
// in-flight session registry.
func (r DateRange) Key() string {
	return fmt.Sprintf("%s_%s", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
}

// IncludesRecent reports whether the range touches today or yesterday
// relative to now. Data for those days is still being finalized upstream.
func (r DateRange) IncludesRecent(now time.Time) bool {
	today := truncateDay(now)
	yesterday := today.AddDate(0, 0, -1)
	return r.Contains(today) || r.Contains(yesterday)
}

// TrendDirection labels a metric movement against a reference value.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
	TrendNormal TrendDirection = "normal"
)

// AdMetrics holds the per-day performance metrics of a single ad.
type AdMetrics struct {
	Impressions    int64           `json:"impressions" db:"impressions"`
	Clicks         int64           `json:"clicks" db:"clicks"`
	Spend          decimal.Decimal `json:"spend" db:"spend"`
	Reach          int64           `json:"reach" db:"reach"`
	Frequency      float64         `json:"frequency" db:"frequency"`
	CTR            float64         `json:"ctr" db:"ctr"`
	CPC            decimal.Decimal `json:"cpc" db:"cpc"`
	CPM            decimal.Decimal `json:"cpm" db:"cpm"`
	Conversions    int64           `json:"conversions" db:"conversions"`
	ConversionRate float64         `json:"conversion_rate" db:"conversion_rate"`
}

// PercentageChange captures relative movement over standard lookbacks.
type PercentageChange struct {
	Daily   float64 `json:"daily"`
	Weekly  float64 `json:"weekly"`
	Monthly float64 `json:"monthly"`
}

// ComparisonFlags summarizes how a day compares to its references.
type ComparisonFlags struct {
	VsYesterday      TrendDirection   `json:"vs_yesterday"`
	VsLastWeek       TrendDirection   `json:"vs_last_week"`
	VsBaseline       TrendDirection   `json:"vs_baseline"`
	PercentageChange PercentageChange `json:"percentage_change"`
}

// TimelinePoint is one (ad, day) observation in a metric series.
// Upserts are keyed by (ad_id, date) with last-write-wins semantics.
type TimelinePoint struct {
	AdID              string          `json:"ad_id" db:"ad_id"`
	AccountID         string          `json:"account_id" db:"account_id"`
	Date              time.Time       `json:"date" db:"date"`
	HasDelivery       bool            `json:"has_delivery" db:"has_delivery"`
	DeliveryIntensity int             `json:"delivery_intensity" db:"delivery_intensity"`
	Metrics           AdMetrics       `json:"metrics"`
	Comparison        ComparisonFlags `json:"comparison_flags"`
	Anomalies         []string        `json:"anomalies,omitempty"`
	FetchedAt         time.Time       `json:"fetched_at" db:"fetched_at"`
}

// SeriesRequest represents request parameters for a metric series lookup.
type SeriesRequest struct {
	AccountID string    `json:"account_id" form:"account_id"`
	AdID      string    `json:"ad_id,omitempty" form:"ad_id"`
	DateRange DateRange `json:"date_range"`
}

// Key returns the deterministic cache/session key for the request.
func (r SeriesRequest) Key() string {
	if r.AdID != "" {
		return fmt.Sprintf("insights:%s:%s:%s", r.AccountID, r.AdID, r.DateRange.Key())
	}
	return fmt.Sprintf("insights:%s:%s", r.AccountID, r.DateRange.Key())
}
