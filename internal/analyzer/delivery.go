package analyzer

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/adpulse/adpulse-go/internal/models"
	"github.com/adpulse/adpulse-go/internal/utils"
)

// Config holds thresholds for the delivery and gap analysis.
type Config struct {
	MinGapDays          int `mapstructure:"min_gap_days"`
	PrecedingWindowDays int `mapstructure:"preceding_window_days"`
}

// DeliveryAnalyzer classifies per-day delivery presence over a date
// range and detects contiguous non-delivery gaps.
type DeliveryAnalyzer struct {
	cfg    Config
	logger *logrus.Logger
}

// NewDeliveryAnalyzer creates a delivery analyzer with the given thresholds.
func NewDeliveryAnalyzer(cfg Config, logger *logrus.Logger) *DeliveryAnalyzer {
	if cfg.MinGapDays <= 0 {
		cfg.MinGapDays = 2
	}
	if cfg.PrecedingWindowDays <= 0 {
		cfg.PrecedingWindowDays = 7
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &DeliveryAnalyzer{cfg: cfg, logger: logger}
}

// DeliveryIntensityFor buckets a day's impressions into an ordinal
// intensity: 0 none, 1 light, 2 moderate, 3 heavy.
func DeliveryIntensityFor(impressions int64) int {
	switch {
	case impressions <= 0:
		return 0
	case impressions < 1000:
		return 1
	case impressions < 10000:
		return 2
	default:
		return 3
	}
}

// Analyze walks the full requested range in date order and produces the
// delivery analysis plus zero or more gap records for one ad. Points
// must be ordered by strictly increasing date; a duplicate or
// out-of-order date is an input-contract violation.
func (a *DeliveryAnalyzer) Analyze(accountID, adID string, dateRange models.DateRange, points []models.TimelinePoint) (models.DeliveryAnalysis, []models.GapRecord, error) {
	analysis := models.DeliveryAnalysis{
		TotalRequestedDays: dateRange.Days(),
	}

	byDate := make(map[time.Time]models.TimelinePoint, len(points))
	var prev time.Time
	for i, p := range points {
		day := time.Date(p.Date.Year(), p.Date.Month(), p.Date.Day(), 0, 0, 0, 0, time.UTC)
		if i > 0 && !day.After(prev) {
			return analysis, nil, utils.NewValidationErrorf(
				"timeline for ad %s is not strictly date-ordered at %s", adID, day.Format("2006-01-02"))
		}
		prev = day
		byDate[day] = p
	}

	var gaps []models.GapRecord
	var delivered []models.TimelinePoint
	gapRun := 0
	var gapStart time.Time

	flushGap := func(endExclusive time.Time) {
		if gapRun >= a.cfg.MinGapDays {
			gaps = append(gaps, a.buildGap(accountID, adID, gapStart, endExclusive.AddDate(0, 0, -1), gapRun, delivered))
		}
		gapRun = 0
	}

	for day := dateRange.Start; !day.After(dateRange.End); day = day.AddDate(0, 0, 1) {
		point, present := byDate[day]
		if present && point.HasDelivery {
			flushGap(day)
			analysis.ActualDeliveryDays++
			if analysis.FirstDeliveryDate == nil {
				first := day
				analysis.FirstDeliveryDate = &first
			}
			last := day
			analysis.LastDeliveryDate = &last
			delivered = append(delivered, point)
			continue
		}
		if gapRun == 0 {
			gapStart = day
		}
		gapRun++
	}
	flushGap(dateRange.End.AddDate(0, 0, 1))

	if analysis.TotalRequestedDays > 0 {
		analysis.DeliveryRatio = float64(analysis.ActualDeliveryDays) / float64(analysis.TotalRequestedDays)
	}
	analysis.DeliveryPattern = patternFor(analysis.DeliveryRatio)

	return analysis, gaps, nil
}

func patternFor(ratio float64) models.DeliveryPattern {
	switch {
	case ratio >= 0.9:
		return models.PatternContinuous
	case ratio >= 0.3:
		return models.PatternIntermittent
	case ratio > 0:
		return models.PatternSparse
	default:
		return models.PatternNone
	}
}

func (a *DeliveryAnalyzer) buildGap(accountID, adID string, start, end time.Time, durationDays int, delivered []models.TimelinePoint) models.GapRecord {
	gap := models.GapRecord{
		ID:           uuid.New().String(),
		AdID:         adID,
		AccountID:    accountID,
		StartDate:    start,
		EndDate:      end,
		DurationDays: durationDays,
		Severity:     gapSeverityFor(durationDays),
		CreatedAt:    time.Now().UTC(),
	}

	// Average the last K delivered days before the gap.
	window := delivered
	if len(window) > a.cfg.PrecedingWindowDays {
		window = window[len(window)-a.cfg.PrecedingWindowDays:]
	}
	if len(window) == 0 {
		gap.InferredCause = models.CauseUnknown
		gap.CauseConfidence = 0.2
		return gap
	}

	var spend decimal.Decimal
	var ctr, freq float64
	var impressions, conversions int64
	for _, p := range window {
		spend = spend.Add(p.Metrics.Spend)
		ctr += p.Metrics.CTR
		freq += p.Metrics.Frequency
		impressions += p.Metrics.Impressions
		conversions += p.Metrics.Conversions
	}
	n := int64(len(window))
	gap.PrecedingMetrics = models.GapPrecedingMetrics{
		AvgSpend:     spend.Div(decimal.NewFromInt(n)),
		AvgCTR:       ctr / float64(n),
		AvgFrequency: freq / float64(n),
	}

	days := decimal.NewFromInt(int64(durationDays))
	gap.AffectedMetrics = models.GapAffectedMetrics{
		MissedImpressions: (impressions / n) * int64(durationDays),
		MissedSpend:       gap.PrecedingMetrics.AvgSpend.Mul(days),
		MissedConversions: (conversions / n) * int64(durationDays),
	}

	gap.InferredCause, gap.CauseConfidence = inferCause(gap.PrecedingMetrics)

	a.logger.WithFields(logrus.Fields{
		"ad_id":    adID,
		"start":    start.Format("2006-01-02"),
		"duration": durationDays,
		"severity": gap.Severity,
		"cause":    gap.InferredCause,
	}).Debug("Detected delivery gap")

	return gap
}

func gapSeverityFor(durationDays int) models.GapSeverity {
	switch {
	case durationDays < 3:
		return models.GapMinor
	case durationDays < 7:
		return models.GapMajor
	default:
		return models.GapCritical
	}
}

// inferCause applies rule-based heuristics over the metrics preceding a
// gap. High frequency before the stop suggests the audience was worn
// out; healthy engagement with meaningful spend suggests the budget ran
// dry; weak engagement suggests the platform throttled delivery.
func inferCause(m models.GapPrecedingMetrics) (models.GapCause, float64) {
	switch {
	case m.AvgFrequency >= 3.5:
		return models.CauseAudienceSaturation, 0.7
	case m.AvgCTR >= 0.5 && m.AvgSpend.GreaterThan(decimal.NewFromInt(10)):
		return models.CauseBudgetExhausted, 0.6
	case m.AvgCTR < 0.2:
		return models.CauseLowEngagement, 0.5
	default:
		return models.CauseUnknown, 0.3
	}
}
