package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adpulse/adpulse-go/internal/models"
	"github.com/adpulse/adpulse-go/pkg/insights"
)

const anomalyWindowDays = 28

// deriveMetrics computes the ratio metrics the upstream leaves to the
// consumer. CTR and conversion rate are percentages.
func deriveMetrics(row insights.InsightRow) models.AdMetrics {
	m := models.AdMetrics{
		Impressions: row.Impressions,
		Clicks:      row.Clicks,
		Spend:       row.Spend,
		Reach:       row.Reach,
		Frequency:   row.Frequency,
		Conversions: row.Conversions,
	}
	if row.Impressions > 0 {
		m.CTR = float64(row.Clicks) / float64(row.Impressions) * 100
		m.CPM = row.Spend.Div(decimal.NewFromInt(row.Impressions)).Mul(decimal.NewFromInt(1000)).Round(4)
	}
	if row.Clicks > 0 {
		m.CPC = row.Spend.Div(decimal.NewFromInt(row.Clicks)).Round(4)
		m.ConversionRate = float64(row.Conversions) / float64(row.Clicks) * 100
	}
	return m
}

// enrichComparisons fills the comparison flags of every point from its own
// ad's history: yesterday, same weekday last week and the trailing monthly
// average serve as references.
func enrichComparisons(points []models.TimelinePoint) []models.TimelinePoint {
	byAd := groupByAd(points)
	for _, adPoints := range byAd {
		byDay := make(map[string]*models.TimelinePoint, len(adPoints))
		for _, p := range adPoints {
			byDay[p.Date.Format("2006-01-02")] = p
		}
		for _, p := range adPoints {
			p.Comparison = comparePoint(p, byDay)
		}
	}
	return points
}

func comparePoint(p *models.TimelinePoint, byDay map[string]*models.TimelinePoint) models.ComparisonFlags {
	flags := models.ComparisonFlags{
		VsYesterday: models.TrendNormal,
		VsLastWeek:  models.TrendNormal,
		VsBaseline:  models.TrendNormal,
	}

	if ref := lookupDay(byDay, p.Date, -1); ref != nil {
		flags.VsYesterday, flags.PercentageChange.Daily = trendAgainst(p.Metrics.Impressions, float64(ref.Metrics.Impressions))
	}
	if ref := lookupDay(byDay, p.Date, -7); ref != nil {
		flags.VsLastWeek, flags.PercentageChange.Weekly = trendAgainst(p.Metrics.Impressions, float64(ref.Metrics.Impressions))
	}
	if baseline := trailingAverage(byDay, p.Date, anomalyWindowDays); baseline > 0 {
		flags.VsBaseline, flags.PercentageChange.Monthly = trendAgainst(p.Metrics.Impressions, baseline)
	}

	return flags
}

func lookupDay(byDay map[string]*models.TimelinePoint, day time.Time, offsetDays int) *models.TimelinePoint {
	return byDay[day.AddDate(0, 0, offsetDays).Format("2006-01-02")]
}

func trailingAverage(byDay map[string]*models.TimelinePoint, day time.Time, window int) float64 {
	var sum float64
	var n int
	for i := 1; i <= window; i++ {
		if ref := lookupDay(byDay, day, -i); ref != nil && ref.HasDelivery {
			sum += float64(ref.Metrics.Impressions)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// trendAgainst classifies movement against a reference. Moves under 10%
// count as stable.
func trendAgainst(current int64, reference float64) (models.TrendDirection, float64) {
	if reference <= 0 {
		return models.TrendNormal, 0
	}
	change := (float64(current) - reference) / reference * 100
	switch {
	case change >= 10:
		return models.TrendUp, change
	case change <= -10:
		return models.TrendDown, change
	default:
		return models.TrendStable, change
	}
}

func groupByAd(points []models.TimelinePoint) map[string][]*models.TimelinePoint {
	byAd := make(map[string][]*models.TimelinePoint)
	for i := range points {
		p := &points[i]
		byAd[p.AdID] = append(byAd[p.AdID], p)
	}
	for _, adPoints := range byAd {
		sort.Slice(adPoints, func(i, j int) bool {
			return adPoints[i].Date.Before(adPoints[j].Date)
		})
	}
	return byAd
}

// analyze runs the delivery, gap and anomaly analyzers over the merged
// timeline, persists their output and fills the session's delivery
// analysis. Returns the newly detected anomalies.
func (o *Orchestrator) analyze(ctx context.Context, req models.SeriesRequest, session *models.RetrievalSession, merged []models.TimelinePoint) []models.AnomalyRecord {
	byAd := groupByAd(merged)

	var allAnomalies []models.AnomalyRecord
	for adID, adPoints := range byAd {
		points := make([]models.TimelinePoint, len(adPoints))
		for i, p := range adPoints {
			points[i] = *p
		}

		_, gaps, err := o.delivery.Analyze(req.AccountID, adID, req.DateRange, points)
		if err != nil {
			o.logger.WithField("ad_id", adID).WithError(err).Warn("Delivery analysis rejected merged timeline")
			continue
		}
		if err := o.gaps.ReplaceGaps(ctx, adID, req.DateRange, gaps); err != nil {
			o.logger.WithField("ad_id", adID).WithError(err).Warn("Failed to persist delivery gaps")
		}

		anomalies := o.detectAnomalies(points)
		allAnomalies = append(allAnomalies, anomalies...)
		flagAnomalies(adPoints, anomalies)
	}

	if len(allAnomalies) > 0 {
		if err := o.anomalies.InsertAnomalies(ctx, allAnomalies); err != nil {
			o.logger.WithField("account_id", req.AccountID).WithError(err).Warn("Failed to persist anomalies")
		}
	}

	session.DeliveryAnalysis = o.sessionAnalysis(req, merged)
	return allAnomalies
}

// detectAnomalies runs the detector point by point with a trailing window
// of the same ad's history.
func (o *Orchestrator) detectAnomalies(points []models.TimelinePoint) []models.AnomalyRecord {
	var anomalies []models.AnomalyRecord
	for i := range points {
		start := i - anomalyWindowDays
		if start < 0 {
			start = 0
		}
		anomalies = append(anomalies, o.detector.Detect(points[i], points[start:i])...)
	}
	return anomalies
}

func flagAnomalies(adPoints []*models.TimelinePoint, anomalies []models.AnomalyRecord) {
	if len(anomalies) == 0 {
		return
	}
	byDay := make(map[string][]string)
	for _, a := range anomalies {
		key := a.DateRange.End.Format("2006-01-02")
		byDay[key] = append(byDay[key], string(a.Type))
	}
	for _, p := range adPoints {
		if types, ok := byDay[p.Date.Format("2006-01-02")]; ok {
			p.Anomalies = types
		}
	}
}

// sessionAnalysis aggregates delivery across all ads: a day counts as
// delivered when any ad delivered on it.
func (o *Orchestrator) sessionAnalysis(req models.SeriesRequest, merged []models.TimelinePoint) *models.DeliveryAnalysis {
	analysis := &models.DeliveryAnalysis{
		TotalRequestedDays: req.DateRange.Days(),
		DeliveryPattern:    models.PatternNone,
	}
	if analysis.TotalRequestedDays == 0 {
		return analysis
	}

	deliveredDays := make(map[string]time.Time)
	for _, p := range merged {
		if p.HasDelivery {
			deliveredDays[p.Date.Format("2006-01-02")] = p.Date
		}
	}

	analysis.ActualDeliveryDays = len(deliveredDays)
	analysis.DeliveryRatio = float64(analysis.ActualDeliveryDays) / float64(analysis.TotalRequestedDays)

	for _, day := range deliveredDays {
		day := day
		if analysis.FirstDeliveryDate == nil || day.Before(*analysis.FirstDeliveryDate) {
			analysis.FirstDeliveryDate = &day
		}
		if analysis.LastDeliveryDate == nil || day.After(*analysis.LastDeliveryDate) {
			analysis.LastDeliveryDate = &day
		}
	}

	switch {
	case analysis.DeliveryRatio >= 0.9:
		analysis.DeliveryPattern = models.PatternContinuous
	case analysis.DeliveryRatio >= 0.3:
		analysis.DeliveryPattern = models.PatternIntermittent
	case analysis.DeliveryRatio > 0:
		analysis.DeliveryPattern = models.PatternSparse
	}

	return analysis
}
