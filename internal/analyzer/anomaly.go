package analyzer

import (
	"fmt"
	"strings"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/adpulse/adpulse-go/internal/models"
)

// AnomalyConfig holds thresholds for the anomaly detector rules.
type AnomalyConfig struct {
	MinBaselineSamples   int     `mapstructure:"min_baseline_samples"`
	FrequencySpikeRatio  float64 `mapstructure:"frequency_spike_ratio"`
	CTRCollapseRatio     float64 `mapstructure:"ctr_collapse_ratio"`
	ImpressionSpikeRatio float64 `mapstructure:"impression_spike_ratio"`
}

// AnomalyDetector flags statistical deviations of a timeline point
// against a trailing baseline window. Rules are independent: a single
// point may yield multiple anomalies of different types.
type AnomalyDetector struct {
	cfg    AnomalyConfig
	logger *logrus.Logger
	caser  cases.Caser
}

// NewAnomalyDetector creates a detector with the given rule thresholds.
func NewAnomalyDetector(cfg AnomalyConfig, logger *logrus.Logger) *AnomalyDetector {
	if cfg.MinBaselineSamples <= 0 {
		cfg.MinBaselineSamples = 3
	}
	if cfg.FrequencySpikeRatio <= 0 {
		cfg.FrequencySpikeRatio = 1.8
	}
	if cfg.CTRCollapseRatio <= 0 {
		cfg.CTRCollapseRatio = 0.5
	}
	if cfg.ImpressionSpikeRatio <= 0 {
		cfg.ImpressionSpikeRatio = 2.5
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &AnomalyDetector{cfg: cfg, logger: logger, caser: cases.Title(language.English)}
}

// baseline holds trailing-window averages for one ad.
type baseline struct {
	samples     int
	frequency   float64
	ctr         float64
	impressions float64
	spend       float64
	convRate    float64
}

// smaLast computes the trailing simple moving average over the whole
// window and returns its final value.
func smaLast(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	smaIndicator := trend.NewSmaWithPeriod[float64](len(values))
	result := helper.ChanToSlice(smaIndicator.Compute(helper.SliceToChan(values)))
	if len(result) == 0 {
		return 0
	}
	return result[len(result)-1]
}

func buildBaseline(window []models.TimelinePoint) baseline {
	b := baseline{samples: len(window)}
	if b.samples == 0 {
		return b
	}

	freq := make([]float64, 0, len(window))
	ctr := make([]float64, 0, len(window))
	impressions := make([]float64, 0, len(window))
	spend := make([]float64, 0, len(window))
	convRate := make([]float64, 0, len(window))
	for _, p := range window {
		freq = append(freq, p.Metrics.Frequency)
		ctr = append(ctr, p.Metrics.CTR)
		impressions = append(impressions, float64(p.Metrics.Impressions))
		spend = append(spend, p.Metrics.Spend.InexactFloat64())
		convRate = append(convRate, p.Metrics.ConversionRate)
	}

	b.frequency = smaLast(freq)
	b.ctr = smaLast(ctr)
	b.impressions = smaLast(impressions)
	b.spend = smaLast(spend)
	b.convRate = smaLast(convRate)
	return b
}

// Detect runs every rule over one point against its trailing baseline
// window. Below the minimum sample count no anomaly fires.
func (d *AnomalyDetector) Detect(point models.TimelinePoint, window []models.TimelinePoint) []models.AnomalyRecord {
	b := buildBaseline(window)
	if b.samples < d.cfg.MinBaselineSamples {
		return nil
	}

	var records []models.AnomalyRecord

	if rec := d.detectFrequencySpike(point, b); rec != nil {
		records = append(records, *rec)
	}
	if rec := d.detectCTRCollapse(point, b); rec != nil {
		records = append(records, *rec)
	}
	if rec := d.detectSpendWithoutConversion(point, b); rec != nil {
		records = append(records, *rec)
	}
	if rec := d.detectImpressionSpike(point, b); rec != nil {
		records = append(records, *rec)
	}

	for _, rec := range records {
		d.logger.WithFields(logrus.Fields{
			"ad_id":     rec.AdID,
			"type":      rec.Type,
			"severity":  rec.Severity,
			"deviation": rec.Metrics.DeviationFromBaseline,
		}).Debug("Detected anomaly")
	}
	return records
}

func (d *AnomalyDetector) detectFrequencySpike(point models.TimelinePoint, b baseline) *models.AnomalyRecord {
	if b.frequency <= 0 {
		return nil
	}
	deviation := point.Metrics.Frequency / b.frequency
	if deviation < d.cfg.FrequencySpikeRatio {
		return nil
	}
	rec := d.newRecord(point, b, models.AnomalyHighFrequency, deviation)
	rec.Message = fmt.Sprintf("%s: frequency %.2f is %.1fx the trailing average %.2f",
		d.humanize(models.AnomalyHighFrequency), point.Metrics.Frequency, deviation, b.frequency)
	rec.Recommendation = "Broaden the audience or lower the frequency cap before fatigue drives costs up."
	return rec
}

func (d *AnomalyDetector) detectCTRCollapse(point models.TimelinePoint, b baseline) *models.AnomalyRecord {
	if b.ctr <= 0 || point.Metrics.Impressions == 0 {
		return nil
	}
	ratio := point.Metrics.CTR / b.ctr
	if ratio > d.cfg.CTRCollapseRatio {
		return nil
	}
	// Express the deviation as how far below baseline the day landed.
	deviation := 1 / (ratio + 0.01)
	rec := d.newRecord(point, b, models.AnomalyCTRCollapse, deviation)
	rec.Message = fmt.Sprintf("%s: CTR %.3f%% fell to %.0f%% of the trailing average %.3f%%",
		d.humanize(models.AnomalyCTRCollapse), point.Metrics.CTR, ratio*100, b.ctr)
	rec.Recommendation = "Refresh the creative; falling click-through with stable delivery usually means creative fatigue."
	return rec
}

func (d *AnomalyDetector) detectSpendWithoutConversion(point models.TimelinePoint, b baseline) *models.AnomalyRecord {
	if point.Metrics.Conversions > 0 || b.convRate <= 0 {
		return nil
	}
	spend := point.Metrics.Spend.InexactFloat64()
	if b.spend <= 0 || spend < b.spend*0.5 {
		return nil
	}
	deviation := spend / b.spend
	rec := d.newRecord(point, b, models.AnomalySpendWithoutConversion, deviation+1)
	rec.Metrics.AffectedSpend = point.Metrics.Spend
	rec.Metrics.LostOpportunities = int64(float64(point.Metrics.Clicks) * b.convRate)
	rec.Message = fmt.Sprintf("%s: spent %s with zero conversions against a baseline conversion rate of %.2f%%",
		d.humanize(models.AnomalySpendWithoutConversion), point.Metrics.Spend.StringFixed(2), b.convRate)
	rec.Recommendation = "Check the conversion pixel and landing page; spend is burning without measured return."
	return rec
}

func (d *AnomalyDetector) detectImpressionSpike(point models.TimelinePoint, b baseline) *models.AnomalyRecord {
	if b.impressions <= 0 {
		return nil
	}
	deviation := float64(point.Metrics.Impressions) / b.impressions
	if deviation < d.cfg.ImpressionSpikeRatio {
		return nil
	}
	rec := d.newRecord(point, b, models.AnomalyImpressionSpike, deviation)
	rec.Message = fmt.Sprintf("%s: %d impressions is %.1fx the trailing average %.0f",
		d.humanize(models.AnomalyImpressionSpike), point.Metrics.Impressions, deviation, b.impressions)
	rec.Recommendation = "Verify pacing and bid changes; sudden delivery surges often follow an accidental budget edit."
	return rec
}

func (d *AnomalyDetector) newRecord(point models.TimelinePoint, b baseline, anomalyType models.AnomalyType, deviation float64) *models.AnomalyRecord {
	return &models.AnomalyRecord{
		ID:         uuid.New().String(),
		AdID:       point.AdID,
		AccountID:  point.AccountID,
		Type:       anomalyType,
		Severity:   severityForDeviation(deviation),
		DateRange:  models.NewDateRange(point.Date, point.Date),
		Confidence: confidenceForSamples(b.samples),
		Metrics: models.AnomalyMetrics{
			ImpactScore:           deviation,
			AffectedSpend:         decimal.Zero,
			DeviationFromBaseline: deviation,
		},
		CreatedAt: time.Now().UTC(),
	}
}

func (d *AnomalyDetector) humanize(anomalyType models.AnomalyType) string {
	return d.caser.String(strings.ReplaceAll(string(anomalyType), "_", " "))
}

// severityForDeviation scales severity with deviation magnitude.
func severityForDeviation(deviation float64) models.AnomalySeverity {
	switch {
	case deviation >= 5:
		return models.SeverityCritical
	case deviation >= 3:
		return models.SeverityHigh
	case deviation >= 2:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// confidenceForSamples scales confidence with baseline sample size,
// saturating at a 28-day window.
func confidenceForSamples(samples int) float64 {
	confidence := float64(samples) / 28.0
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0.1 {
		confidence = 0.1
	}
	return confidence
}
