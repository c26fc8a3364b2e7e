package analyzer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpulse/adpulse-go/internal/models"
)

func newTestDetector() *AnomalyDetector {
	return NewAnomalyDetector(AnomalyConfig{}, logrus.New())
}

func baselineWindow(n int) []models.TimelinePoint {
	window := make([]models.TimelinePoint, 0, n)
	for i := 0; i < n; i++ {
		p := deliveredPoint(i)
		p.Metrics.ConversionRate = 5.0
		window = append(window, p)
	}
	return window
}

func TestDetectFrequencySpike(t *testing.T) {
	point := deliveredPoint(10)
	point.Metrics.Frequency = 6.0 // baseline 2.0 -> 3x

	records := newTestDetector().Detect(point, baselineWindow(7))
	require.NotEmpty(t, records)

	var found *models.AnomalyRecord
	for i := range records {
		if records[i].Type == models.AnomalyHighFrequency {
			found = &records[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, models.SeverityHigh, found.Severity)
	assert.InDelta(t, 3.0, found.Metrics.DeviationFromBaseline, 1e-9)
	assert.Contains(t, found.Message, "High Frequency")
}

func TestDetectCTRCollapse(t *testing.T) {
	point := deliveredPoint(10)
	point.Metrics.CTR = 0.4 // baseline 2.0 -> 20% of baseline

	records := newTestDetector().Detect(point, baselineWindow(7))

	var found bool
	for _, rec := range records {
		if rec.Type == models.AnomalyCTRCollapse {
			found = true
			assert.NotEmpty(t, rec.Recommendation)
		}
	}
	assert.True(t, found)
}

func TestDetectSpendWithoutConversion(t *testing.T) {
	point := deliveredPoint(10)
	point.Metrics.Conversions = 0
	point.Metrics.Spend = decimal.NewFromInt(40)

	records := newTestDetector().Detect(point, baselineWindow(7))

	var found *models.AnomalyRecord
	for i := range records {
		if records[i].Type == models.AnomalySpendWithoutConversion {
			found = &records[i]
		}
	}
	require.NotNil(t, found)
	assert.True(t, found.Metrics.AffectedSpend.Equal(decimal.NewFromInt(40)))
}

func TestNoAnomalyBelowMinimumSamples(t *testing.T) {
	point := deliveredPoint(10)
	point.Metrics.Frequency = 20.0

	records := newTestDetector().Detect(point, baselineWindow(2))
	assert.Empty(t, records)
}

func TestNormalDayProducesNoAnomalies(t *testing.T) {
	records := newTestDetector().Detect(deliveredPoint(10), baselineWindow(14))
	assert.Empty(t, records)
}

func TestRulesAreIndependentlyComposable(t *testing.T) {
	point := deliveredPoint(10)
	point.Metrics.Frequency = 6.0
	point.Metrics.Impressions = 50000
	point.Metrics.CTR = 0.2

	records := newTestDetector().Detect(point, baselineWindow(14))

	types := make(map[models.AnomalyType]bool)
	for _, rec := range records {
		types[rec.Type] = true
	}
	assert.True(t, types[models.AnomalyHighFrequency])
	assert.True(t, types[models.AnomalyImpressionSpike])
	assert.True(t, types[models.AnomalyCTRCollapse])
}

func TestConfidenceScalesWithSampleSize(t *testing.T) {
	spike := func(n int) models.AnomalyRecord {
		point := deliveredPoint(40)
		point.Metrics.Frequency = 6.0
		records := newTestDetector().Detect(point, baselineWindow(n))
		require.NotEmpty(t, records)
		return records[0]
	}

	small := spike(4)
	large := spike(28)
	assert.Less(t, small.Confidence, large.Confidence)
	assert.Equal(t, 1.0, large.Confidence)
}

func TestSeverityScalesWithDeviation(t *testing.T) {
	assert.Equal(t, models.SeverityLow, severityForDeviation(1.9))
	assert.Equal(t, models.SeverityMedium, severityForDeviation(2.5))
	assert.Equal(t, models.SeverityHigh, severityForDeviation(3.5))
	assert.Equal(t, models.SeverityCritical, severityForDeviation(7.0))
}
