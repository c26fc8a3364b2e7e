package planner

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpulse/adpulse-go/internal/freshness"
	"github.com/adpulse/adpulse-go/internal/models"
)

type stubBudget struct {
	hourly, daily int
}

func (s *stubBudget) Remaining(string) (int, int) { return s.hourly, s.daily }

var plannerNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestPlanner(hourly, daily int) *Planner {
	return NewPlanner(Config{}, 25, &stubBudget{hourly: hourly, daily: daily}, logrus.New())
}

func historicalRange() models.DateRange {
	return models.NewDateRange(plannerNow.AddDate(0, 0, -60), plannerNow.AddDate(0, 0, -31))
}

func planContext(dateRange models.DateRange) freshness.Context {
	return freshness.Context{AccountID: "act_1", DateRange: dateRange, Now: plannerNow}
}

func TestFullPlanOnNoCachedCoverage(t *testing.T) {
	fctx := planContext(historicalRange())
	state := freshness.State{
		Status:         models.FreshnessExpired,
		UpdatePriority: freshness.PriorityUrgent,
		Staleness:      100,
	}

	plan := newTestPlanner(200, 4800).CreateUpdatePlan(nil, fctx, state, nil)
	assert.Equal(t, StrategyFull, plan.Strategy)
	require.Len(t, plan.DataParts, 1)
	assert.Equal(t, fctx.DateRange, plan.DataParts[0])
	// 30 days x 10 rows/day over 25-row pages.
	assert.Equal(t, 12, plan.EstimatedAPICalls)
	assert.Equal(t, freshness.PriorityUrgent, plan.Priority)
}

func TestSkipPlanWhenFresh(t *testing.T) {
	fctx := planContext(historicalRange())
	state := freshness.State{
		Status:         models.FreshnessFresh,
		UpdatePriority: freshness.PriorityLow,
		Confidence:     1.0,
	}

	plan := newTestPlanner(200, 4800).CreateUpdatePlan(nil, fctx, state, nil)
	assert.Equal(t, StrategySkip, plan.Strategy)
	assert.Zero(t, plan.EstimatedAPICalls)
	assert.Empty(t, plan.DataParts)
}

func TestFreshButOngoingRangeGetsIncrementalTail(t *testing.T) {
	dateRange := models.NewDateRange(plannerNow.AddDate(0, 0, -29), plannerNow)
	state := freshness.State{
		Status:         models.FreshnessFresh,
		UpdatePriority: freshness.PriorityHigh,
		Confidence:     1.0,
	}

	plan := newTestPlanner(200, 4800).CreateUpdatePlan(nil, planContext(dateRange), state, nil)
	assert.Equal(t, StrategyIncremental, plan.Strategy)
	require.Len(t, plan.DataParts, 1)
	assert.Equal(t, 2, plan.DataParts[0].Days())
}

func TestIncrementalIncludesKnownGaps(t *testing.T) {
	dateRange := models.NewDateRange(plannerNow.AddDate(0, 0, -29), plannerNow)
	state := freshness.State{
		Status:         models.FreshnessAging,
		UpdatePriority: freshness.PriorityHigh,
		Confidence:     0.8,
	}
	gaps := []models.GapRecord{{
		StartDate: plannerNow.AddDate(0, 0, -20),
		EndDate:   plannerNow.AddDate(0, 0, -16),
	}}

	plan := newTestPlanner(200, 4800).CreateUpdatePlan(nil, planContext(dateRange), state, gaps)
	assert.Equal(t, StrategyIncremental, plan.Strategy)
	require.Len(t, plan.DataParts, 2)
	assert.Equal(t, 5, plan.DataParts[1].Days())
}

func TestPlanNeverExceedsRemainingBudget(t *testing.T) {
	fctx := planContext(historicalRange())
	state := freshness.State{
		Status:         models.FreshnessExpired,
		UpdatePriority: freshness.PriorityUrgent,
	}

	// Full needs 12 calls, incremental 1; only 5 remain this hour.
	plan := newTestPlanner(5, 4800).CreateUpdatePlan(nil, fctx, state, nil)
	assert.Equal(t, StrategyIncremental, plan.Strategy)
	assert.LessOrEqual(t, plan.EstimatedAPICalls, 5)

	// Nothing remains: even incremental is off the table.
	plan = newTestPlanner(0, 4800).CreateUpdatePlan(nil, fctx, state, nil)
	assert.Equal(t, StrategySkip, plan.Strategy)
	assert.Zero(t, plan.EstimatedAPICalls)
}

func TestDailyBudgetAlsoCaps(t *testing.T) {
	fctx := planContext(historicalRange())
	state := freshness.State{Status: models.FreshnessExpired, UpdatePriority: freshness.PriorityUrgent}

	plan := newTestPlanner(200, 0).CreateUpdatePlan(nil, fctx, state, nil)
	assert.Equal(t, StrategySkip, plan.Strategy)
}

func TestEstimatedDurationScalesWithCalls(t *testing.T) {
	fctx := planContext(historicalRange())
	state := freshness.State{Status: models.FreshnessExpired, UpdatePriority: freshness.PriorityUrgent}

	plan := newTestPlanner(200, 4800).CreateUpdatePlan(nil, fctx, state, nil)
	assert.Equal(t, time.Duration(plan.EstimatedAPICalls)*800*time.Millisecond, plan.EstimatedDuration)
}
