package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpulse/adpulse-go/internal/analyzer"
	"github.com/adpulse/adpulse-go/internal/cache"
	"github.com/adpulse/adpulse-go/internal/freshness"
	"github.com/adpulse/adpulse-go/internal/models"
	"github.com/adpulse/adpulse-go/internal/orchestrator"
	"github.com/adpulse/adpulse-go/internal/planner"
	"github.com/adpulse/adpulse-go/internal/ratelimit"
	"github.com/adpulse/adpulse-go/pkg/insights"
)

type stubAPI struct {
	mu    sync.Mutex
	calls int
	rows  []insights.InsightRow
}

func (s *stubAPI) FetchPage(_ context.Context, _ *insights.PageRequest) (*insights.InsightsPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &insights.InsightsPage{
		Rows:   s.rows,
		Paging: insights.Paging{Page: 1, TotalPages: 1},
	}, nil
}

func (s *stubAPI) PageSize() int { return 25 }

func (s *stubAPI) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubStores struct {
	mu       sync.Mutex
	sessions map[string]*models.RetrievalSession
	points   map[string]models.TimelinePoint
}

func newStubStores() *stubStores {
	return &stubStores{
		sessions: make(map[string]*models.RetrievalSession),
		points:   make(map[string]models.TimelinePoint),
	}
}

func (s *stubStores) CreateSession(_ context.Context, session *models.RetrievalSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *stubStores) UpdateSession(_ context.Context, session *models.RetrievalSession) error {
	return s.CreateSession(nil, session)
}

func (s *stubStores) GetSession(_ context.Context, id string) (*models.RetrievalSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id], nil
}

func (s *stubStores) GetLastCompletedSession(_ context.Context, accountID string, dateRange models.DateRange) (*models.RetrievalSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.RetrievalSession
	for _, sess := range s.sessions {
		if sess.AccountID == accountID && sess.Status == models.SessionCompleted &&
			sess.DateRange.Key() == dateRange.Key() {
			if latest == nil || sess.UpdatedAt.After(latest.UpdatedAt) {
				latest = sess
			}
		}
	}
	return latest, nil
}

func (s *stubStores) UpsertPoints(_ context.Context, points []models.TimelinePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points[p.AdID+":"+p.Date.Format("2006-01-02")] = p
	}
	return nil
}

func (s *stubStores) GetTimeline(_ context.Context, accountID, adID string, dateRange models.DateRange) ([]models.TimelinePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TimelinePoint
	for _, p := range s.points {
		if p.AccountID == accountID && p.AdID == adID && dateRange.Contains(p.Date) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubStores) GetAccountTimeline(_ context.Context, accountID string, dateRange models.DateRange) ([]models.TimelinePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TimelinePoint
	for _, p := range s.points {
		if p.AccountID == accountID && dateRange.Contains(p.Date) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubStores) ReplaceGaps(_ context.Context, _ string, _ models.DateRange, _ []models.GapRecord) error {
	return nil
}

func (s *stubStores) GetGaps(_ context.Context, _, _ string) ([]models.GapRecord, error) {
	return nil, nil
}

func (s *stubStores) InsertAnomalies(_ context.Context, _ []models.AnomalyRecord) error {
	return nil
}

func (s *stubStores) GetActiveAnomalies(_ context.Context, _ string, _ int) ([]models.AnomalyRecord, error) {
	return nil, nil
}

type stubEntryStore struct{}

func (stubEntryStore) UpsertEntry(context.Context, *models.CacheEntry) error { return nil }

func (stubEntryStore) IncrementHitCount(context.Context, string) error { return nil }

func newEngineForTest(t *testing.T, api *stubAPI) (*Engine, *stubStores, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	stores := newStubStores()
	budget := ratelimit.NewBudgetTracker(ratelimit.Config{HourlyQuota: 100, DailyQuota: 1000}, logger)
	evaluator := freshness.NewEvaluator(freshness.Config{})
	pl := planner.NewPlanner(planner.Config{}, api.PageSize(), budget, logger)

	orch := orchestrator.New(
		api, budget, stores, stores, stores, stores,
		analyzer.NewDeliveryAnalyzer(analyzer.Config{}, logger),
		analyzer.NewAnomalyDetector(analyzer.AnomalyConfig{}, logger),
		nil, logger,
	)

	monitor := NewPerformanceMonitor(budget, nil, nil, logger)
	engine := NewEngine(orch, evaluator, pl, stores, stores, stores, monitor, logger)

	coordinator := cache.NewCoordinator(
		cache.NewMemoryCache(5*time.Minute),
		cache.NewRedisSeriesCache(redisClient, time.Hour),
		stubEntryStore{},
		engine,
		evaluator,
		monitor,
		logger,
	)
	engine.AttachCoordinator(coordinator)

	cleanup := func() {
		redisClient.Close()
		mr.Close()
	}
	return engine, stores, cleanup
}

func historicalRange() models.DateRange {
	end := time.Now().UTC().AddDate(0, 0, -10)
	return models.NewDateRange(end.AddDate(0, 0, -4), end)
}

func rowsFor(dateRange models.DateRange) []insights.InsightRow {
	var rows []insights.InsightRow
	for day := dateRange.Start; !day.After(dateRange.End); day = day.AddDate(0, 0, 1) {
		rows = append(rows, insights.InsightRow{
			AdID:        "ad_1",
			AccountID:   "act_123",
			Date:        day.Format("2006-01-02"),
			Impressions: 5000,
			Clicks:      120,
			Spend:       decimal.NewFromInt(42),
		})
	}
	return rows
}

func TestEngine_RequestSeriesFetchesThenServesFromCache(t *testing.T) {
	dateRange := historicalRange()
	api := &stubAPI{rows: rowsFor(dateRange)}
	engine, _, cleanup := newEngineForTest(t, api)
	defer cleanup()

	req := models.SeriesRequest{AccountID: "act_123", DateRange: dateRange}

	points, entry, err := engine.RequestSeries(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, api.callCount())
	assert.Len(t, points, dateRange.Days())
	require.NotNil(t, entry)

	// Second request must be a pure cache hit.
	points, entry, err = engine.RequestSeries(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, api.callCount(), "a cache hit must not reach the upstream API")
	assert.Len(t, points, dateRange.Days())
	assert.Equal(t, int64(1), entry.HitCount)

	// The session behind the fetch is queryable.
	session, err := engine.GetSessionStatus(context.Background(), entry.DataID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, models.SessionCompleted, session.Status)
	assert.True(t, session.IsTerminal())
}

func TestEngine_RequestSeriesValidatesInput(t *testing.T) {
	api := &stubAPI{}
	engine, _, cleanup := newEngineForTest(t, api)
	defer cleanup()

	_, _, err := engine.RequestSeries(context.Background(), models.SeriesRequest{})
	assert.Error(t, err)

	bad := models.SeriesRequest{
		AccountID: "act_123",
		DateRange: models.NewDateRange(time.Now(), time.Now().AddDate(0, 0, -5)),
	}
	_, _, err = engine.RequestSeries(context.Background(), bad)
	assert.Error(t, err)
	assert.Equal(t, 0, api.callCount())
}
