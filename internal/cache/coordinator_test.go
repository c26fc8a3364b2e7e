package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpulse/adpulse-go/internal/freshness"
	"github.com/adpulse/adpulse-go/internal/models"
)

// setupTestRedis creates a test Redis instance using miniredis
func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})

	cleanup := func() {
		client.Close()
		s.Close()
	}

	return client, cleanup
}

type fakeLoader struct {
	mu     sync.Mutex
	calls  int
	points []models.TimelinePoint
	status models.SessionStatus
	err    error
}

func (f *fakeLoader) LoadSeries(_ context.Context, req models.SeriesRequest, _ []models.TimelinePoint) ([]models.TimelinePoint, *models.RetrievalSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	status := f.status
	if status == "" {
		status = models.SessionCompleted
	}
	session := &models.RetrievalSession{ID: "sess-1", AccountID: req.AccountID, Status: status}
	return f.points, session, nil
}

func (f *fakeLoader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEntryStore struct {
	mu       sync.Mutex
	upserts  int
	hits     map[string]int
	upserted map[string]models.CacheEntry
}

func newFakeEntryStore() *fakeEntryStore {
	return &fakeEntryStore{hits: make(map[string]int), upserted: make(map[string]models.CacheEntry)}
}

func (f *fakeEntryStore) UpsertEntry(_ context.Context, entry *models.CacheEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	f.upserted[entry.CacheKey] = *entry
	return nil
}

func (f *fakeEntryStore) IncrementHitCount(_ context.Context, cacheKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[cacheKey]++
	return nil
}

func testSeriesRequest() models.SeriesRequest {
	now := time.Now().UTC()
	return models.SeriesRequest{
		AccountID: "act_123",
		DateRange: models.NewDateRange(now.AddDate(0, 0, -30), now.AddDate(0, 0, -10)),
	}
}

func testPoints(req models.SeriesRequest) []models.TimelinePoint {
	var points []models.TimelinePoint
	for day := req.DateRange.Start; !day.After(req.DateRange.End); day = day.AddDate(0, 0, 1) {
		points = append(points, models.TimelinePoint{
			AdID:        "ad_1",
			AccountID:   req.AccountID,
			Date:        day,
			HasDelivery: true,
			FetchedAt:   time.Now().UTC(),
		})
	}
	return points
}

func newCoordinatorForTest(t *testing.T, loader *fakeLoader) (*Coordinator, *fakeEntryStore, func()) {
	t.Helper()
	client, cleanup := setupTestRedis(t)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	l1 := NewMemoryCache(5 * time.Minute)
	l2 := NewRedisSeriesCache(client, time.Hour)
	entries := newFakeEntryStore()
	evaluator := freshness.NewEvaluator(freshness.Config{
		RecentHalfLife:     time.Hour,
		OngoingHalfLife:    12 * time.Hour,
		HistoricalHalfLife: 168 * time.Hour,
	})

	coord := NewCoordinator(l1, l2, entries, loader, evaluator, nil, logger)
	return coord, entries, cleanup
}

func TestCoordinator_MissInvokesLoaderOnce(t *testing.T) {
	req := testSeriesRequest()
	loader := &fakeLoader{points: testPoints(req)}
	coord, entries, cleanup := newCoordinatorForTest(t, loader)
	defer cleanup()

	points, entry, err := coord.Get(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.callCount())
	assert.Len(t, points, req.DateRange.Days())
	require.NotNil(t, entry)
	assert.Equal(t, "sess-1", entry.DataID)
	assert.True(t, entry.SupportsDifferential)
	assert.Positive(t, entry.SizeBytes)

	entries.mu.Lock()
	assert.Equal(t, 1, entries.upserts)
	entries.mu.Unlock()
}

func TestCoordinator_MemoryHitSkipsLoader(t *testing.T) {
	req := testSeriesRequest()
	loader := &fakeLoader{points: testPoints(req)}
	coord, entries, cleanup := newCoordinatorForTest(t, loader)
	defer cleanup()

	_, _, err := coord.Get(context.Background(), req)
	require.NoError(t, err)

	points, entry, err := coord.Get(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, points, req.DateRange.Days())
	assert.Equal(t, 1, loader.callCount(), "memory hit must not reach the loader")
	assert.Equal(t, int64(1), entry.HitCount)

	entries.mu.Lock()
	assert.Equal(t, 1, entries.hits[req.Key()])
	entries.mu.Unlock()
}

func TestCoordinator_HitCountAccumulatesAcrossReads(t *testing.T) {
	req := testSeriesRequest()
	loader := &fakeLoader{points: testPoints(req)}
	coord, _, cleanup := newCoordinatorForTest(t, loader)
	defer cleanup()

	_, _, err := coord.Get(context.Background(), req)
	require.NoError(t, err)

	var entry *models.CacheEntry
	for i := 0; i < 3; i++ {
		_, entry, err = coord.Get(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), entry.HitCount)
}

func TestCoordinator_RedisHitPromotesToMemory(t *testing.T) {
	req := testSeriesRequest()
	loader := &fakeLoader{points: testPoints(req)}
	coord, _, cleanup := newCoordinatorForTest(t, loader)
	defer cleanup()

	_, _, err := coord.Get(context.Background(), req)
	require.NoError(t, err)

	// Drop the memory tier so the next read has to come from Redis.
	coord.MemoryTier().Delete(req.Key())

	points, _, err := coord.Get(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, points, req.DateRange.Days())
	assert.Equal(t, 1, loader.callCount())

	// Now it should be back in memory.
	_, _, ok := coord.MemoryTier().Get(req.Key())
	assert.True(t, ok)
}

func TestCoordinator_PendingLoadIsNotCached(t *testing.T) {
	req := testSeriesRequest()
	loader := &fakeLoader{status: models.SessionPending}
	coord, entries, cleanup := newCoordinatorForTest(t, loader)
	defer cleanup()

	_, entry, err := coord.Get(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, entry)

	// Nothing was fetched, so the result must not be labeled fresh or
	// written to either tier.
	assert.Equal(t, models.FreshnessExpired, entry.DataFreshness)
	assert.Equal(t, 0, entries.upserts)

	// The next read reaches the loader again instead of serving the
	// pending result from memory for a full TTL.
	_, _, err = coord.Get(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.callCount())
}

func TestCoordinator_LoadFailureServesStale(t *testing.T) {
	req := testSeriesRequest()
	loader := &fakeLoader{points: testPoints(req)}
	coord, _, cleanup := newCoordinatorForTest(t, loader)
	defer cleanup()

	base := time.Now().UTC()
	coord.SetClock(func() time.Time { return base })

	_, _, err := coord.Get(context.Background(), req)
	require.NoError(t, err)

	// Advance past the memory TTL and make the loader fail.
	coord.SetClock(func() time.Time { return base.Add(2 * time.Hour) })
	loader.mu.Lock()
	loader.err = context.DeadlineExceeded
	loader.mu.Unlock()

	points, entry, err := coord.Get(context.Background(), req)
	require.NoError(t, err, "a read holding a stale value must not fail")
	assert.Len(t, points, req.DateRange.Days())
	require.NotNil(t, entry)
}

func TestCoordinator_LoadFailureWithoutStaleFails(t *testing.T) {
	req := testSeriesRequest()
	loader := &fakeLoader{err: context.DeadlineExceeded}
	coord, _, cleanup := newCoordinatorForTest(t, loader)
	defer cleanup()

	_, _, err := coord.Get(context.Background(), req)
	assert.Error(t, err)
}

func TestMemoryCache_PurgeExpired(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Now().UTC()

	c.Set("a", nil, models.CacheEntry{CacheKey: "a", WrittenAt: now.Add(-2 * time.Minute)})
	c.Set("b", nil, models.CacheEntry{CacheKey: "b", WrittenAt: now})

	removed := c.PurgeExpired(now)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())

	_, _, ok := c.Get("a")
	assert.False(t, ok)
	_, _, ok = c.Get("b")
	assert.True(t, ok)
}

func TestMemoryCache_SetKeepsHitCount(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Now().UTC()

	c.Set("k", nil, models.CacheEntry{CacheKey: "k", WrittenAt: now})
	c.RecordHit("k")
	c.RecordHit("k")

	c.Set("k", nil, models.CacheEntry{CacheKey: "k", WrittenAt: now.Add(time.Second)})

	_, entry, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, int64(2), entry.HitCount)
}

func TestRedisSeriesCache_RoundTrip(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewRedisSeriesCache(client, time.Hour)
	req := testSeriesRequest()
	points := testPoints(req)
	ctx := context.Background()

	err := cache.Set(ctx, req.Key(), points, models.CacheEntry{
		CacheKey:  req.Key(),
		AccountID: req.AccountID,
		WrittenAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	got, entry, ok := cache.Get(ctx, req.Key())
	require.True(t, ok)
	assert.Len(t, got, len(points))
	assert.Equal(t, models.LayerPersistent, entry.Layer)
	assert.Equal(t, int(time.Hour.Seconds()), entry.TTLSeconds)

	stats := cache.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestRedisSeriesCache_Miss(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewRedisSeriesCache(client, time.Hour)
	_, _, ok := cache.Get(context.Background(), "absent")
	assert.False(t, ok)
	assert.Equal(t, int64(1), cache.GetStats().Misses)
}
