package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adpulse/adpulse-go/internal/freshness"
	"github.com/adpulse/adpulse-go/internal/models"
)

// Loader produces a series when no cache tier can serve it. Implemented by
// the engine service, which runs the freshness/planner/orchestrator chain.
// A budget-denied request is not an error: the loader returns a pending
// session and whatever points are already durable.
type Loader interface {
	LoadSeries(ctx context.Context, req models.SeriesRequest, base []models.TimelinePoint) ([]models.TimelinePoint, *models.RetrievalSession, error)
}

// EntryStore persists cache entry metadata, including hit counts that
// survive payload replacement.
type EntryStore interface {
	UpsertEntry(ctx context.Context, entry *models.CacheEntry) error
	IncrementHitCount(ctx context.Context, cacheKey string) error
}

// Recorder receives the coordinator's per-layer timing and hit/miss
// observations. The performance monitor implements it.
type Recorder interface {
	ObserveLookup(layer models.CacheLayer, duration time.Duration, hit bool)
	ObserveLoad(duration time.Duration, failed bool)
	RecordSavedCalls(n int)
}

// NopRecorder discards all observations.
type NopRecorder struct{}

func (NopRecorder) ObserveLookup(models.CacheLayer, time.Duration, bool) {}
func (NopRecorder) ObserveLoad(time.Duration, bool)                     {}
func (NopRecorder) RecordSavedCalls(int)                                {}

// Coordinator arbitrates series lookups across the memory tier, the Redis
// tier and the loader. It is the only component that feeds the performance
// recorder's cache counters.
type Coordinator struct {
	l1        *MemoryCache
	l2        *RedisSeriesCache
	entries   EntryStore
	loader    Loader
	evaluator *freshness.Evaluator
	recorder  Recorder
	logger    *logrus.Logger
	now       func() time.Time

	mu         sync.Mutex
	refreshing map[string]bool
}

// NewCoordinator wires the cache tiers together. recorder may be nil.
func NewCoordinator(l1 *MemoryCache, l2 *RedisSeriesCache, entries EntryStore, loader Loader, evaluator *freshness.Evaluator, recorder Recorder, logger *logrus.Logger) *Coordinator {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Coordinator{
		l1:         l1,
		l2:         l2,
		entries:    entries,
		loader:     loader,
		evaluator:  evaluator,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
		refreshing: make(map[string]bool),
	}
}

// SetClock overrides the time source for tests.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns the series for a request, consulting memory first, Redis
// second and the loader last. A hit on a stale entry still returns the
// cached value; the refresh runs in the background unless the entry has
// expired outright.
func (c *Coordinator) Get(ctx context.Context, req models.SeriesRequest) ([]models.TimelinePoint, *models.CacheEntry, error) {
	key := req.Key()
	now := c.now()

	start := now
	points, entry, ok := c.l1.Get(key)
	c.recorder.ObserveLookup(models.LayerMemory, time.Since(start), ok)
	if ok && !entry.Expired(now) {
		c.recordHit(ctx, key, entry)
		c.maybeRefresh(req, points, entry)
		return points, entry, nil
	}

	start = c.now()
	l2Points, l2Entry, l2OK := c.l2.Get(ctx, key)
	c.recorder.ObserveLookup(models.LayerPersistent, time.Since(start), l2OK)
	if l2OK && !l2Entry.Expired(now) {
		c.l1.Set(key, l2Points, *l2Entry)
		c.recordHit(ctx, key, l2Entry)
		c.maybeRefresh(req, l2Points, l2Entry)
		return l2Points, l2Entry, nil
	}

	// Both tiers missed or expired. Keep the best stale copy around so a
	// failed load can still serve something.
	stalePoints, staleEntry := points, entry
	if staleEntry == nil && l2OK {
		stalePoints, staleEntry = l2Points, l2Entry
	}

	loaded, loadedEntry, err := c.load(ctx, req, stalePoints)
	if err != nil {
		if staleEntry != nil {
			c.logger.WithFields(logrus.Fields{
				"cache_key": key,
				"error":     err.Error(),
			}).Warn("Series load failed, serving stale cached value")
			return stalePoints, staleEntry, nil
		}
		return nil, nil, err
	}

	return loaded, loadedEntry, nil
}

// Invalidate drops a key from both cache tiers.
func (c *Coordinator) Invalidate(ctx context.Context, req models.SeriesRequest) {
	key := req.Key()
	c.l1.Delete(key)
	if err := c.l2.Delete(ctx, key); err != nil {
		c.logger.WithField("cache_key", key).WithError(err).Warn("Failed to invalidate persistent cache entry")
	}
}

// MemoryTier exposes the L1 cache for the janitor's expiry sweep.
func (c *Coordinator) MemoryTier() *MemoryCache {
	return c.l1
}

// recordHit counts a hit in both the in-memory entry and the durable
// metadata row. Hits count regardless of staleness.
func (c *Coordinator) recordHit(ctx context.Context, key string, entry *models.CacheEntry) {
	entry.HitCount++
	c.l1.RecordHit(key)
	c.recorder.RecordSavedCalls(1)
	if err := c.entries.IncrementHitCount(ctx, key); err != nil {
		c.logger.WithField("cache_key", key).WithError(err).Debug("Failed to persist cache hit count")
	}
}

// maybeRefresh schedules a background reload for stale-but-served entries.
// Urgent freshness states refresh immediately in the background as well;
// the caller already has a value, so nothing blocks.
func (c *Coordinator) maybeRefresh(req models.SeriesRequest, points []models.TimelinePoint, entry *models.CacheEntry) {
	state := c.evaluator.Evaluate(points, freshness.Context{
		AccountID:   req.AccountID,
		DateRange:   req.DateRange,
		LastFetched: entry.WrittenAt,
		Now:         c.now(),
	})
	if state.Status == models.FreshnessFresh {
		return
	}

	key := req.Key()
	c.mu.Lock()
	if c.refreshing[key] {
		c.mu.Unlock()
		return
	}
	c.refreshing[key] = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.refreshing, key)
			c.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if _, _, err := c.load(ctx, req, points); err != nil {
			c.logger.WithFields(logrus.Fields{
				"cache_key": key,
				"priority":  string(state.UpdatePriority),
				"error":     err.Error(),
			}).Warn("Background cache refresh failed")
		}
	}()
}

// load runs the loader and writes the result back into both tiers. A
// persistent-tier write failure degrades to memory-only caching; it never
// fails the read.
func (c *Coordinator) load(ctx context.Context, req models.SeriesRequest, base []models.TimelinePoint) ([]models.TimelinePoint, *models.CacheEntry, error) {
	start := c.now()
	points, session, err := c.loader.LoadSeries(ctx, req, base)
	c.recorder.ObserveLoad(time.Since(start), err != nil)
	if err != nil {
		return nil, nil, err
	}

	now := c.now()
	// A budget-denied load returns a pending session without fetching
	// anything. Label the data by when it was really fetched, not by now.
	pending := session != nil && session.Status == models.SessionPending
	lastFetched := now
	if pending {
		lastFetched = latestFetch(points)
	}
	state := c.evaluator.Evaluate(points, freshness.Context{
		AccountID:   req.AccountID,
		DateRange:   req.DateRange,
		LastFetched: lastFetched,
		Now:         now,
	})

	entry := models.CacheEntry{
		CacheKey:             req.Key(),
		AccountID:            req.AccountID,
		DataType:             "insights",
		DataFreshness:        state.Status,
		SizeBytes:            payloadSize(points),
		SupportsDifferential: true,
		WrittenAt:            now,
	}
	if session != nil {
		entry.DataID = session.ID
	}

	// Caching a pending result would turn "retry later" into "retry after
	// TTL"; the next read must reach the loader again.
	if pending {
		return points, &entry, nil
	}

	key := req.Key()
	if err := c.l2.Set(ctx, key, points, entry); err != nil {
		c.logger.WithField("cache_key", key).WithError(err).Warn("Persistent cache write failed, degrading to memory-only")
	} else if err := c.entries.UpsertEntry(ctx, &entry); err != nil {
		c.logger.WithField("cache_key", key).WithError(err).Warn("Failed to persist cache entry metadata")
	}
	c.l1.Set(key, points, entry)

	return points, &entry, nil
}

func latestFetch(points []models.TimelinePoint) time.Time {
	var latest time.Time
	for _, p := range points {
		if p.FetchedAt.After(latest) {
			latest = p.FetchedAt
		}
	}
	return latest
}

func payloadSize(points []models.TimelinePoint) int64 {
	data, err := json.Marshal(points)
	if err != nil {
		return 0
	}
	return int64(len(data))
}
