package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/adpulse/adpulse-go/internal/database"
	"github.com/adpulse/adpulse-go/internal/models"
	"github.com/adpulse/adpulse-go/internal/ratelimit"
)

const maxResponseSamples = 2048

// PerformanceMonitor aggregates the coordinator's cache observations and
// the budget tracker's call accounting into daily PerformanceSnapshot
// rows. It implements cache.Recorder.
type PerformanceMonitor struct {
	budget   *ratelimit.BudgetTracker
	entries  *database.CacheEntryRepository
	perfRepo *database.PerformanceRepository
	logger   *logrus.Logger
	now      func() time.Time

	mu           sync.Mutex
	cacheSamples []float64
	loadSamples  []float64
	hits         int64
	misses       int64
	savedCalls   int64
	loads        int64
	failedLoads  int64
	anomalies    int64
	accounts     map[string]bool
	stopOnce     sync.Once
	stop         chan struct{}
}

// NewPerformanceMonitor creates a monitor. entries and perfRepo may be nil
// in tests; Snapshot then skips storage usage and persistence.
func NewPerformanceMonitor(budget *ratelimit.BudgetTracker, entries *database.CacheEntryRepository, perfRepo *database.PerformanceRepository, logger *logrus.Logger) *PerformanceMonitor {
	return &PerformanceMonitor{
		budget:   budget,
		entries:  entries,
		perfRepo: perfRepo,
		logger:   logger,
		now:      time.Now,
		accounts: make(map[string]bool),
		stop:     make(chan struct{}),
	}
}

// TrackAccount registers an account for periodic snapshot persistence.
func (m *PerformanceMonitor) TrackAccount(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[accountID] = true
}

// ObserveLookup records one cache tier lookup.
func (m *PerformanceMonitor) ObserveLookup(_ models.CacheLayer, duration time.Duration, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheSamples = appendSample(m.cacheSamples, float64(duration.Microseconds())/1000)
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

// ObserveLoad records one full loader invocation.
func (m *PerformanceMonitor) ObserveLoad(duration time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadSamples = appendSample(m.loadSamples, float64(duration.Microseconds())/1000)
	m.loads++
	if failed {
		m.failedLoads++
	}
}

// RecordSavedCalls counts upstream calls avoided by cache hits.
func (m *PerformanceMonitor) RecordSavedCalls(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.savedCalls += int64(n)
}

// NotifyAnomalies implements orchestrator.Notifier so the monitor can keep
// detection-rate accounting. Usually fanned out alongside the Telegram
// notifier.
func (m *PerformanceMonitor) NotifyAnomalies(_ context.Context, anomalies []models.AnomalyRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalies += int64(len(anomalies))
}

func appendSample(samples []float64, v float64) []float64 {
	if len(samples) >= maxResponseSamples {
		copy(samples, samples[1:])
		samples = samples[:len(samples)-1]
	}
	return append(samples, v)
}

// Snapshot builds the current day's telemetry for an account.
func (m *PerformanceMonitor) Snapshot(ctx context.Context, accountID string) (*models.PerformanceSnapshot, error) {
	m.mu.Lock()
	cacheSamples := append([]float64(nil), m.cacheSamples...)
	loadSamples := append([]float64(nil), m.loadSamples...)
	hits, misses, savedCalls := m.hits, m.misses, m.savedCalls
	loads, failedLoads, anomalies := m.loads, m.failedLoads, m.anomalies
	m.mu.Unlock()

	now := m.now().UTC()
	snapshot := &models.PerformanceSnapshot{
		AccountID:   accountID,
		StatDate:    time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		GeneratedAt: now,
	}

	total := hits + misses
	if total > 0 {
		snapshot.CacheStats.HitRate = float64(hits) / float64(total)
	}
	snapshot.CacheStats.APICallsSaved = savedCalls
	snapshot.CacheStats.StorageUsage = m.storageUsage(ctx, accountID)

	allSamples := append(append([]float64(nil), cacheSamples...), loadSamples...)
	snapshot.Performance = models.ResponseTimeMetrics{
		AvgResponseTime:   average(allSamples),
		CacheResponseTime: average(cacheSamples),
		APIResponseTime:   average(loadSamples),
		P95:               percentile(allSamples, 0.95),
		P99:               percentile(allSamples, 0.99),
	}

	stats := m.budget.GetStats(accountID)
	snapshot.APIUsage = models.APIUsageStats{
		TotalCalls:      stats.TotalCalls,
		SuccessfulCalls: stats.SuccessfulCalls,
		FailedCalls:     stats.FailedCalls,
		RateLimitHits:   stats.RateLimitHits,
	}

	if loads > 0 {
		snapshot.DataQuality.CompletenessScore = float64(loads-failedLoads) / float64(loads)
	} else {
		snapshot.DataQuality.CompletenessScore = 1
	}
	if stats.SuccessfulCalls > 0 {
		snapshot.DataQuality.AnomalyDetectionRate = float64(anomalies) / float64(stats.SuccessfulCalls)
	}

	return snapshot, nil
}

func (m *PerformanceMonitor) storageUsage(ctx context.Context, accountID string) map[string]int64 {
	usage := make(map[string]int64)
	if vm, err := mem.VirtualMemory(); err == nil {
		usage["process_memory_bytes"] = int64(vm.Used)
	}
	if m.entries == nil {
		return usage
	}
	layerSizes, err := m.entries.AccountStats(ctx, accountID)
	if err != nil {
		m.logger.WithField("account_id", accountID).WithError(err).Debug("Failed to read cache storage stats")
		return usage
	}
	for layer, size := range layerSizes {
		usage["cache_"+layer+"_bytes"] = size
	}
	return usage
}

// Start begins periodic snapshot persistence for tracked accounts.
func (m *PerformanceMonitor) Start(interval time.Duration) {
	if m.perfRepo == nil {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.persistSnapshots()
			}
		}
	}()
}

// Stop halts periodic persistence.
func (m *PerformanceMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *PerformanceMonitor) persistSnapshots() {
	m.mu.Lock()
	accounts := make([]string, 0, len(m.accounts))
	for id := range m.accounts {
		accounts = append(accounts, id)
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, accountID := range accounts {
		snapshot, err := m.Snapshot(ctx, accountID)
		if err != nil {
			continue
		}
		if err := m.perfRepo.UpsertSnapshot(ctx, snapshot); err != nil {
			m.logger.WithField("account_id", accountID).WithError(err).Warn("Failed to persist performance snapshot")
		}
	}
}

func average(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

func percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}
