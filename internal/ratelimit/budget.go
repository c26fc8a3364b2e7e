package ratelimit

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Global is the bucket name used for reservations not tied to an account.
const Global = "global"

// Outcome is the feedback recorded after an upstream call.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeRateLimited
)

// Config holds quota configuration for the budget tracker.
type Config struct {
	HourlyQuota int `mapstructure:"hourly_quota"`
	DailyQuota  int `mapstructure:"daily_quota"`
}

// Stats holds call accounting for one bucket.
type Stats struct {
	TotalCalls      int64 `json:"total_calls"`
	SuccessfulCalls int64 `json:"successful_calls"`
	FailedCalls     int64 `json:"failed_calls"`
	RateLimitHits   int64 `json:"rate_limit_hits"`
}

// BudgetTracker admits or defers upstream API calls against sliding
// hourly and daily quotas. Reservations are atomic per bucket; buckets
// for unrelated accounts never contend on the same lock.
type BudgetTracker struct {
	cfg     Config
	logger  *logrus.Logger
	mu      sync.RWMutex
	buckets map[string]*bucket
	now     func() time.Time
}

type window struct {
	start     time.Time
	length    time.Duration
	used      int
	allowance int
}

type bucket struct {
	mu    sync.Mutex
	hour  window
	day   window
	stats Stats
}

// NewBudgetTracker creates a budget tracker with the given quotas.
func NewBudgetTracker(cfg Config, logger *logrus.Logger) *BudgetTracker {
	if cfg.HourlyQuota <= 0 {
		cfg.HourlyQuota = 200
	}
	if cfg.DailyQuota <= 0 {
		cfg.DailyQuota = 4800
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &BudgetTracker{
		cfg:     cfg,
		logger:  logger,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// SetClock overrides the tracker's time source. Intended for tests.
func (t *BudgetTracker) SetClock(now func() time.Time) {
	t.now = now
}

func (t *BudgetTracker) bucketFor(name string) *bucket {
	t.mu.RLock()
	b, ok := t.buckets[name]
	t.mu.RUnlock()
	if ok {
		return b
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok = t.buckets[name]; ok {
		return b
	}
	now := t.now()
	b = &bucket{
		hour: window{start: now, length: time.Hour, allowance: t.cfg.HourlyQuota},
		day:  window{start: now, length: 24 * time.Hour, allowance: t.cfg.DailyQuota},
	}
	t.buckets[name] = b
	return b
}

func (w *window) roll(now time.Time, quota int) {
	if now.Sub(w.start) >= w.length {
		w.start = now
		w.used = 0
		w.allowance = quota
	}
}

func (w *window) remaining() int {
	r := w.allowance - w.used
	if r < 0 {
		return 0
	}
	return r
}

// Reserve atomically claims n calls against the named bucket. When the
// reservation cannot be granted it returns false and the duration after
// which capacity frees up.
func (t *BudgetTracker) Reserve(name string, n int) (bool, time.Duration) {
	b := t.bucketFor(name)
	now := t.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.hour.roll(now, t.cfg.HourlyQuota)
	b.day.roll(now, t.cfg.DailyQuota)

	if b.hour.remaining() >= n && b.day.remaining() >= n {
		b.hour.used += n
		b.day.used += n
		return true, 0
	}

	retryAfter := b.hour.start.Add(b.hour.length).Sub(now)
	if b.day.remaining() < n {
		retryAfter = b.day.start.Add(b.day.length).Sub(now)
	}
	t.logger.WithFields(logrus.Fields{
		"bucket":           name,
		"requested":        n,
		"hourly_remaining": b.hour.remaining(),
		"daily_remaining":  b.day.remaining(),
	}).Debug("Budget reservation denied")
	return false, retryAfter
}

// Record registers the outcome of a reserved call. Rate-limit feedback
// halves the remaining hourly allowance for the current window instead
// of waiting for quota reset; a plain failure (including upstream
// timeouts) trims it by a quarter.
func (t *BudgetTracker) Record(name string, outcome Outcome) {
	b := t.bucketFor(name)
	now := t.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.hour.roll(now, t.cfg.HourlyQuota)
	b.day.roll(now, t.cfg.DailyQuota)

	b.stats.TotalCalls++
	switch outcome {
	case OutcomeSuccess:
		b.stats.SuccessfulCalls++
	case OutcomeFailure:
		b.stats.FailedCalls++
		b.hour.allowance = b.hour.used + (b.hour.remaining()*3)/4
	case OutcomeRateLimited:
		b.stats.RateLimitHits++
		b.stats.FailedCalls++
		b.hour.allowance = b.hour.used + b.hour.remaining()/2
		t.logger.WithFields(logrus.Fields{
			"bucket":          name,
			"hourly_capacity": b.hour.allowance,
		}).Warn("Upstream rate limit hit, shrinking hourly allowance")
	}
}

// Remaining returns the current hourly and daily headroom for a bucket.
// This is a read-only check, not a reservation.
func (t *BudgetTracker) Remaining(name string) (hourly, daily int) {
	b := t.bucketFor(name)
	now := t.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.hour.roll(now, t.cfg.HourlyQuota)
	b.day.roll(now, t.cfg.DailyQuota)
	return b.hour.remaining(), b.day.remaining()
}

// GetStats returns a copy of the accounting counters for a bucket.
func (t *BudgetTracker) GetStats(name string) Stats {
	b := t.bucketFor(name)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
