package models

import (
	"time"
)

// CacheLayer identifies which tier holds an entry.
type CacheLayer string

const (
	LayerMemory     CacheLayer = "memory"
	LayerPersistent CacheLayer = "persistent"
)

// FreshnessLabel buckets a staleness score.
type FreshnessLabel string

const (
	FreshnessFresh   FreshnessLabel = "fresh"
	FreshnessAging   FreshnessLabel = "aging"
	FreshnessStale   FreshnessLabel = "stale"
	FreshnessExpired FreshnessLabel = "expired"
)

// CacheEntry is the metadata record for a cached series payload.
// HitCount persists across replaces of the same key and increments on
// every successful read.
type CacheEntry struct {
	CacheKey             string         `json:"cache_key" db:"cache_key"`
	AccountID            string         `json:"account_id" db:"account_id"`
	Layer                CacheLayer     `json:"layer" db:"layer"`
	DataType             string         `json:"data_type" db:"data_type"`
	TTLSeconds           int            `json:"ttl_seconds" db:"ttl_seconds"`
	DataFreshness        FreshnessLabel `json:"data_freshness" db:"data_freshness"`
	SizeBytes            int64          `json:"size_bytes" db:"size_bytes"`
	SupportsDifferential bool           `json:"supports_differential" db:"supports_differential"`
	DataID               string         `json:"data_id" db:"data_id"`
	HitCount             int64          `json:"hit_count" db:"hit_count"`
	WrittenAt            time.Time      `json:"written_at" db:"written_at"`
}

// Expired reports whether the entry's TTL has elapsed at the given time.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.WrittenAt.Add(time.Duration(e.TTLSeconds) * time.Second))
}
