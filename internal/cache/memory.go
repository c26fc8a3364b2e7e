package cache

import (
	"sync"
	"time"

	"github.com/adpulse/adpulse-go/internal/models"
)

// memoryItem pairs a cached series payload with its metadata entry.
type memoryItem struct {
	points []models.TimelinePoint
	entry  models.CacheEntry
}

// MemoryCache is the in-process tier. Lookups never touch I/O.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]*memoryItem
	ttl   time.Duration
}

// NewMemoryCache creates an in-process cache whose entries carry the given TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		items: make(map[string]*memoryItem),
		ttl:   ttl,
	}
}

// Get returns the cached payload and a copy of its metadata entry.
// The entry is returned even when expired so the caller can decide
// between serving stale and refetching.
func (c *MemoryCache) Get(key string) ([]models.TimelinePoint, *models.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok {
		return nil, nil, false
	}
	entry := item.entry
	return item.points, &entry, true
}

// Set stores a payload under the key. The previous entry's hit count, if
// any, carries over to the replacement.
func (c *MemoryCache) Set(key string, points []models.TimelinePoint, entry models.CacheEntry) {
	entry.Layer = models.LayerMemory
	entry.TTLSeconds = int(c.ttl.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.items[key]; ok {
		entry.HitCount = prev.entry.HitCount
	}
	c.items[key] = &memoryItem{points: points, entry: entry}
}

// RecordHit bumps the in-memory hit counter for a key.
func (c *MemoryCache) RecordHit(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, ok := c.items[key]; ok {
		item.entry.HitCount++
	}
}

// Delete removes a key.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// PurgeExpired drops all entries whose TTL elapsed before now and returns
// how many were removed. Called by the cache janitor.
func (c *MemoryCache) PurgeExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, item := range c.items {
		if item.entry.Expired(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
