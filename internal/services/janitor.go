package services

import (
	"context"
	"log"
	"time"

	"github.com/adpulse/adpulse-go/internal/cache"
	"github.com/adpulse/adpulse-go/internal/database"
)

// CacheJanitor periodically sweeps expired entries out of the memory tier
// and reconciles the durable cache entry index.
type CacheJanitor struct {
	memory  *cache.MemoryCache
	entries *database.CacheEntryRepository
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewCacheJanitor creates a new cache janitor.
func NewCacheJanitor(memory *cache.MemoryCache, entries *database.CacheEntryRepository) *CacheJanitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &CacheJanitor{
		memory:  memory,
		entries: entries,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins the periodic sweep.
func (j *CacheJanitor) Start(interval time.Duration) {
	log.Printf("Starting cache janitor with %v sweep interval", interval)

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-j.ctx.Done():
				return
			case <-ticker.C:
				j.sweep()
			}
		}
	}()
}

// Stop stops the janitor.
func (j *CacheJanitor) Stop() {
	log.Println("Stopping cache janitor")
	j.cancel()
}

// Sweep performs a manual sweep.
func (j *CacheJanitor) Sweep() {
	j.sweep()
}

func (j *CacheJanitor) sweep() {
	now := time.Now()
	purged := j.memory.PurgeExpired(now)

	ctx, cancel := context.WithTimeout(j.ctx, 30*time.Second)
	defer cancel()

	removed, err := j.entries.DeleteExpired(ctx, now)
	if err != nil {
		log.Printf("Cache janitor failed to delete expired index entries: %v", err)
		return
	}

	if purged > 0 || removed > 0 {
		log.Printf("Cache janitor removed %d memory entries and %d index rows", purged, removed)
	}
}
