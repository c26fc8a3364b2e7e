package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adpulse/adpulse-go/internal/models"
)

// seriesEnvelope is the Redis payload: the series plus its metadata entry.
type seriesEnvelope struct {
	Points []models.TimelinePoint `json:"points"`
	Entry  models.CacheEntry      `json:"entry"`
}

// SeriesCacheStats tracks cache performance metrics
type SeriesCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.RWMutex
}

// RedisSeriesCache is the persistent payload tier backed by Redis.
type RedisSeriesCache struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  *SeriesCacheStats
	prefix string
}

// NewRedisSeriesCache creates a new Redis-based series cache
func NewRedisSeriesCache(redisClient *redis.Client, ttl time.Duration) *RedisSeriesCache {
	return &RedisSeriesCache{
		redis:  redisClient,
		ttl:    ttl,
		stats:  &SeriesCacheStats{},
		prefix: "series_cache:",
	}
}

// Get retrieves a cached series from Redis. The metadata entry comes back
// even when past its TTL; expiry is the coordinator's call.
func (c *RedisSeriesCache) Get(ctx context.Context, key string) ([]models.TimelinePoint, *models.CacheEntry, bool) {
	cacheKey := c.prefix + key

	data, err := c.redis.Get(ctx, cacheKey).Result()
	if err == redis.Nil {
		// Cache miss
		c.stats.mu.Lock()
		c.stats.Misses++
		c.stats.mu.Unlock()
		return nil, nil, false
	}
	if err != nil {
		log.Printf("Redis error getting series for %s: %v", key, err)
		c.stats.mu.Lock()
		c.stats.Misses++
		c.stats.mu.Unlock()
		return nil, nil, false
	}

	var envelope seriesEnvelope
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		log.Printf("Error deserializing cached series for %s: %v", key, err)
		c.stats.mu.Lock()
		c.stats.Misses++
		c.stats.mu.Unlock()
		return nil, nil, false
	}

	// Cache hit
	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()

	return envelope.Points, &envelope.Entry, true
}

// Set stores a series in Redis. The Redis key TTL is set to twice the
// entry TTL so a stale envelope survives long enough to serve as a
// differential base.
func (c *RedisSeriesCache) Set(ctx context.Context, key string, points []models.TimelinePoint, entry models.CacheEntry) error {
	cacheKey := c.prefix + key

	entry.Layer = models.LayerPersistent
	entry.TTLSeconds = int(c.ttl.Seconds())

	envelope := seriesEnvelope{Points: points, Entry: entry}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("error serializing series for %s: %w", key, err)
	}

	if err := c.redis.Set(ctx, cacheKey, data, 2*c.ttl).Err(); err != nil {
		return fmt.Errorf("redis error setting series for %s: %w", key, err)
	}

	c.stats.mu.Lock()
	c.stats.Sets++
	c.stats.mu.Unlock()

	return nil
}

// Delete removes a cached series.
func (c *RedisSeriesCache) Delete(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis error deleting series for %s: %w", key, err)
	}
	return nil
}

// GetStats returns current cache statistics
func (c *RedisSeriesCache) GetStats() SeriesCacheStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return SeriesCacheStats{
		Hits:   c.stats.Hits,
		Misses: c.stats.Misses,
		Sets:   c.stats.Sets,
	}
}

// Clear removes all cached series (useful for testing or cache invalidation)
func (c *RedisSeriesCache) Clear(ctx context.Context) error {
	pattern := c.prefix + "*"

	var keys []string
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}

	return nil
}
