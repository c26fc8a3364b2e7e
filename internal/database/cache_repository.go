package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/adpulse/adpulse-go/internal/models"
)

// CacheEntryRepository handles the durable metadata records behind the
// cache coordinator. The payloads themselves live in Redis and memory;
// these rows carry freshness, sizing and hit accounting.
type CacheEntryRepository struct {
	pool DatabasePool
}

// NewCacheEntryRepository creates a new cache entry repository.
func NewCacheEntryRepository(pool DatabasePool) *CacheEntryRepository {
	return &CacheEntryRepository{
		pool: pool,
	}
}

// UpsertEntry writes or replaces the metadata for a cache key. On replace
// the hit count of the previous entry is kept so effectiveness accounting
// survives refreshes.
func (r *CacheEntryRepository) UpsertEntry(ctx context.Context, entry *models.CacheEntry) error {
	query := `
		INSERT INTO cache_entries (
			cache_key, account_id, layer, data_type, ttl_seconds,
			data_freshness, size_bytes, supports_differential,
			data_id, hit_count, written_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10)
		ON CONFLICT (cache_key)
		DO UPDATE SET
			account_id = EXCLUDED.account_id,
			layer = EXCLUDED.layer,
			data_type = EXCLUDED.data_type,
			ttl_seconds = EXCLUDED.ttl_seconds,
			data_freshness = EXCLUDED.data_freshness,
			size_bytes = EXCLUDED.size_bytes,
			supports_differential = EXCLUDED.supports_differential,
			data_id = EXCLUDED.data_id,
			written_at = EXCLUDED.written_at
	`

	_, err := r.pool.Exec(ctx, query,
		entry.CacheKey,
		entry.AccountID,
		entry.Layer,
		entry.DataType,
		entry.TTLSeconds,
		entry.DataFreshness,
		entry.SizeBytes,
		entry.SupportsDifferential,
		entry.DataID,
		entry.WrittenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}

	return nil
}

// GetEntry returns the metadata for a cache key, or nil if none exists.
func (r *CacheEntryRepository) GetEntry(ctx context.Context, cacheKey string) (*models.CacheEntry, error) {
	query := `
		SELECT cache_key, account_id, layer, data_type, ttl_seconds,
			data_freshness, size_bytes, supports_differential,
			data_id, hit_count, written_at
		FROM cache_entries
		WHERE cache_key = $1
	`

	var entry models.CacheEntry
	err := r.pool.QueryRow(ctx, query, cacheKey).Scan(
		&entry.CacheKey,
		&entry.AccountID,
		&entry.Layer,
		&entry.DataType,
		&entry.TTLSeconds,
		&entry.DataFreshness,
		&entry.SizeBytes,
		&entry.SupportsDifferential,
		&entry.DataID,
		&entry.HitCount,
		&entry.WrittenAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	return &entry, nil
}

// IncrementHitCount bumps the hit counter for a key after a successful read.
func (r *CacheEntryRepository) IncrementHitCount(ctx context.Context, cacheKey string) error {
	query := `
		UPDATE cache_entries
		SET hit_count = hit_count + 1
		WHERE cache_key = $1
	`

	if _, err := r.pool.Exec(ctx, query, cacheKey); err != nil {
		return fmt.Errorf("failed to increment hit count: %w", err)
	}

	return nil
}

// DeleteExpired removes entries whose TTL elapsed before the given time.
// Returns the number of rows removed. Called by the cache janitor.
func (r *CacheEntryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM cache_entries
		WHERE written_at + make_interval(secs => ttl_seconds) <= $1
	`

	result, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	return result.RowsAffected(), nil
}

// AccountStats aggregates entry counts and sizes per layer for an account.
func (r *CacheEntryRepository) AccountStats(ctx context.Context, accountID string) (map[string]int64, error) {
	query := `
		SELECT layer, COALESCE(SUM(size_bytes), 0)
		FROM cache_entries
		WHERE account_id = $1
		GROUP BY layer
	`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache account stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var (
			layer string
			size  int64
		)
		if err := rows.Scan(&layer, &size); err != nil {
			return nil, fmt.Errorf("failed to scan cache stats row: %w", err)
		}
		stats[layer] = size
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache stats: %w", err)
	}

	return stats, nil
}
