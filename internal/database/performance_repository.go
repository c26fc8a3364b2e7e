package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/adpulse/adpulse-go/internal/models"
)

// PerformanceRepository handles database operations for daily engine
// telemetry snapshots.
type PerformanceRepository struct {
	pool DatabasePool
}

// NewPerformanceRepository creates a new performance repository.
func NewPerformanceRepository(pool DatabasePool) *PerformanceRepository {
	return &PerformanceRepository{
		pool: pool,
	}
}

// UpsertSnapshot writes the snapshot for (account_id, stat_date),
// overwriting any earlier snapshot taken the same day.
func (r *PerformanceRepository) UpsertSnapshot(ctx context.Context, snapshot *models.PerformanceSnapshot) error {
	query := `
		INSERT INTO performance_snapshots (
			account_id, stat_date, cache_stats, performance_metrics,
			api_usage, data_quality, generated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id, stat_date)
		DO UPDATE SET
			cache_stats = EXCLUDED.cache_stats,
			performance_metrics = EXCLUDED.performance_metrics,
			api_usage = EXCLUDED.api_usage,
			data_quality = EXCLUDED.data_quality,
			generated_at = EXCLUDED.generated_at
	`

	cacheJSON, err := json.Marshal(snapshot.CacheStats)
	if err != nil {
		return fmt.Errorf("failed to marshal cache stats: %w", err)
	}
	perfJSON, err := json.Marshal(snapshot.Performance)
	if err != nil {
		return fmt.Errorf("failed to marshal performance metrics: %w", err)
	}
	usageJSON, err := json.Marshal(snapshot.APIUsage)
	if err != nil {
		return fmt.Errorf("failed to marshal api usage: %w", err)
	}
	qualityJSON, err := json.Marshal(snapshot.DataQuality)
	if err != nil {
		return fmt.Errorf("failed to marshal data quality: %w", err)
	}

	_, err = r.pool.Exec(ctx, query,
		snapshot.AccountID,
		snapshot.StatDate,
		cacheJSON,
		perfJSON,
		usageJSON,
		qualityJSON,
		snapshot.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert performance snapshot: %w", err)
	}

	return nil
}

// GetSnapshot returns the snapshot for (account_id, stat_date), or nil if
// none exists.
func (r *PerformanceRepository) GetSnapshot(ctx context.Context, accountID string, statDate time.Time) (*models.PerformanceSnapshot, error) {
	query := `
		SELECT account_id, stat_date, cache_stats, performance_metrics,
			api_usage, data_quality, generated_at
		FROM performance_snapshots
		WHERE account_id = $1 AND stat_date = $2
	`

	var (
		snapshot    models.PerformanceSnapshot
		cacheJSON   []byte
		perfJSON    []byte
		usageJSON   []byte
		qualityJSON []byte
	)
	err := r.pool.QueryRow(ctx, query, accountID, statDate).Scan(
		&snapshot.AccountID,
		&snapshot.StatDate,
		&cacheJSON,
		&perfJSON,
		&usageJSON,
		&qualityJSON,
		&snapshot.GeneratedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get performance snapshot: %w", err)
	}

	if err := json.Unmarshal(cacheJSON, &snapshot.CacheStats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache stats: %w", err)
	}
	if err := json.Unmarshal(perfJSON, &snapshot.Performance); err != nil {
		return nil, fmt.Errorf("failed to unmarshal performance metrics: %w", err)
	}
	if err := json.Unmarshal(usageJSON, &snapshot.APIUsage); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api usage: %w", err)
	}
	if err := json.Unmarshal(qualityJSON, &snapshot.DataQuality); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data quality: %w", err)
	}

	return &snapshot, nil
}
