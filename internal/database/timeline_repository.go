package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/adpulse/adpulse-go/internal/models"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	// SendBatch sends a batch of queries in a single round trip.
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// TimelineRepository handles database operations for per-day ad metric points.
type TimelineRepository struct {
	pool DatabasePool
}

// NewTimelineRepository creates a new timeline repository.
func NewTimelineRepository(pool DatabasePool) *TimelineRepository {
	return &TimelineRepository{
		pool: pool,
	}
}

// UpsertPoints writes a batch of timeline points. Points are keyed by
// (ad_id, date); a later write for the same key replaces the earlier one.
func (r *TimelineRepository) UpsertPoints(ctx context.Context, points []models.TimelinePoint) error {
	if len(points) == 0 {
		return nil
	}

	query := `
		INSERT INTO ad_timeline_points (
			ad_id, account_id, date, has_delivery, delivery_intensity,
			metrics, comparison_flags, anomalies, fetched_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ad_id, date)
		DO UPDATE SET
			account_id = EXCLUDED.account_id,
			has_delivery = EXCLUDED.has_delivery,
			delivery_intensity = EXCLUDED.delivery_intensity,
			metrics = EXCLUDED.metrics,
			comparison_flags = EXCLUDED.comparison_flags,
			anomalies = EXCLUDED.anomalies,
			fetched_at = EXCLUDED.fetched_at
	`

	batch := &pgx.Batch{}
	for i := range points {
		p := &points[i]
		metricsJSON, err := json.Marshal(p.Metrics)
		if err != nil {
			return fmt.Errorf("failed to marshal metrics for ad %s: %w", p.AdID, err)
		}
		comparisonJSON, err := json.Marshal(p.Comparison)
		if err != nil {
			return fmt.Errorf("failed to marshal comparison flags for ad %s: %w", p.AdID, err)
		}
		batch.Queue(query,
			p.AdID,
			p.AccountID,
			p.Date,
			p.HasDelivery,
			p.DeliveryIntensity,
			metricsJSON,
			comparisonJSON,
			p.Anomalies,
			p.FetchedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range points {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert timeline point: %w", err)
		}
	}

	return nil
}

// GetTimeline returns the points for an ad over a date range, ordered by
// date ascending.
func (r *TimelineRepository) GetTimeline(ctx context.Context, accountID, adID string, dateRange models.DateRange) ([]models.TimelinePoint, error) {
	query := `
		SELECT ad_id, account_id, date, has_delivery, delivery_intensity,
			metrics, comparison_flags, anomalies, fetched_at
		FROM ad_timeline_points
		WHERE account_id = $1 AND ad_id = $2
		AND date >= $3 AND date <= $4
		ORDER BY date ASC
	`

	rows, err := r.pool.Query(ctx, query, accountID, adID, dateRange.Start, dateRange.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline points: %w", err)
	}
	defer rows.Close()

	return scanTimelinePoints(rows)
}

// GetAccountTimeline returns all points for an account over a date range,
// ordered by ad then date. Used when a series request carries no ad filter.
func (r *TimelineRepository) GetAccountTimeline(ctx context.Context, accountID string, dateRange models.DateRange) ([]models.TimelinePoint, error) {
	query := `
		SELECT ad_id, account_id, date, has_delivery, delivery_intensity,
			metrics, comparison_flags, anomalies, fetched_at
		FROM ad_timeline_points
		WHERE account_id = $1
		AND date >= $2 AND date <= $3
		ORDER BY ad_id, date ASC
	`

	rows, err := r.pool.Query(ctx, query, accountID, dateRange.Start, dateRange.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query account timeline: %w", err)
	}
	defer rows.Close()

	return scanTimelinePoints(rows)
}

func scanTimelinePoints(rows pgx.Rows) ([]models.TimelinePoint, error) {
	var points []models.TimelinePoint
	for rows.Next() {
		var (
			p              models.TimelinePoint
			metricsJSON    []byte
			comparisonJSON []byte
		)
		err := rows.Scan(
			&p.AdID,
			&p.AccountID,
			&p.Date,
			&p.HasDelivery,
			&p.DeliveryIntensity,
			&metricsJSON,
			&comparisonJSON,
			&p.Anomalies,
			&p.FetchedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timeline point: %w", err)
		}
		if err := json.Unmarshal(metricsJSON, &p.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		if err := json.Unmarshal(comparisonJSON, &p.Comparison); err != nil {
			return nil, fmt.Errorf("failed to unmarshal comparison flags: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating timeline points: %w", err)
	}

	return points, nil
}
