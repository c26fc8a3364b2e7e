package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/adpulse/adpulse-go/internal/models"
	"github.com/adpulse/adpulse-go/internal/utils"
)

// AnomalyRepository handles database operations for anomaly records.
type AnomalyRepository struct {
	pool DatabasePool
}

// NewAnomalyRepository creates a new anomaly repository.
func NewAnomalyRepository(pool DatabasePool) *AnomalyRepository {
	return &AnomalyRepository{
		pool: pool,
	}
}

// InsertAnomalies writes detector output. Records are immutable once
// written; re-detection over the same range produces new rows only for
// (ad_id, type, range) combinations not seen before.
func (r *AnomalyRepository) InsertAnomalies(ctx context.Context, anomalies []models.AnomalyRecord) error {
	if len(anomalies) == 0 {
		return nil
	}

	query := `
		INSERT INTO ad_anomalies (
			id, ad_id, account_id, type, severity,
			range_start, range_end, confidence, metrics,
			message, recommendation, resolved, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (ad_id, type, range_start, range_end) DO NOTHING
	`

	batch := &pgx.Batch{}
	for i := range anomalies {
		a := &anomalies[i]
		metricsJSON, err := json.Marshal(a.Metrics)
		if err != nil {
			return fmt.Errorf("failed to marshal anomaly metrics: %w", err)
		}
		batch.Queue(query,
			a.ID,
			a.AdID,
			a.AccountID,
			a.Type,
			a.Severity,
			a.DateRange.Start,
			a.DateRange.End,
			a.Confidence,
			metricsJSON,
			a.Message,
			a.Recommendation,
			a.Resolved,
			a.CreatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range anomalies {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert anomaly record: %w", err)
		}
	}

	return nil
}

// GetActiveAnomalies returns unresolved anomalies for an account, most
// severe and most recent first.
func (r *AnomalyRepository) GetActiveAnomalies(ctx context.Context, accountID string, limit int) ([]models.AnomalyRecord, error) {
	query := `
		SELECT id, ad_id, account_id, type, severity,
			range_start, range_end, confidence, metrics,
			message, recommendation, resolved, created_at
		FROM ad_anomalies
		WHERE account_id = $1 AND resolved = false
		ORDER BY
			CASE severity
				WHEN 'critical' THEN 0
				WHEN 'high' THEN 1
				WHEN 'medium' THEN 2
				ELSE 3
			END,
			created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query active anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []models.AnomalyRecord
	for rows.Next() {
		var (
			a           models.AnomalyRecord
			metricsJSON []byte
		)
		err := rows.Scan(
			&a.ID,
			&a.AdID,
			&a.AccountID,
			&a.Type,
			&a.Severity,
			&a.DateRange.Start,
			&a.DateRange.End,
			&a.Confidence,
			&metricsJSON,
			&a.Message,
			&a.Recommendation,
			&a.Resolved,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan anomaly record: %w", err)
		}
		if err := json.Unmarshal(metricsJSON, &a.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal anomaly metrics: %w", err)
		}
		anomalies = append(anomalies, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anomaly records: %w", err)
	}

	return anomalies, nil
}

// ResolveAnomaly marks an anomaly as resolved. The record itself stays
// untouched.
func (r *AnomalyRepository) ResolveAnomaly(ctx context.Context, id string) error {
	query := `
		UPDATE ad_anomalies
		SET resolved = true
		WHERE id = $1 AND resolved = false
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to resolve anomaly: %w", err)
	}

	if result.RowsAffected() == 0 {
		return utils.NewNotFoundError("anomaly", id)
	}

	return nil
}
