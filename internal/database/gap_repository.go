package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/adpulse/adpulse-go/internal/models"
)

// GapRepository handles database operations for delivery gap records.
type GapRepository struct {
	pool DatabasePool
}

// NewGapRepository creates a new gap repository.
func NewGapRepository(pool DatabasePool) *GapRepository {
	return &GapRepository{
		pool: pool,
	}
}

// ReplaceGaps replaces the stored gaps for an ad inside the analyzed range
// with a fresh analysis result. Deleting first keeps gap rows consistent
// with the timeline they were derived from.
func (r *GapRepository) ReplaceGaps(ctx context.Context, adID string, dateRange models.DateRange, gaps []models.GapRecord) error {
	deleteQuery := `
		DELETE FROM delivery_gaps
		WHERE ad_id = $1 AND start_date >= $2 AND end_date <= $3
	`

	insertQuery := `
		INSERT INTO delivery_gaps (
			id, ad_id, account_id, start_date, end_date, duration_days,
			severity, inferred_cause, cause_confidence,
			affected_metrics, preceding_metrics, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	batch := &pgx.Batch{}
	batch.Queue(deleteQuery, adID, dateRange.Start, dateRange.End)
	for i := range gaps {
		g := &gaps[i]
		affectedJSON, err := json.Marshal(g.AffectedMetrics)
		if err != nil {
			return fmt.Errorf("failed to marshal affected metrics: %w", err)
		}
		precedingJSON, err := json.Marshal(g.PrecedingMetrics)
		if err != nil {
			return fmt.Errorf("failed to marshal preceding metrics: %w", err)
		}
		batch.Queue(insertQuery,
			g.ID,
			g.AdID,
			g.AccountID,
			g.StartDate,
			g.EndDate,
			g.DurationDays,
			g.Severity,
			g.InferredCause,
			g.CauseConfidence,
			affectedJSON,
			precedingJSON,
			g.CreatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(gaps)+1; i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to replace delivery gaps: %w", err)
		}
	}

	return nil
}

// GetGaps returns the stored gaps for an ad, newest first.
func (r *GapRepository) GetGaps(ctx context.Context, accountID, adID string) ([]models.GapRecord, error) {
	query := `
		SELECT id, ad_id, account_id, start_date, end_date, duration_days,
			severity, inferred_cause, cause_confidence,
			affected_metrics, preceding_metrics, created_at
		FROM delivery_gaps
		WHERE account_id = $1 AND ad_id = $2
		ORDER BY start_date DESC
	`

	rows, err := r.pool.Query(ctx, query, accountID, adID)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery gaps: %w", err)
	}
	defer rows.Close()

	var gaps []models.GapRecord
	for rows.Next() {
		var (
			g             models.GapRecord
			affectedJSON  []byte
			precedingJSON []byte
		)
		err := rows.Scan(
			&g.ID,
			&g.AdID,
			&g.AccountID,
			&g.StartDate,
			&g.EndDate,
			&g.DurationDays,
			&g.Severity,
			&g.InferredCause,
			&g.CauseConfidence,
			&affectedJSON,
			&precedingJSON,
			&g.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gap record: %w", err)
		}
		if err := json.Unmarshal(affectedJSON, &g.AffectedMetrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal affected metrics: %w", err)
		}
		if err := json.Unmarshal(precedingJSON, &g.PrecedingMetrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal preceding metrics: %w", err)
		}
		gaps = append(gaps, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gap records: %w", err)
	}

	return gaps, nil
}
