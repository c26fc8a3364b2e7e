package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/adpulse/adpulse-go/internal/models"
)

// ErrSessionNotFound is returned when no session exists for the given id.
var ErrSessionNotFound = errors.New("retrieval session not found")

// SessionRepository handles database operations for retrieval sessions.
type SessionRepository struct {
	pool DatabasePool
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(pool DatabasePool) *SessionRepository {
	return &SessionRepository{
		pool: pool,
	}
}

// CreateSession inserts a new session row.
func (r *SessionRepository) CreateSession(ctx context.Context, session *models.RetrievalSession) error {
	query := `
		INSERT INTO retrieval_sessions (
			id, account_id, range_start, range_end, status,
			pages_retrieved, total_pages, total_items,
			delivery_analysis, failure_reason, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	analysisJSON, err := marshalAnalysis(session.DeliveryAnalysis)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, query,
		session.ID,
		session.AccountID,
		session.DateRange.Start,
		session.DateRange.End,
		session.Status,
		session.PagesRetrieved,
		session.TotalPages,
		session.TotalItems,
		analysisJSON,
		session.FailureReason,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create retrieval session: %w", err)
	}

	return nil
}

// UpdateSession persists the mutable fields of a session. Progress is
// written after every page so a crash never loses retrieved data.
func (r *SessionRepository) UpdateSession(ctx context.Context, session *models.RetrievalSession) error {
	query := `
		UPDATE retrieval_sessions
		SET status = $2,
			pages_retrieved = $3,
			total_pages = $4,
			total_items = $5,
			delivery_analysis = $6,
			failure_reason = $7,
			updated_at = $8
		WHERE id = $1
	`

	analysisJSON, err := marshalAnalysis(session.DeliveryAnalysis)
	if err != nil {
		return err
	}

	result, err := r.pool.Exec(ctx, query,
		session.ID,
		session.Status,
		session.PagesRetrieved,
		session.TotalPages,
		session.TotalItems,
		analysisJSON,
		session.FailureReason,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update retrieval session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// GetSession returns a session by id.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (*models.RetrievalSession, error) {
	query := `
		SELECT id, account_id, range_start, range_end, status,
			pages_retrieved, total_pages, total_items,
			delivery_analysis, failure_reason, created_at, updated_at
		FROM retrieval_sessions
		WHERE id = $1
	`

	session, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get retrieval session: %w", err)
	}

	return session, nil
}

// GetRecentSessions returns the most recently updated sessions for an account.
func (r *SessionRepository) GetRecentSessions(ctx context.Context, accountID string, limit int) ([]models.RetrievalSession, error) {
	query := `
		SELECT id, account_id, range_start, range_end, status,
			pages_retrieved, total_pages, total_items,
			delivery_analysis, failure_reason, created_at, updated_at
		FROM retrieval_sessions
		WHERE account_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.RetrievalSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan retrieval session: %w", err)
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating retrieval sessions: %w", err)
	}

	return sessions, nil
}

// GetLastCompletedSession returns the most recent completed session for an
// (account, range), or nil if none exists.
func (r *SessionRepository) GetLastCompletedSession(ctx context.Context, accountID string, dateRange models.DateRange) (*models.RetrievalSession, error) {
	query := `
		SELECT id, account_id, range_start, range_end, status,
			pages_retrieved, total_pages, total_items,
			delivery_analysis, failure_reason, created_at, updated_at
		FROM retrieval_sessions
		WHERE account_id = $1 AND range_start = $2 AND range_end = $3
		AND status = 'completed'
		ORDER BY updated_at DESC
		LIMIT 1
	`

	session, err := scanSession(r.pool.QueryRow(ctx, query, accountID, dateRange.Start, dateRange.End))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last completed session: %w", err)
	}

	return session, nil
}

func marshalAnalysis(analysis *models.DeliveryAnalysis) ([]byte, error) {
	if analysis == nil {
		return nil, nil
	}
	data, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal delivery analysis: %w", err)
	}
	return data, nil
}

func scanSession(row pgx.Row) (*models.RetrievalSession, error) {
	var (
		session      models.RetrievalSession
		analysisJSON []byte
	)
	err := row.Scan(
		&session.ID,
		&session.AccountID,
		&session.DateRange.Start,
		&session.DateRange.End,
		&session.Status,
		&session.PagesRetrieved,
		&session.TotalPages,
		&session.TotalItems,
		&analysisJSON,
		&session.FailureReason,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(analysisJSON) > 0 {
		var analysis models.DeliveryAnalysis
		if err := json.Unmarshal(analysisJSON, &analysis); err != nil {
			return nil, fmt.Errorf("failed to unmarshal delivery analysis: %w", err)
		}
		session.DeliveryAnalysis = &analysis
	}

	return &session, nil
}
