package database

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpulse/adpulse-go/internal/models"
)

func newSessionRepoForTest(t *testing.T) (*SessionRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err, "Failed to create mock pool")
	t.Cleanup(mockPool.Close)
	return NewSessionRepository(NewMockPoolAdapter(mockPool)), mockPool
}

func TestSessionRepository_CreateSession(t *testing.T) {
	repo, mockPool := newSessionRepoForTest(t)
	now := time.Now().UTC()

	session := &models.RetrievalSession{
		ID:        "sess-1",
		AccountID: "act_123",
		DateRange: models.NewDateRange(now.AddDate(0, 0, -7), now),
		Status:    models.SessionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	mockPool.ExpectExec(`INSERT INTO retrieval_sessions`).
		WithArgs(
			session.ID, session.AccountID, session.DateRange.Start, session.DateRange.End,
			session.Status, 0, 0, 0, pgxmock.AnyArg(), "", now, now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.CreateSession(context.Background(), session)
	assert.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSessionRepository_UpdateSession_NotFound(t *testing.T) {
	repo, mockPool := newSessionRepoForTest(t)
	now := time.Now().UTC()

	session := &models.RetrievalSession{
		ID:        "missing",
		AccountID: "act_123",
		DateRange: models.NewDateRange(now.AddDate(0, 0, -1), now),
		Status:    models.SessionFetching,
		UpdatedAt: now,
	}

	mockPool.ExpectExec(`UPDATE retrieval_sessions`).
		WithArgs(session.ID, session.Status, 0, 0, 0, pgxmock.AnyArg(), "", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateSession(context.Background(), session)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSessionRepository_GetSession(t *testing.T) {
	repo, mockPool := newSessionRepoForTest(t)
	now := time.Now().UTC().Truncate(time.Second)
	start := now.AddDate(0, 0, -7)

	rows := pgxmock.NewRows([]string{
		"id", "account_id", "range_start", "range_end", "status",
		"pages_retrieved", "total_pages", "total_items",
		"delivery_analysis", "failure_reason", "created_at", "updated_at",
	}).AddRow(
		"sess-1", "act_123", start, now, models.SessionCompleted,
		3, 3, 62,
		[]byte(`{"total_requested_days":8,"actual_delivery_days":6,"delivery_ratio":0.75,"delivery_pattern":"intermittent"}`),
		"", now, now,
	)

	mockPool.ExpectQuery(`SELECT id, account_id, range_start, range_end, status`).
		WithArgs("sess-1").
		WillReturnRows(rows)

	session, err := repo.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, session.Status)
	assert.Equal(t, 62, session.TotalItems)
	require.NotNil(t, session.DeliveryAnalysis)
	assert.Equal(t, models.PatternIntermittent, session.DeliveryAnalysis.DeliveryPattern)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSessionRepository_GetSession_NotFound(t *testing.T) {
	repo, mockPool := newSessionRepoForTest(t)

	mockPool.ExpectQuery(`SELECT id, account_id, range_start, range_end, status`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetSession(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
