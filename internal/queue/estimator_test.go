package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForPosition(t *testing.T) {
	est := NewEstimator(15)

	assert.Equal(t, 0, est.ForPosition(1))
	assert.Equal(t, 15, est.ForPosition(2))
	assert.Equal(t, 30, est.ForPosition(3))
	assert.Equal(t, 0, est.ForPosition(0), "degenerate positions estimate zero wait")
}

func TestRecomputeAfterCallNext(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)
	est := NewEstimator(15)

	providerID := uuid.New()
	date := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	// Position 1 was just called; 2 and 3 remain waiting with stale estimates.
	rows := pgxmock.NewRows([]string{
		"id", "booking_id", "provider_id", "queue_date", "position", "status",
		"estimated_wait_minutes", "actual_start_time", "actual_end_time", "created_at",
	}).
		AddRow(uuid.New(), uuid.New(), providerID, date, 2, "waiting", 15, (*time.Time)(nil), (*time.Time)(nil), now).
		AddRow(uuid.New(), uuid.New(), providerID, date, 3, "waiting", 30, (*time.Time)(nil), (*time.Time)(nil), now)
	mock.ExpectQuery("SELECT(.|\n)+FROM queue_entries").WithArgs(providerID, date).WillReturnRows(rows)

	// Both entries move up by one slot.
	mock.ExpectExec("UPDATE queue_entries SET estimated_wait_minutes").
		WithArgs(0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE queue_entries SET estimated_wait_minutes").
		WithArgs(15, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	waiting, err := est.Recompute(context.Background(), mock, repo, providerID, date)
	require.NoError(t, err)
	require.Len(t, waiting, 2)

	// Wait estimates shift, positions stay put.
	assert.Equal(t, 2, waiting[0].Position)
	assert.Equal(t, 0, waiting[0].EstimatedWaitMinutes)
	assert.Equal(t, 3, waiting[1].Position)
	assert.Equal(t, 15, waiting[1].EstimatedWaitMinutes)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecomputeSkipsUnchangedEstimates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)
	est := NewEstimator(15)

	providerID := uuid.New()
	date := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "booking_id", "provider_id", "queue_date", "position", "status",
		"estimated_wait_minutes", "actual_start_time", "actual_end_time", "created_at",
	}).
		AddRow(uuid.New(), uuid.New(), providerID, date, 4, "waiting", 0, (*time.Time)(nil), (*time.Time)(nil), now)
	mock.ExpectQuery("SELECT(.|\n)+FROM queue_entries").WithArgs(providerID, date).WillReturnRows(rows)

	// Estimate already correct: no UPDATE expected.
	_, err = est.Recompute(context.Background(), mock, repo, providerID, date)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
