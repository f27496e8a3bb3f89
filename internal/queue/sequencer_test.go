package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryRowColumns() []string {
	return []string{
		"id", "booking_id", "provider_id", "queue_date", "position", "status",
		"estimated_wait_minutes", "actual_start_time", "actual_end_time", "created_at",
	}
}

func TestAssignTakesPartitionLockAndIncrementsMax(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	seq := NewSequencer(NewEstimator(15), nil)
	providerID := uuid.New()
	bookingID := uuid.New()
	date := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT(.|\n)+FROM queue_entries WHERE booking_id").
		WithArgs(bookingID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(providerID.String(), "2026-03-09").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(position\\), 0\\)").
		WithArgs(providerID, date).
		WillReturnRows(pgxmock.NewRows([]string{"next", "active"}).AddRow(3, 2))
	mock.ExpectExec("INSERT INTO queue_entries").
		WithArgs(pgxmock.AnyArg(), bookingID, providerID, date, 3, "waiting", 30).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	entry, err := seq.Assign(context.Background(), mock, providerID, date, bookingID)
	require.NoError(t, err)

	assert.Equal(t, 3, entry.Position)
	assert.Equal(t, StatusWaiting, entry.Status)
	assert.Equal(t, 30, entry.EstimatedWaitMinutes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignContinuesPastCompletedPositions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	seq := NewSequencer(NewEstimator(15), nil)
	providerID := uuid.New()
	bookingID := uuid.New()
	date := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	// Four entries served and completed, none active. The next booking
	// must take position 5, never reuse position 1, and wait zero
	// minutes because nobody is ahead.
	mock.ExpectQuery("SELECT(.|\n)+FROM queue_entries WHERE booking_id").
		WithArgs(bookingID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(providerID.String(), "2026-03-09").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(position\\), 0\\)").
		WithArgs(providerID, date).
		WillReturnRows(pgxmock.NewRows([]string{"next", "active"}).AddRow(5, 0))
	mock.ExpectExec("INSERT INTO queue_entries").
		WithArgs(pgxmock.AnyArg(), bookingID, providerID, date, 5, "waiting", 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	entry, err := seq.Assign(context.Background(), mock, providerID, date, bookingID)
	require.NoError(t, err)

	assert.Equal(t, 5, entry.Position)
	assert.Equal(t, 0, entry.EstimatedWaitMinutes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignIsIdempotentByBooking(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	seq := NewSequencer(NewEstimator(15), nil)
	providerID := uuid.New()
	bookingID := uuid.New()
	entryID := uuid.New()
	date := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	// A prior attempt already enqueued this booking: no lock, no insert.
	rows := pgxmock.NewRows(entryRowColumns()).
		AddRow(entryID, bookingID, providerID, date, 2, "waiting", 15, (*time.Time)(nil), (*time.Time)(nil), now)
	mock.ExpectQuery("SELECT(.|\n)+FROM queue_entries WHERE booking_id").
		WithArgs(bookingID).
		WillReturnRows(rows)

	entry, err := seq.Assign(context.Background(), mock, providerID, date, bookingID)
	require.NoError(t, err)

	assert.Equal(t, entryID, entry.ID)
	assert.Equal(t, 2, entry.Position)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignRequiresTransaction(t *testing.T) {
	seq := NewSequencer(NewEstimator(15), nil)
	_, err := seq.Assign(context.Background(), nil, uuid.New(), time.Now(), uuid.New())
	require.Error(t, err)
}

func TestIsRetryableConflict(t *testing.T) {
	assert.True(t, IsRetryableConflict(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsRetryableConflict(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, IsRetryableConflict(&pgconn.PgError{Code: "23505", ConstraintName: "queue_entries_provider_position_key"}))
	assert.False(t, IsRetryableConflict(&pgconn.PgError{Code: "23505", ConstraintName: "queue_entries_booking_id_key"}))
	assert.False(t, IsRetryableConflict(pgx.ErrNoRows))
	assert.False(t, IsRetryableConflict(nil))
}
