package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordColumns() []string {
	return []string{"id", "booking_id", "provider", "provider_ref", "amount_cents", "currency", "status", "method", "created_at", "updated_at"}
}

func TestInsertRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)
	bookingID := uuid.New()

	mock.ExpectExec("INSERT INTO payments").
		WithArgs(pgxmock.AnyArg(), bookingID, "gateway", "chk_1", int64(6565), "USD", "pending", "online").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec := &Record{
		BookingID:   bookingID,
		Provider:    "gateway",
		ProviderRef: "chk_1",
		AmountCents: 6565,
		Currency:    "USD",
		Status:      StatusPending,
		Method:      "online",
	}
	require.NoError(t, repo.Insert(context.Background(), nil, rec))
	assert.NotEqual(t, uuid.Nil, rec.ID, "insert assigns an id")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusByRef(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)
	id, bookingID := uuid.New(), uuid.New()
	now := time.Now().UTC()

	rows := pgxmock.NewRows(recordColumns()).
		AddRow(id, bookingID, "gateway", "chk_1", int64(6565), "USD", "paid", "online", now, now)
	mock.ExpectQuery("UPDATE payments").
		WithArgs("paid", "chk_1").
		WillReturnRows(rows)

	rec, err := repo.UpdateStatusByRef(context.Background(), nil, "chk_1", StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, rec.Status)
	assert.Equal(t, bookingID, rec.BookingID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByBookingIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)
	bookingID := uuid.New()

	mock.ExpectQuery("SELECT(.|\n)+FROM payments").
		WithArgs(bookingID).
		WillReturnRows(pgxmock.NewRows(recordColumns()))

	_, err = repo.GetByBookingID(context.Background(), nil, bookingID)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestCoordinatorRecordsOnsitePromise(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	coord := NewCoordinator(NewFakeGateway("https://demo.careflow.health", nil), NewRepository(mock), nil)
	bookingID := uuid.New()

	mock.ExpectExec("INSERT INTO payments").
		WithArgs(pgxmock.AnyArg(), bookingID, "onsite", "onsite:"+bookingID.String(), int64(5050), "USD", "pending", "onsite").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec, err := coord.RecordOnsite(context.Background(), mock, bookingID, 5050, "USD")
	require.NoError(t, err)
	assert.Equal(t, "onsite", rec.Method)
	assert.Equal(t, StatusPending, rec.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
