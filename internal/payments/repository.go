package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx the payments repository needs; pgx.Tx and
// *pgxpool.Pool both satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrRecordNotFound is returned when a payment record does not exist.
var ErrRecordNotFound = errors.New("payments: record not found")

// Record statuses.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

// Record is a payment against a booking. One booking has at most one
// record; the booking stores only the reference and the outcome.
type Record struct {
	ID          uuid.UUID
	BookingID   uuid.UUID
	Provider    string // gateway, onsite, fake
	ProviderRef string
	AmountCents int64
	Currency    string
	Status      string
	Method      string // online, onsite
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository persists payment records and their lifecycle transitions.
type Repository struct {
	pool Querier
}

func NewRepository(pool Querier) *Repository {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &Repository{pool: pool}
}

// Insert persists a payment record. The unique constraint on booking_id
// makes a retried insert for the same booking fail loudly instead of
// double-recording.
func (r *Repository) Insert(ctx context.Context, q Querier, rec *Record) error {
	if q == nil {
		q = r.pool
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	query := `
		INSERT INTO payments (id, booking_id, provider, provider_ref, amount_cents, currency, status, method)
		VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8)
	`
	_, err := q.Exec(ctx, query, rec.ID, rec.BookingID, rec.Provider, rec.ProviderRef, rec.AmountCents, rec.Currency, rec.Status, rec.Method)
	if err != nil {
		return fmt.Errorf("payments: insert record: %w", err)
	}
	return nil
}

// UpdateStatusByRef transitions a record by provider reference, idempotent
// on the target status.
func (r *Repository) UpdateStatusByRef(ctx context.Context, q Querier, providerRef, status string) (*Record, error) {
	if q == nil {
		q = r.pool
	}
	query := `
		UPDATE payments
		SET status = $1, updated_at = now()
		WHERE provider_ref = $2
		RETURNING id, booking_id, provider, COALESCE(provider_ref, ''), amount_cents, currency, status, method, created_at, updated_at
	`
	return scanRecord(q.QueryRow(ctx, query, status, providerRef))
}

// UpdateStatusByBookingID transitions a record by its booking.
func (r *Repository) UpdateStatusByBookingID(ctx context.Context, q Querier, bookingID uuid.UUID, status string) (*Record, error) {
	if q == nil {
		q = r.pool
	}
	query := `
		UPDATE payments
		SET status = $1, updated_at = now()
		WHERE booking_id = $2
		RETURNING id, booking_id, provider, COALESCE(provider_ref, ''), amount_cents, currency, status, method, created_at, updated_at
	`
	return scanRecord(q.QueryRow(ctx, query, status, bookingID))
}

// GetByBookingID loads the payment record for a booking.
func (r *Repository) GetByBookingID(ctx context.Context, q Querier, bookingID uuid.UUID) (*Record, error) {
	if q == nil {
		q = r.pool
	}
	query := `
		SELECT id, booking_id, provider, COALESCE(provider_ref, ''), amount_cents, currency, status, method, created_at, updated_at
		FROM payments
		WHERE booking_id = $1
	`
	return scanRecord(q.QueryRow(ctx, query, bookingID))
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.BookingID, &rec.Provider, &rec.ProviderRef, &rec.AmountCents, &rec.Currency, &rec.Status, &rec.Method, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("payments: scan record: %w", err)
	}
	return &rec, nil
}
