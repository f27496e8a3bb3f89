package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx used by repository reads/writes. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so every method can run inside
// the orchestrator's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool adds transaction support on top of Querier.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrVersionConflict is returned when an optimistic-concurrency update
// loses the race.
var ErrVersionConflict = errors.New("booking: version conflict")

// Repository persists bookings and their service snapshots in Postgres.
type Repository struct {
	pool PgxPool
}

func NewRepository(pool PgxPool) *Repository {
	if pool == nil {
		panic("booking: pgx pool required")
	}
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const bookingColumns = `
	id, patient_id, provider_id, booking_date, time_slot, appointment_type,
	reason, idempotency_key, currency, consultation_fee, services_total,
	subtotal, platform_fee, final_total, payment_status, payment_method,
	payment_ref, status, queue_number, version, created_at, completed_at,
	cancelled_at
`

// Insert persists a new booking row.
func (r *Repository) Insert(ctx context.Context, q Querier, b *Booking) error {
	if q == nil {
		q = r.pool
	}
	query := `
		INSERT INTO bookings (
			id, patient_id, provider_id, booking_date, time_slot,
			appointment_type, reason, idempotency_key, currency,
			consultation_fee, services_total, subtotal, platform_fee,
			final_total, payment_status, payment_method, payment_ref, status
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,$10,$11,$12,$13,$14,$15,$16,NULLIF($17,''),$18)
	`
	_, err := q.Exec(ctx, query,
		b.ID, b.PatientID, b.ProviderID, b.Date, b.TimeSlot,
		b.AppointmentType, b.Reason, b.IdempotencyKey, b.Currency,
		b.ConsultationFee, b.ServicesTotal, b.Subtotal, b.PlatformFee,
		b.FinalTotal, string(b.PaymentStatus), string(b.PaymentMethod),
		b.PaymentRef, string(b.Status),
	)
	if err != nil {
		return fmt.Errorf("booking: insert: %w", err)
	}
	return nil
}

// InsertServiceLines snapshots the priced add-on services for a booking.
func (r *Repository) InsertServiceLines(ctx context.Context, q Querier, bookingID uuid.UUID, lines []ServiceLine) error {
	if q == nil {
		q = r.pool
	}
	query := `
		INSERT INTO booking_services (id, booking_id, service_id, name, unit_price, quantity, subtotal)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`
	for _, line := range lines {
		if _, err := q.Exec(ctx, query, line.ID, bookingID, line.ServiceID, line.Name, line.UnitPrice, line.Quantity, line.Subtotal); err != nil {
			return fmt.Errorf("booking: insert service line: %w", err)
		}
	}
	return nil
}

// GetByID loads a booking, returning ErrNotFound when absent.
func (r *Repository) GetByID(ctx context.Context, q Querier, id uuid.UUID) (*Booking, error) {
	if q == nil {
		q = r.pool
	}
	row := q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

// GetByIdempotencyKey looks up the most recent non-failed booking for a
// client-supplied idempotency key.
func (r *Repository) GetByIdempotencyKey(ctx context.Context, q Querier, key string) (*Booking, error) {
	if q == nil {
		q = r.pool
	}
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE idempotency_key = $1 AND status NOT IN ('rejected', 'cancelled')
		ORDER BY created_at DESC
		LIMIT 1
	`
	row := q.QueryRow(ctx, query, key)
	return scanBooking(row)
}

// UpdateStatus transitions a booking with an optimistic version check.
// The caller decides the transition legality via Booking.Transition.
func (r *Repository) UpdateStatus(ctx context.Context, q Querier, b *Booking) error {
	if q == nil {
		q = r.pool
	}
	query := `
		UPDATE bookings
		SET status = $1, payment_status = $2, payment_ref = NULLIF($3, ''),
			queue_number = $4, completed_at = $5, cancelled_at = $6,
			version = version + 1
		WHERE id = $7 AND version = $8
	`
	ct, err := q.Exec(ctx, query,
		string(b.Status), string(b.PaymentStatus), b.PaymentRef,
		b.QueueNumber, b.CompletedAt, b.CancelledAt, b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("booking: update status: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrVersionConflict
	}
	b.Version++
	return nil
}

// ListStalePending returns online-payment bookings that have sat in
// pending longer than maxAge, for the reconciliation worker.
func (r *Repository) ListStalePending(ctx context.Context, maxAge time.Duration, limit int32) ([]Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'pending' AND payment_method = 'online'
			AND payment_status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, time.Now().UTC().Add(-maxAge), limit)
	if err != nil {
		return nil, fmt.Errorf("booking: list stale pending: %w", err)
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// ServiceLines loads the snapshotted add-on services of a booking.
func (r *Repository) ServiceLines(ctx context.Context, q Querier, bookingID uuid.UUID) ([]ServiceLine, error) {
	if q == nil {
		q = r.pool
	}
	query := `
		SELECT id, booking_id, service_id, name, unit_price, quantity, subtotal
		FROM booking_services
		WHERE booking_id = $1
		ORDER BY name
	`
	rows, err := q.Query(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("booking: load service lines: %w", err)
	}
	defer rows.Close()

	var lines []ServiceLine
	for rows.Next() {
		var line ServiceLine
		if err := rows.Scan(&line.ID, &line.BookingID, &line.ServiceID, &line.Name, &line.UnitPrice, &line.Quantity, &line.Subtotal); err != nil {
			return nil, fmt.Errorf("booking: scan service line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var idemKey, paymentRef *string
	var status, paymentStatus, paymentMethod string
	err := row.Scan(
		&b.ID, &b.PatientID, &b.ProviderID, &b.Date, &b.TimeSlot,
		&b.AppointmentType, &b.Reason, &idemKey, &b.Currency,
		&b.ConsultationFee, &b.ServicesTotal, &b.Subtotal, &b.PlatformFee,
		&b.FinalTotal, &paymentStatus, &paymentMethod, &paymentRef,
		&status, &b.QueueNumber, &b.Version, &b.CreatedAt, &b.CompletedAt,
		&b.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("booking: scan: %w", err)
	}
	if idemKey != nil {
		b.IdempotencyKey = *idemKey
	}
	if paymentRef != nil {
		b.PaymentRef = *paymentRef
	}
	b.Status = Status(status)
	b.PaymentStatus = PaymentStatus(paymentStatus)
	b.PaymentMethod = PaymentMethod(paymentMethod)
	return &b, nil
}
