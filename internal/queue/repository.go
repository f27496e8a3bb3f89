package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx the queue repository needs. Both
// *pgxpool.Pool and pgx.Tx satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrEntryNotFound is returned when a queue entry does not exist.
var ErrEntryNotFound = errors.New("queue: entry not found")

// Repository persists queue entries in Postgres.
type Repository struct {
	pool Querier
}

func NewRepository(pool Querier) *Repository {
	if pool == nil {
		panic("queue: pgx pool required")
	}
	return &Repository{pool: pool}
}

const entryColumns = `
	id, booking_id, provider_id, queue_date, position, status,
	estimated_wait_minutes, actual_start_time, actual_end_time, created_at
`

// GetByBookingID loads the entry for a booking.
func (r *Repository) GetByBookingID(ctx context.Context, q Querier, bookingID uuid.UUID) (*Entry, error) {
	if q == nil {
		q = r.pool
	}
	row := q.QueryRow(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE booking_id = $1`, bookingID)
	return scanEntry(row)
}

// ListWaiting returns the waiting entries of a partition ordered by position.
func (r *Repository) ListWaiting(ctx context.Context, q Querier, providerID uuid.UUID, date time.Time) ([]Entry, error) {
	if q == nil {
		q = r.pool
	}
	query := `
		SELECT ` + entryColumns + `
		FROM queue_entries
		WHERE provider_id = $1 AND queue_date = $2 AND status = 'waiting'
		ORDER BY position
	`
	return r.list(ctx, q, query, providerID, date)
}

// SnapshotRow is an active queue entry joined with the patient's name
// and the booking reason, for dashboard snapshots.
type SnapshotRow struct {
	Entry
	PatientName string
	Reason      string
}

// ListForSnapshot returns the active entries of a partition joined with
// patient and booking details, ordered by position.
func (r *Repository) ListForSnapshot(ctx context.Context, q Querier, providerID uuid.UUID, date time.Time) ([]SnapshotRow, error) {
	if q == nil {
		q = r.pool
	}
	query := `
		SELECT qe.id, qe.booking_id, qe.provider_id, qe.queue_date, qe.position, qe.status,
			qe.estimated_wait_minutes, qe.actual_start_time, qe.actual_end_time, qe.created_at,
			p.full_name, b.reason
		FROM queue_entries qe
		JOIN bookings b ON b.id = qe.booking_id
		JOIN patients p ON p.id = b.patient_id
		WHERE qe.provider_id = $1 AND qe.queue_date = $2 AND qe.status IN ('waiting', 'in_progress')
		ORDER BY qe.position
	`
	rows, err := q.Query(ctx, query, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("queue: list snapshot rows: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var sr SnapshotRow
		var status string
		err := rows.Scan(
			&sr.ID, &sr.BookingID, &sr.ProviderID, &sr.Date, &sr.Position, &status,
			&sr.EstimatedWaitMinutes, &sr.ActualStartTime, &sr.ActualEndTime, &sr.CreatedAt,
			&sr.PatientName, &sr.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("queue: scan snapshot row: %w", err)
		}
		sr.Status = Status(status)
		out = append(out, sr)
	}
	return out, rows.Err()
}

// CountByStatus returns how many entries of a partition are in the status.
func (r *Repository) CountByStatus(ctx context.Context, q Querier, providerID uuid.UUID, date time.Time, status Status) (int, error) {
	if q == nil {
		q = r.pool
	}
	var n int
	query := `SELECT COUNT(*) FROM queue_entries WHERE provider_id = $1 AND queue_date = $2 AND status = $3`
	if err := q.QueryRow(ctx, query, providerID, date, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue: count by status: %w", err)
	}
	return n, nil
}

// PeopleAhead counts waiting entries with a lower position than the given one.
func (r *Repository) PeopleAhead(ctx context.Context, q Querier, providerID uuid.UUID, date time.Time, position int) (int, error) {
	if q == nil {
		q = r.pool
	}
	var n int
	query := `
		SELECT COUNT(*)
		FROM queue_entries
		WHERE provider_id = $1 AND queue_date = $2 AND status = 'waiting' AND position < $3
	`
	if err := q.QueryRow(ctx, query, providerID, date, position).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue: count ahead: %w", err)
	}
	return n, nil
}

// LockLowestWaiting selects the lowest-position waiting entry of a
// partition with a row lock, so concurrent call-next operations cannot
// pick the same patient.
func (r *Repository) LockLowestWaiting(ctx context.Context, q Querier, providerID uuid.UUID, date time.Time) (*Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM queue_entries
		WHERE provider_id = $1 AND queue_date = $2 AND status = 'waiting'
		ORDER BY position
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`
	return scanEntry(q.QueryRow(ctx, query, providerID, date))
}

// UpdateStatus writes a status transition with its timestamps.
func (r *Repository) UpdateStatus(ctx context.Context, q Querier, e *Entry) error {
	if q == nil {
		q = r.pool
	}
	query := `
		UPDATE queue_entries
		SET status = $1, estimated_wait_minutes = $2,
			actual_start_time = $3, actual_end_time = $4
		WHERE id = $5
	`
	ct, err := q.Exec(ctx, query, string(e.Status), e.EstimatedWaitMinutes, e.ActualStartTime, e.ActualEndTime, e.ID)
	if err != nil {
		return fmt.Errorf("queue: update status: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrEntryNotFound
	}
	return nil
}

// SetWaitEstimate updates only the wait estimate of an entry.
func (r *Repository) SetWaitEstimate(ctx context.Context, q Querier, id uuid.UUID, minutes int) error {
	if q == nil {
		q = r.pool
	}
	query := `UPDATE queue_entries SET estimated_wait_minutes = $1 WHERE id = $2`
	if _, err := q.Exec(ctx, query, minutes, id); err != nil {
		return fmt.Errorf("queue: set wait estimate: %w", err)
	}
	return nil
}

func (r *Repository) list(ctx context.Context, q Querier, query string, args ...any) ([]Entry, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("queue: list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var status string
	err := row.Scan(
		&e.ID, &e.BookingID, &e.ProviderID, &e.Date, &e.Position, &status,
		&e.EstimatedWaitMinutes, &e.ActualStartTime, &e.ActualEndTime, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("queue: scan entry: %w", err)
	}
	e.Status = Status(status)
	return &e, nil
}
