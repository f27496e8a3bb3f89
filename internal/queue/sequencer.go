package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/careflow-platform/pkg/logging"
)

// Sequencer assigns the next queue position within a (provider, date)
// partition. Assignment runs inside the caller's transaction and takes a
// partition-scoped advisory lock, so two concurrent bookings for the same
// provider and day serialize against each other while unrelated providers
// proceed in parallel.
type Sequencer struct {
	estimator *Estimator
	logger    *logging.Logger
}

func NewSequencer(estimator *Estimator, logger *logging.Logger) *Sequencer {
	if estimator == nil {
		panic("queue: estimator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sequencer{estimator: estimator, logger: logger}
}

// Assign creates the queue entry for a booking and returns it. The call is
// idempotent by booking id: a retry after a conflict returns the entry the
// first attempt created instead of inserting a duplicate. tx must be a
// transaction-scoped Querier; the advisory lock releases on commit or
// rollback.
func (s *Sequencer) Assign(ctx context.Context, tx Querier, providerID uuid.UUID, date time.Time, bookingID uuid.UUID) (*Entry, error) {
	if tx == nil {
		return nil, fmt.Errorf("queue: assign requires a transaction")
	}

	// Idempotency guard: a prior attempt may already have enqueued this booking.
	existing, err := getEntryForBooking(ctx, tx, bookingID)
	if err != nil && !errors.Is(err, ErrEntryNotFound) {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	lockQuery := `SELECT pg_advisory_xact_lock(hashtextextended($1 || ':' || $2, 0))`
	if _, err := tx.Exec(ctx, lockQuery, providerID.String(), date.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("queue: acquire partition lock: %w", err)
	}

	// Positions are never reused within a partition: completed and
	// cancelled rows keep theirs, so the next position comes from the
	// all-time maximum. The wait estimate instead counts only entries
	// still ahead of this one.
	var next, active int
	maxQuery := `
		SELECT COALESCE(MAX(position), 0) + 1,
		       COUNT(*) FILTER (WHERE status IN ('waiting', 'in_progress'))
		FROM queue_entries
		WHERE provider_id = $1 AND queue_date = $2
	`
	if err := tx.QueryRow(ctx, maxQuery, providerID, date).Scan(&next, &active); err != nil {
		return nil, fmt.Errorf("queue: compute next position: %w", err)
	}

	entry := &Entry{
		ID:                   uuid.New(),
		BookingID:            bookingID,
		ProviderID:           providerID,
		Date:                 date,
		Position:             next,
		Status:               StatusWaiting,
		EstimatedWaitMinutes: s.estimator.ForPosition(active + 1),
	}
	insert := `
		INSERT INTO queue_entries (
			id, booking_id, provider_id, queue_date, position, status, estimated_wait_minutes
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`
	if _, err := tx.Exec(ctx, insert, entry.ID, entry.BookingID, entry.ProviderID, entry.Date, entry.Position, string(entry.Status), entry.EstimatedWaitMinutes); err != nil {
		return nil, fmt.Errorf("queue: insert entry: %w", err)
	}
	s.logger.Debug("queue position assigned", "provider_id", providerID, "booking_id", bookingID, "position", next)
	return entry, nil
}

func getEntryForBooking(ctx context.Context, q Querier, bookingID uuid.UUID) (*Entry, error) {
	row := q.QueryRow(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE booking_id = $1`, bookingID)
	return scanEntry(row)
}

// IsRetryableConflict reports whether the error is a serialization failure
// or a unique-position violation that a fresh transaction may resolve.
func IsRetryableConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected, 23505 unique_violation
	switch pgErr.Code {
	case "40001", "40P01":
		return true
	case "23505":
		return pgErr.ConstraintName == "queue_entries_provider_position_key"
	default:
		return false
	}
}
