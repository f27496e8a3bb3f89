package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/careflow-platform/internal/catalog"
	"github.com/wolfman30/careflow-platform/internal/events"
	"github.com/wolfman30/careflow-platform/internal/observability/metrics"
	"github.com/wolfman30/careflow-platform/internal/payments"
	"github.com/wolfman30/careflow-platform/internal/queue"
	"github.com/wolfman30/careflow-platform/pkg/logging"
)

// Orchestrator drives a booking through its lifecycle: pricing, payment,
// confirmation, queue assignment, and completion. It owns every
// multi-table transaction so the leaf packages stay composable.
type Orchestrator struct {
	pool      PgxPool
	bookings  *Repository
	catalog   *catalog.Repository
	fees      *FeeCalculator
	payments  *payments.Coordinator
	sequencer *queue.Sequencer
	entries   *queue.Repository
	estimator *queue.Estimator
	outbox    *events.OutboxStore
	logger    *logging.Logger
	tracer    trace.Tracer

	hub     *queue.Hub
	metrics *metrics.BookingMetrics

	successURL      string
	cancelURL       string
	defaultCurrency string
	conflictRetries int
}

func NewOrchestrator(
	pool PgxPool,
	bookings *Repository,
	catalogRepo *catalog.Repository,
	fees *FeeCalculator,
	coordinator *payments.Coordinator,
	sequencer *queue.Sequencer,
	entries *queue.Repository,
	estimator *queue.Estimator,
	outbox *events.OutboxStore,
	logger *logging.Logger,
) *Orchestrator {
	if pool == nil {
		panic("booking: pgx pool required")
	}
	if bookings == nil || catalogRepo == nil || fees == nil || coordinator == nil {
		panic("booking: repositories and fee calculator required")
	}
	if sequencer == nil || entries == nil || estimator == nil || outbox == nil {
		panic("booking: queue and outbox collaborators required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		pool:            pool,
		bookings:        bookings,
		catalog:         catalogRepo,
		fees:            fees,
		payments:        coordinator,
		sequencer:       sequencer,
		entries:         entries,
		estimator:       estimator,
		outbox:          outbox,
		logger:          logger,
		tracer:          otel.Tracer("careflow.internal.booking"),
		defaultCurrency: "USD",
		conflictRetries: 3,
	}
}

// WithHub attaches the live queue feed; snapshots are broadcast after
// each committed queue change.
func (o *Orchestrator) WithHub(hub *queue.Hub) *Orchestrator {
	o.hub = hub
	return o
}

// WithMetrics attaches booking metrics.
func (o *Orchestrator) WithMetrics(m *metrics.BookingMetrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithCheckoutURLs sets the redirect targets passed to the gateway.
func (o *Orchestrator) WithCheckoutURLs(success, cancel string) *Orchestrator {
	o.successURL = success
	o.cancelURL = cancel
	return o
}

// WithDefaultCurrency sets the fallback currency for providers that do
// not carry one.
func (o *Orchestrator) WithDefaultCurrency(code string) *Orchestrator {
	if code != "" {
		o.defaultCurrency = code
	}
	return o
}

// WithConflictRetries bounds the internal retry loop for queue position
// races.
func (o *Orchestrator) WithConflictRetries(n int) *Orchestrator {
	if n > 0 {
		o.conflictRetries = n
	}
	return o
}

// CreateRequest is a patient's booking request.
type CreateRequest struct {
	PatientID       uuid.UUID
	ProviderID      uuid.UUID
	Date            time.Time
	TimeSlot        string
	AppointmentType string
	Reason          string
	ServiceIDs      []uuid.UUID
	PaymentMethod   PaymentMethod
	IdempotencyKey  string
}

// CreateResult is the outcome of a booking request. For online payments
// the booking is pending and CheckoutURL carries the patient to the
// gateway; for on-site payments the booking is already confirmed and
// QueueEntry holds its queue position.
type CreateResult struct {
	Booking     *Booking
	Lines       []ServiceLine
	CheckoutURL string
	QueueEntry  *queue.Entry
	Replayed    bool
}

// CreateBooking prices and persists a booking. On-site payment confirms
// and enqueues synchronously; online payment creates a gateway checkout
// before anything is persisted, so a gateway failure leaves no state
// behind.
func (o *Orchestrator) CreateBooking(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	ctx, span := o.tracer.Start(ctx, "booking.create")
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}
	req.Date = normalizeDate(req.Date)

	// Replay: a retried request with the same key gets its original booking
	// back instead of a duplicate.
	if req.IdempotencyKey != "" {
		replayed, err := o.replayByKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if replayed != nil {
			return replayed, nil
		}
	}

	provider, err := o.catalog.GetProvider(ctx, req.ProviderID)
	if err != nil {
		if errors.Is(err, catalog.ErrProviderNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	services, err := o.catalog.ListServices(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	currency := provider.Currency
	if currency == "" {
		currency = o.defaultCurrency
	}
	breakdown := o.fees.Calculate(provider.ID, currency, provider.ConsultationFee, req.ServiceIDs, toAddOns(services))

	b := &Booking{
		ID:              uuid.New(),
		PatientID:       req.PatientID,
		ProviderID:      req.ProviderID,
		Date:            req.Date,
		TimeSlot:        req.TimeSlot,
		AppointmentType: req.AppointmentType,
		Reason:          req.Reason,
		IdempotencyKey:  req.IdempotencyKey,
		Currency:        breakdown.Currency,
		ConsultationFee: breakdown.ConsultationFee,
		ServicesTotal:   breakdown.ServicesTotal,
		Subtotal:        breakdown.Subtotal,
		PlatformFee:     breakdown.PlatformFee,
		FinalTotal:      breakdown.FinalTotal,
		PaymentMethod:   req.PaymentMethod,
		Status:          StatusPending,
	}
	for i := range breakdown.Lines {
		breakdown.Lines[i].BookingID = b.ID
	}

	var res *CreateResult
	switch req.PaymentMethod {
	case MethodOnline:
		res, err = o.createOnline(ctx, b, breakdown.Lines, provider.Name)
	case MethodOnsite:
		res, err = o.createOnsite(ctx, b, breakdown.Lines)
	default:
		return nil, &ValidationError{Field: "payment_method", Reason: "must be online or onsite"}
	}
	if err != nil {
		// Two concurrent requests with the same key can both pass the
		// pre-insert lookup; the loser hits the partial unique index and
		// gets the winner's booking back.
		if req.IdempotencyKey != "" && isIdempotencyCollision(err) {
			replayed, rerr := o.replayByKey(ctx, req.IdempotencyKey)
			if rerr != nil {
				return nil, rerr
			}
			if replayed != nil {
				return replayed, nil
			}
		}
		return nil, err
	}
	return res, nil
}

// replayByKey loads the original result of a previously accepted request
// with the same idempotency key. Returns nil when none exists.
func (o *Orchestrator) replayByKey(ctx context.Context, key string) (*CreateResult, error) {
	existing, err := o.bookings.GetByIdempotencyKey(ctx, nil, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	lines, err := o.bookings.ServiceLines(ctx, nil, existing.ID)
	if err != nil {
		return nil, err
	}
	entry, err := o.entries.GetByBookingID(ctx, nil, existing.ID)
	if err != nil && !errors.Is(err, queue.ErrEntryNotFound) {
		return nil, err
	}
	o.logger.Info("booking replayed by idempotency key", "booking_id", existing.ID, "key", key)
	return &CreateResult{Booking: existing, Lines: lines, QueueEntry: entry, Replayed: true}, nil
}

func isIdempotencyCollision(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "bookings_idempotency_key_live"
}

func (o *Orchestrator) createOnline(ctx context.Context, b *Booking, lines []ServiceLine, providerName string) (*CreateResult, error) {
	// The gateway call happens before any row exists: a declined or
	// unreachable gateway means nothing to clean up and no charge.
	start := time.Now()
	checkout, err := o.payments.InitiateOnline(ctx, payments.CheckoutParams{
		BookingID:   b.ID,
		PatientID:   b.PatientID,
		AmountCents: b.FinalTotal,
		Currency:    b.Currency,
		Description: fmt.Sprintf("Consultation with %s", providerName),
		SuccessURL:  o.successURL,
		CancelURL:   o.cancelURL,
	})
	o.metrics.ObserveGatewayLatency("checkout", time.Since(start).Seconds())
	if err != nil {
		o.metrics.ObserveBooking("online", "gateway_failed")
		return nil, &PaymentInitiationError{Err: err}
	}

	b.PaymentStatus = PaymentPending
	b.PaymentRef = checkout.ProviderRef

	err = o.inTx(ctx, func(tx pgx.Tx) error {
		if err := o.bookings.Insert(ctx, tx, b); err != nil {
			return err
		}
		if err := o.bookings.InsertServiceLines(ctx, tx, b.ID, lines); err != nil {
			return err
		}
		_, err := o.payments.RecordOnline(ctx, tx, b.ID, checkout.ProviderRef, b.FinalTotal, b.Currency)
		return err
	})
	if err != nil {
		return nil, err
	}

	o.metrics.ObserveBooking("online", "pending")
	o.logger.Info("booking created, awaiting payment",
		"booking_id", b.ID, "provider_id", b.ProviderID, "amount_cents", b.FinalTotal)
	return &CreateResult{Booking: b, Lines: lines, CheckoutURL: checkout.URL}, nil
}

func (o *Orchestrator) createOnsite(ctx context.Context, b *Booking, lines []ServiceLine) (*CreateResult, error) {
	b.PaymentStatus = PaymentPendingOnsite

	var entry *queue.Entry
	err := o.withConflictRetry(ctx, func() error {
		return o.inTx(ctx, func(tx pgx.Tx) error {
			if err := o.bookings.Insert(ctx, tx, b); err != nil {
				return err
			}
			if err := o.bookings.InsertServiceLines(ctx, tx, b.ID, lines); err != nil {
				return err
			}
			if _, err := o.payments.RecordOnsite(ctx, tx, b.ID, b.FinalTotal, b.Currency); err != nil {
				return err
			}
			var err error
			entry, err = o.confirmAndEnqueue(ctx, tx, b)
			return err
		})
	})
	if err != nil {
		o.metrics.ObserveBooking("onsite", "failed")
		return nil, err
	}

	o.metrics.ObserveBooking("onsite", "confirmed")
	o.logger.Info("booking confirmed with onsite payment",
		"booking_id", b.ID, "provider_id", b.ProviderID, "queue_position", entry.Position)
	o.broadcast(ctx, b.ProviderID, b.Date)
	return &CreateResult{Booking: b, Lines: lines, QueueEntry: entry}, nil
}

// HandlePaymentSucceeded finalizes a booking after the gateway reported
// the checkout paid: the payment record settles, the booking confirms,
// and a queue position is assigned, all in one transaction. Replays are
// no-ops.
func (o *Orchestrator) HandlePaymentSucceeded(ctx context.Context, bookingID uuid.UUID, providerRef string) error {
	ctx, span := o.tracer.Start(ctx, "booking.payment_succeeded")
	defer span.End()

	var b *Booking
	var confirmed bool
	err := o.withConflictRetry(ctx, func() error {
		confirmed = false
		return o.inTx(ctx, func(tx pgx.Tx) error {
			var err error
			b, err = o.bookings.GetByID(ctx, tx, bookingID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					// The webhook handler acknowledges unknown bookings on
					// this sentinel so the gateway stops retrying.
					return fmt.Errorf("booking: finalize %s: %w", bookingID, payments.ErrRecordNotFound)
				}
				return err
			}
			if b.Status != StatusPending {
				// Late or duplicate callback; the money is settled either way.
				if _, err := o.payments.MarkPaid(ctx, tx, providerRef); err != nil && !errors.Is(err, payments.ErrRecordNotFound) {
					return err
				}
				o.logger.Warn("payment callback for non-pending booking",
					"booking_id", bookingID, "status", string(b.Status))
				return nil
			}
			if _, err := o.payments.MarkPaid(ctx, tx, providerRef); err != nil {
				return err
			}
			b.PaymentStatus = PaymentPaid
			b.PaymentRef = providerRef
			if _, err := o.confirmAndEnqueue(ctx, tx, b); err != nil {
				return err
			}
			confirmed = true
			return nil
		})
	})
	if err != nil {
		return err
	}
	if confirmed {
		o.metrics.ObserveBooking("online", "confirmed")
		o.broadcast(ctx, b.ProviderID, b.Date)
	}
	return nil
}

// HandlePaymentFailed cancels a pending booking whose checkout failed or
// expired. Replays and callbacks for already-terminal bookings are no-ops.
func (o *Orchestrator) HandlePaymentFailed(ctx context.Context, bookingID uuid.UUID, providerRef, reason string) error {
	return o.inTx(ctx, func(tx pgx.Tx) error {
		b, err := o.bookings.GetByID(ctx, tx, bookingID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("booking: finalize %s: %w", bookingID, payments.ErrRecordNotFound)
			}
			return err
		}
		if b.Status != StatusPending {
			o.logger.Warn("payment failure callback for non-pending booking",
				"booking_id", bookingID, "status", string(b.Status))
			return nil
		}
		if _, err := o.payments.MarkFailed(ctx, tx, providerRef); err != nil && !errors.Is(err, payments.ErrRecordNotFound) {
			return err
		}
		b.PaymentStatus = PaymentFailed
		if err := b.Transition(StatusCancelled); err != nil {
			return err
		}
		if err := o.bookings.UpdateStatus(ctx, tx, b); err != nil {
			return err
		}
		_, err = o.outbox.Insert(ctx, tx, b.ID, events.TypePaymentFailed, events.PaymentFailedV1{
			EventID:     uuid.NewString(),
			BookingID:   b.ID.String(),
			PatientID:   b.PatientID.String(),
			ProviderID:  b.ProviderID.String(),
			ProviderRef: providerRef,
			Reason:      reason,
			AmountCents: b.FinalTotal,
			Currency:    b.Currency,
			OccurredAt:  time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		o.metrics.ObserveBooking("online", "payment_failed")
		o.logger.Info("booking cancelled after payment failure",
			"booking_id", b.ID, "reason", reason)
		return nil
	})
}

// CallNextResult is the outcome of advancing the queue.
type CallNextResult struct {
	Entry   *queue.Entry
	Booking *Booking
	Waiting []queue.Entry
}

// CallNext moves the lowest-position waiting patient to in-progress and
// refreshes the wait estimates of everyone behind them. Returns
// ErrEmptyQueue when nobody is waiting.
func (o *Orchestrator) CallNext(ctx context.Context, providerID uuid.UUID, date time.Time) (*CallNextResult, error) {
	ctx, span := o.tracer.Start(ctx, "booking.call_next")
	defer span.End()

	date = normalizeDate(date)
	var result CallNextResult
	err := o.inTx(ctx, func(tx pgx.Tx) error {
		entry, err := o.entries.LockLowestWaiting(ctx, tx, providerID, date)
		if err != nil {
			if errors.Is(err, queue.ErrEntryNotFound) {
				return ErrEmptyQueue
			}
			return err
		}

		now := time.Now().UTC()
		entry.Status = queue.StatusInProgress
		entry.ActualStartTime = &now
		entry.EstimatedWaitMinutes = 0
		if err := o.entries.UpdateStatus(ctx, tx, entry); err != nil {
			return err
		}

		b, err := o.bookings.GetByID(ctx, tx, entry.BookingID)
		if err != nil {
			return err
		}
		if err := b.Transition(StatusInProgress); err != nil {
			return err
		}
		if err := o.bookings.UpdateStatus(ctx, tx, b); err != nil {
			return err
		}

		if _, err := o.outbox.Insert(ctx, tx, b.ID, events.TypeQueueTurn, events.QueueTurnV1{
			EventID:    uuid.NewString(),
			BookingID:  b.ID.String(),
			PatientID:  b.PatientID.String(),
			ProviderID: providerID.String(),
			Position:   entry.Position,
			OccurredAt: now,
		}); err != nil {
			return err
		}

		waiting, err := o.estimator.Recompute(ctx, tx, o.entries, providerID, date)
		if err != nil {
			return err
		}
		for _, w := range waiting {
			wb, err := o.bookings.GetByID(ctx, tx, w.BookingID)
			if err != nil {
				return err
			}
			if _, err := o.outbox.Insert(ctx, tx, w.BookingID, events.TypeQueueAdvanced, events.QueueAdvancedV1{
				EventID:              uuid.NewString(),
				BookingID:            w.BookingID.String(),
				PatientID:            wb.PatientID.String(),
				ProviderID:           providerID.String(),
				Position:             w.Position,
				EstimatedWaitMinutes: w.EstimatedWaitMinutes,
				OccurredAt:           now,
			}); err != nil {
				return err
			}
		}

		result = CallNextResult{Entry: entry, Booking: b, Waiting: waiting}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("queue advanced",
		"provider_id", providerID, "booking_id", result.Booking.ID,
		"position", result.Entry.Position, "waiting", len(result.Waiting))
	o.broadcast(ctx, providerID, date)
	return &result, nil
}

// CompleteResult is the outcome of finishing a visit.
type CompleteResult struct {
	Booking         *Booking
	DurationMinutes int
}

// Complete finishes an in-progress visit and records the observed
// service duration. The booking must belong to the calling provider.
func (o *Orchestrator) Complete(ctx context.Context, providerID, bookingID uuid.UUID) (*CompleteResult, error) {
	var b *Booking
	var minutes int
	err := o.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		b, err = o.bookings.GetByID(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if b.ProviderID != providerID {
			return ErrNotFound
		}
		if err := b.Transition(StatusCompleted); err != nil {
			return err
		}
		if err := o.bookings.UpdateStatus(ctx, tx, b); err != nil {
			return err
		}

		entry, err := o.entries.GetByBookingID(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		entry.Status = queue.StatusCompleted
		entry.ActualEndTime = &now
		if err := o.entries.UpdateStatus(ctx, tx, entry); err != nil {
			return err
		}

		minutes = 0
		if d, ok := entry.Duration(); ok {
			minutes = int(d.Round(time.Minute) / time.Minute)
		}
		_, err = o.outbox.Insert(ctx, tx, b.ID, events.TypeBookingCompleted, events.BookingCompletedV1{
			EventID:         uuid.NewString(),
			BookingID:       b.ID.String(),
			PatientID:       b.PatientID.String(),
			ProviderID:      b.ProviderID.String(),
			DurationMinutes: minutes,
			OccurredAt:      now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("booking completed", "booking_id", b.ID, "duration_minutes", minutes)
	o.broadcast(ctx, b.ProviderID, b.Date)
	return &CompleteResult{Booking: b, DurationMinutes: minutes}, nil
}

// QueueStatus builds the provider-facing snapshot of a day's queue.
func (o *Orchestrator) QueueStatus(ctx context.Context, providerID uuid.UUID, date time.Time) (*queue.Snapshot, error) {
	date = normalizeDate(date)
	snap, err := o.buildSnapshot(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	o.metrics.SetQueueDepth(providerID.String(), snap.Waiting)
	return snap, nil
}

// PositionInfo is the patient-facing view of their place in the queue.
type PositionInfo struct {
	Position             int
	PeopleAhead          int
	EstimatedWaitMinutes int
	Status               queue.Status
}

// MyPosition reports a patient's place in the queue for their booking.
func (o *Orchestrator) MyPosition(ctx context.Context, patientID, bookingID uuid.UUID) (*PositionInfo, error) {
	b, err := o.bookings.GetByID(ctx, nil, bookingID)
	if err != nil {
		return nil, err
	}
	if b.PatientID != patientID {
		return nil, ErrNotFound
	}
	entry, err := o.entries.GetByBookingID(ctx, nil, bookingID)
	if err != nil {
		if errors.Is(err, queue.ErrEntryNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ahead, err := o.entries.PeopleAhead(ctx, nil, entry.ProviderID, entry.Date, entry.Position)
	if err != nil {
		return nil, err
	}
	return &PositionInfo{
		Position:             entry.Position,
		PeopleAhead:          ahead,
		EstimatedWaitMinutes: entry.EstimatedWaitMinutes,
		Status:               entry.Status,
	}, nil
}

// GetBooking loads a booking with its service lines, scoped to the
// requesting patient.
func (o *Orchestrator) GetBooking(ctx context.Context, patientID, bookingID uuid.UUID) (*Booking, []ServiceLine, error) {
	b, err := o.bookings.GetByID(ctx, nil, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if b.PatientID != patientID {
		return nil, nil, ErrNotFound
	}
	lines, err := o.bookings.ServiceLines(ctx, nil, bookingID)
	if err != nil {
		return nil, nil, err
	}
	return b, lines, nil
}

// confirmAndEnqueue transitions the booking to confirmed, assigns its
// queue position, and emits the confirmation event, all on the caller's
// transaction.
func (o *Orchestrator) confirmAndEnqueue(ctx context.Context, tx pgx.Tx, b *Booking) (*queue.Entry, error) {
	if !b.Confirmable() {
		return nil, &InvalidTransitionError{Entity: "booking", From: string(b.Status), To: string(StatusConfirmed)}
	}
	if err := b.Transition(StatusConfirmed); err != nil {
		return nil, err
	}
	entry, err := o.sequencer.Assign(ctx, tx, b.ProviderID, b.Date, b.ID)
	if err != nil {
		return nil, err
	}
	b.QueueNumber = &entry.Position
	if err := o.bookings.UpdateStatus(ctx, tx, b); err != nil {
		return nil, err
	}
	_, err = o.outbox.Insert(ctx, tx, b.ID, events.TypeBookingConfirmed, events.BookingConfirmedV1{
		EventID:              uuid.NewString(),
		BookingID:            b.ID.String(),
		PatientID:            b.PatientID.String(),
		ProviderID:           b.ProviderID.String(),
		Date:                 b.Date.Format("2006-01-02"),
		TimeSlot:             b.TimeSlot,
		QueuePosition:        entry.Position,
		EstimatedWaitMinutes: entry.EstimatedWaitMinutes,
		AmountCents:          b.FinalTotal,
		Currency:             b.Currency,
		PaymentMethod:        string(b.PaymentMethod),
		OccurredAt:           time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (o *Orchestrator) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("booking: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("booking: commit tx: %w", err)
	}
	return nil
}

// withConflictRetry runs fn, restarting it on retryable queue position
// conflicts. Each attempt gets a fresh transaction; the retry budget is
// small because the advisory lock makes conflicts rare.
func (o *Orchestrator) withConflictRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= o.conflictRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !queue.IsRetryableConflict(lastErr) && !errors.Is(lastErr, ErrVersionConflict) {
			return lastErr
		}
		o.metrics.ObserveQueueConflict()
		o.logger.Warn("queue position conflict, retrying", "attempt", attempt, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
		}
	}
	return &ConcurrencyConflictError{Attempts: o.conflictRetries, Err: lastErr}
}

func (o *Orchestrator) buildSnapshot(ctx context.Context, providerID uuid.UUID, date time.Time) (*queue.Snapshot, error) {
	active, err := o.entries.ListForSnapshot(ctx, nil, providerID, date)
	if err != nil {
		return nil, err
	}
	completed, err := o.entries.CountByStatus(ctx, nil, providerID, date, queue.StatusCompleted)
	if err != nil {
		return nil, err
	}

	snap := &queue.Snapshot{
		ProviderID: providerID.String(),
		Date:       date.Format("2006-01-02"),
		Completed:  completed,
	}
	for _, row := range active {
		se := queue.SnapshotEntry{
			BookingID:            row.BookingID.String(),
			PatientName:          row.PatientName,
			Reason:               row.Reason,
			Position:             row.Position,
			Status:               string(row.Status),
			EstimatedWaitMinutes: row.EstimatedWaitMinutes,
		}
		if row.Status == queue.StatusInProgress {
			snap.InProgress = &se
			continue
		}
		snap.Waiting++
		snap.Entries = append(snap.Entries, se)
	}
	return snap, nil
}

// broadcast pushes a fresh snapshot to live subscribers. Best effort: a
// failure here never affects the committed queue change.
func (o *Orchestrator) broadcast(ctx context.Context, providerID uuid.UUID, date time.Time) {
	if o.hub == nil {
		return
	}
	snap, err := o.buildSnapshot(ctx, providerID, date)
	if err != nil {
		o.logger.Warn("queue snapshot for broadcast failed", "error", err, "provider_id", providerID)
		return
	}
	o.hub.Broadcast(providerID, *snap)
}

func (r CreateRequest) validate() error {
	if r.PatientID == uuid.Nil {
		return &ValidationError{Field: "patient_id", Reason: "required"}
	}
	if r.ProviderID == uuid.Nil {
		return &ValidationError{Field: "provider_id", Reason: "required"}
	}
	if r.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "required"}
	}
	if normalizeDate(r.Date).Before(normalizeDate(time.Now().UTC())) {
		return &ValidationError{Field: "date", Reason: "must not be in the past"}
	}
	if r.TimeSlot == "" {
		return &ValidationError{Field: "time_slot", Reason: "required"}
	}
	if r.PaymentMethod != MethodOnline && r.PaymentMethod != MethodOnsite {
		return &ValidationError{Field: "payment_method", Reason: "must be online or onsite"}
	}
	return nil
}

func normalizeDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func toAddOns(services []catalog.Service) []AddOnService {
	out := make([]AddOnService, len(services))
	for i, s := range services {
		out[i] = AddOnService{
			ID:         s.ID,
			ProviderID: s.ProviderID,
			Name:       s.Name,
			Price:      s.Price,
			Active:     s.Active,
			Available:  s.Available,
		}
	}
	return out
}
