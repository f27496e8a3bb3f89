package booking

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/careflow-platform/internal/payments"
	"github.com/wolfman30/careflow-platform/pkg/logging"
)

// Reconciler sweeps online bookings stuck in pending and asks the
// gateway what actually happened. Webhooks can be lost; the sweep makes
// payment outcomes eventually consistent without them.
type Reconciler struct {
	bookings  *Repository
	payments  *payments.Coordinator
	finalizer *Orchestrator
	logger    *logging.Logger

	maxAge    time.Duration
	batchSize int32
	interval  time.Duration
}

func NewReconciler(bookings *Repository, coordinator *payments.Coordinator, finalizer *Orchestrator, logger *logging.Logger) *Reconciler {
	if bookings == nil || coordinator == nil || finalizer == nil {
		panic("booking: reconciler collaborators required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		bookings:  bookings,
		payments:  coordinator,
		finalizer: finalizer,
		logger:    logger,
		maxAge:    30 * time.Minute,
		batchSize: 50,
		interval:  5 * time.Minute,
	}
}

func (r *Reconciler) WithMaxAge(d time.Duration) *Reconciler {
	if d > 0 {
		r.maxAge = d
	}
	return r
}

func (r *Reconciler) WithInterval(d time.Duration) *Reconciler {
	if d > 0 {
		r.interval = d
	}
	return r
}

// Start runs the sweep loop until the context is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep processes one batch of stale pending bookings. Exported so the
// loop body can be driven directly in tests and on demand.
func (r *Reconciler) Sweep(ctx context.Context) {
	stale, err := r.bookings.ListStalePending(ctx, r.maxAge, r.batchSize)
	if err != nil {
		r.logger.Error("stale booking sweep failed", "error", err)
		return
	}
	for i := range stale {
		b := &stale[i]
		if err := r.reconcile(ctx, b); err != nil {
			r.logger.Error("booking reconciliation failed", "error", err, "booking_id", b.ID)
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context, b *Booking) error {
	if b.PaymentRef == "" {
		return r.finalizer.HandlePaymentFailed(ctx, b.ID, "", "no checkout reference")
	}
	status, err := r.payments.CheckStatus(ctx, b.PaymentRef)
	if err != nil {
		// Gateway unreachable; the next sweep tries again.
		return err
	}
	switch status {
	case payments.StatusPaid:
		r.logger.Info("recovered paid booking without webhook", "booking_id", b.ID)
		return r.finalizer.HandlePaymentSucceeded(ctx, b.ID, b.PaymentRef)
	case payments.StatusFailed, "expired":
		return r.finalizer.HandlePaymentFailed(ctx, b.ID, b.PaymentRef, "checkout "+status)
	case payments.StatusPending:
		// Still in flight at the gateway; leave it for the next sweep.
		return nil
	default:
		return errors.New("booking: unknown gateway status " + status)
	}
}
