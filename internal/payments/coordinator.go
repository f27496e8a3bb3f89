package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wolfman30/careflow-platform/pkg/logging"
)

// Coordinator abstracts online vs. on-site payment initiation. Online
// checkouts run against the external gateway before any booking row is
// committed, so a gateway failure leaves nothing behind to roll back;
// on-site payments are a recorded promise to pay and complete
// synchronously.
type Coordinator struct {
	gateway Gateway
	repo    *Repository
	logger  *logging.Logger
}

func NewCoordinator(gateway Gateway, repo *Repository, logger *logging.Logger) *Coordinator {
	if gateway == nil {
		panic("payments: gateway required")
	}
	if repo == nil {
		panic("payments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{gateway: gateway, repo: repo, logger: logger}
}

// InitiateOnline creates a hosted checkout for the booking. No state is
// persisted here; the caller records the pending payment in its own
// transaction once the gateway accepted the checkout.
func (c *Coordinator) InitiateOnline(ctx context.Context, params CheckoutParams) (*CheckoutResponse, error) {
	resp, err := c.gateway.CreateCheckout(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("payments: initiate online: %w", err)
	}
	c.logger.Info("online checkout created",
		"booking_id", params.BookingID,
		"provider", c.gateway.Name(),
		"provider_ref", resp.ProviderRef,
	)
	return resp, nil
}

// RecordOnline persists the pending gateway payment inside the caller's
// transaction.
func (c *Coordinator) RecordOnline(ctx context.Context, q Querier, bookingID uuid.UUID, providerRef string, amountCents int64, currency string) (*Record, error) {
	rec := &Record{
		BookingID:   bookingID,
		Provider:    c.gateway.Name(),
		ProviderRef: providerRef,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      StatusPending,
		Method:      "online",
	}
	if err := c.repo.Insert(ctx, q, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordOnsite persists a promise to pay at point of service. On-site
// payment does not block queue assignment, so the record starts pending
// and the booking proceeds to confirmed immediately.
func (c *Coordinator) RecordOnsite(ctx context.Context, q Querier, bookingID uuid.UUID, amountCents int64, currency string) (*Record, error) {
	rec := &Record{
		BookingID:   bookingID,
		Provider:    "onsite",
		ProviderRef: "onsite:" + bookingID.String(),
		AmountCents: amountCents,
		Currency:    currency,
		Status:      StatusPending,
		Method:      "onsite",
	}
	if err := c.repo.Insert(ctx, q, rec); err != nil {
		return nil, err
	}
	c.logger.Info("onsite payment recorded", "booking_id", bookingID, "amount_cents", amountCents)
	return rec, nil
}

// MarkPaid settles a record by provider reference.
func (c *Coordinator) MarkPaid(ctx context.Context, q Querier, providerRef string) (*Record, error) {
	return c.repo.UpdateStatusByRef(ctx, q, providerRef, StatusPaid)
}

// MarkFailed fails a record by provider reference.
func (c *Coordinator) MarkFailed(ctx context.Context, q Querier, providerRef string) (*Record, error) {
	return c.repo.UpdateStatusByRef(ctx, q, providerRef, StatusFailed)
}

// CheckStatus re-queries the gateway for a checkout's current state.
func (c *Coordinator) CheckStatus(ctx context.Context, providerRef string) (string, error) {
	return c.gateway.GetStatus(ctx, providerRef)
}
