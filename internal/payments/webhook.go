package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/wolfman30/careflow-platform/internal/observability/metrics"
	"github.com/wolfman30/careflow-platform/pkg/logging"
)

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// BookingFinalizer settles the booking once the gateway reports a checkout
// outcome. Implemented by the booking orchestrator.
type BookingFinalizer interface {
	HandlePaymentSucceeded(ctx context.Context, bookingID uuid.UUID, providerRef string) error
	HandlePaymentFailed(ctx context.Context, bookingID uuid.UUID, providerRef, reason string) error
}

// WebhookHandler consumes the gateway's asynchronous payment callbacks.
type WebhookHandler struct {
	secret    string
	processed processedTracker
	finalizer BookingFinalizer
	logger    *logging.Logger
	metrics   *metrics.BookingMetrics
}

func NewWebhookHandler(secret string, processed processedTracker, finalizer BookingFinalizer, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		secret:    secret,
		processed: processed,
		finalizer: finalizer,
		logger:    logger,
	}
}

// WithMetrics attaches webhook counters.
func (h *WebhookHandler) WithMetrics(m *metrics.BookingMetrics) *WebhookHandler {
	h.metrics = m
	return h
}

type gatewayEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"` // checkout.paid, checkout.failed, checkout.expired
	Data    struct {
		CheckoutID  string `json:"checkout_id"`
		ReferenceID string `json:"reference_id"`
		Reason      string `json:"reason,omitempty"`
	} `json:"data"`
}

// Handle verifies, deduplicates, and applies one gateway callback. A
// replayed event id acknowledges without re-finalizing.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if !VerifySignature(h.secret, payload, r.Header.Get("X-Gateway-Signature")) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var evt gatewayEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode gateway event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.EventID == "" || evt.Data.CheckoutID == "" {
		http.Error(w, "missing event fields", http.StatusBadRequest)
		return
	}

	bookingID, err := uuid.Parse(evt.Data.ReferenceID)
	if err != nil {
		h.logger.Error("gateway event carries invalid booking reference", "reference_id", evt.Data.ReferenceID)
		http.Error(w, "invalid reference", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if h.processed != nil {
		seen, err := h.processed.AlreadyProcessed(ctx, "gateway", evt.EventID)
		if err != nil {
			h.logger.Error("processed-event lookup failed", "error", err, "event_id", evt.EventID)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if seen {
			h.metrics.ObserveWebhook(evt.Type, "replayed")
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	switch evt.Type {
	case "checkout.paid":
		err = h.finalizer.HandlePaymentSucceeded(ctx, bookingID, evt.Data.CheckoutID)
	case "checkout.failed", "checkout.expired":
		err = h.finalizer.HandlePaymentFailed(ctx, bookingID, evt.Data.CheckoutID, evt.Data.Reason)
	default:
		h.logger.Debug("ignoring gateway event", "type", evt.Type, "event_id", evt.EventID)
		h.metrics.ObserveWebhook(evt.Type, "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		// Unknown bookings are acknowledged so the gateway stops retrying;
		// anything else retries.
		if errors.Is(err, ErrRecordNotFound) {
			h.logger.Warn("gateway event for unknown booking", "booking_id", bookingID, "event_id", evt.EventID)
			h.metrics.ObserveWebhook(evt.Type, "unknown_booking")
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Error("failed to apply gateway event", "error", err, "booking_id", bookingID, "type", evt.Type)
		h.metrics.ObserveWebhook(evt.Type, "error")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if h.processed != nil {
		if _, err := h.processed.MarkProcessed(ctx, "gateway", evt.EventID); err != nil {
			h.logger.Error("failed to mark event processed", "error", err, "event_id", evt.EventID)
		}
	}
	h.metrics.ObserveWebhook(evt.Type, "applied")
	w.WriteHeader(http.StatusOK)
}
