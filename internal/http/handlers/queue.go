package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/careflow-platform/internal/booking"
	"github.com/wolfman30/careflow-platform/internal/queue"
	"github.com/wolfman30/careflow-platform/internal/tenancy"
	"github.com/wolfman30/careflow-platform/pkg/logging"
)

// QueueHandler serves the provider-facing queue endpoints.
type QueueHandler struct {
	orchestrator *booking.Orchestrator
	hub          *queue.Hub
	logger       *logging.Logger
}

func NewQueueHandler(orchestrator *booking.Orchestrator, hub *queue.Hub, logger *logging.Logger) *QueueHandler {
	if orchestrator == nil {
		panic("handlers: booking orchestrator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &QueueHandler{orchestrator: orchestrator, hub: hub, logger: logger}
}

// Status returns the provider's queue for a day.
// GET /api/v1/provider/queue?date=YYYY-MM-DD
func (h *QueueHandler) Status(w http.ResponseWriter, r *http.Request) {
	providerID, ok := providerFromContext(w, r)
	if !ok {
		return
	}
	date, ok := queueDate(w, r)
	if !ok {
		return
	}

	snap, err := h.orchestrator.QueueStatus(r.Context(), providerID, date)
	if err != nil {
		h.logger.Error("queue status failed", "error", err, "provider_id", providerID)
		bookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type callNextResponse struct {
	Called               bool   `json:"called"`
	BookingID            string `json:"booking_id,omitempty"`
	Position             int    `json:"position,omitempty"`
	RemainingWaiting     int    `json:"remaining_waiting"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes,omitempty"`
}

// CallNext advances the queue to the next waiting patient. An empty
// queue is a normal outcome, not an error.
// POST /api/v1/provider/queue/call-next
func (h *QueueHandler) CallNext(w http.ResponseWriter, r *http.Request) {
	providerID, ok := providerFromContext(w, r)
	if !ok {
		return
	}
	date, ok := queueDate(w, r)
	if !ok {
		return
	}

	res, err := h.orchestrator.CallNext(r.Context(), providerID, date)
	if err != nil {
		if errors.Is(err, booking.ErrEmptyQueue) {
			writeJSON(w, http.StatusOK, callNextResponse{Called: false})
			return
		}
		h.logger.Error("call next failed", "error", err, "provider_id", providerID)
		bookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, callNextResponse{
		Called:           true,
		BookingID:        res.Booking.ID.String(),
		Position:         res.Entry.Position,
		RemainingWaiting: len(res.Waiting),
	})
}

type completeResponse struct {
	Booking         bookingView `json:"booking"`
	DurationMinutes int         `json:"duration_minutes"`
}

// Complete finishes the in-progress visit for a booking and reports the
// observed service duration.
// POST /api/v1/provider/queue/bookings/{bookingID}/complete
func (h *QueueHandler) Complete(w http.ResponseWriter, r *http.Request) {
	providerID, ok := providerFromContext(w, r)
	if !ok {
		return
	}
	bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		jsonError(w, "invalid booking id", http.StatusBadRequest)
		return
	}

	res, err := h.orchestrator.Complete(r.Context(), providerID, bookingID)
	if err != nil {
		h.logger.Error("complete booking failed", "error", err, "provider_id", providerID, "booking_id", bookingID)
		bookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completeResponse{
		Booking:         toBookingView(res.Booking, nil),
		DurationMinutes: res.DurationMinutes,
	})
}

// Live upgrades to a WebSocket that streams queue snapshots.
// GET /api/v1/provider/queue/live
func (h *QueueHandler) Live(w http.ResponseWriter, r *http.Request) {
	providerID, ok := providerFromContext(w, r)
	if !ok {
		return
	}
	if h.hub == nil {
		jsonError(w, "live feed disabled", http.StatusServiceUnavailable)
		return
	}
	h.hub.Subscribe(w, r, providerID)
}

func providerFromContext(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := tenancy.ProviderIDFromContext(r.Context())
	if !ok {
		jsonError(w, "missing provider identity", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		jsonError(w, "invalid provider identity", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return id, true
}

func queueDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return time.Now().UTC(), true
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		jsonError(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return time.Time{}, false
	}
	return date, true
}
