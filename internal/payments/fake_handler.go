package payments

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/careflow-platform/pkg/logging"
)

// FakePaymentsHandler simulates the gateway's hosted checkout page for
// dev and demo environments: hitting pay or fail finalizes the booking
// the same way a real webhook would. Mounted only when fake payments
// are enabled.
type FakePaymentsHandler struct {
	finalizer BookingFinalizer
	logger    *logging.Logger
}

func NewFakePaymentsHandler(finalizer BookingFinalizer, logger *logging.Logger) *FakePaymentsHandler {
	if finalizer == nil {
		panic("payments: booking finalizer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FakePaymentsHandler{finalizer: finalizer, logger: logger}
}

func (h *FakePaymentsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{bookingID}/pay", h.Pay)
	r.Post("/{bookingID}/fail", h.Fail)
	return r
}

func (h *FakePaymentsHandler) Pay(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := h.bookingID(w, r)
	if !ok {
		return
	}
	if err := h.finalizer.HandlePaymentSucceeded(r.Context(), bookingID, "fake:"+bookingID.String()); err != nil {
		h.logger.Error("fake payment completion failed", "error", err, "booking_id", bookingID)
		h.respond(w, http.StatusInternalServerError, "error")
		return
	}
	h.logger.Info("fake payment completed", "booking_id", bookingID)
	h.respond(w, http.StatusOK, "paid")
}

func (h *FakePaymentsHandler) Fail(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := h.bookingID(w, r)
	if !ok {
		return
	}
	if err := h.finalizer.HandlePaymentFailed(r.Context(), bookingID, "fake:"+bookingID.String(), "simulated decline"); err != nil {
		h.logger.Error("fake payment failure failed", "error", err, "booking_id", bookingID)
		h.respond(w, http.StatusInternalServerError, "error")
		return
	}
	h.respond(w, http.StatusOK, "failed")
}

func (h *FakePaymentsHandler) bookingID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		h.respond(w, http.StatusBadRequest, "invalid booking id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *FakePaymentsHandler) respond(w http.ResponseWriter, status int, result string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"result": result})
}
