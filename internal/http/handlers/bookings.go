package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/careflow-platform/internal/booking"
	"github.com/wolfman30/careflow-platform/internal/catalog"
	"github.com/wolfman30/careflow-platform/internal/tenancy"
	"github.com/wolfman30/careflow-platform/pkg/logging"
)

// BookingHandler serves the patient-facing booking endpoints.
type BookingHandler struct {
	orchestrator *booking.Orchestrator
	rates        catalog.RateSource
	logger       *logging.Logger
}

func NewBookingHandler(orchestrator *booking.Orchestrator, logger *logging.Logger) *BookingHandler {
	if orchestrator == nil {
		panic("handlers: booking orchestrator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingHandler{orchestrator: orchestrator, logger: logger}
}

// WithRates enables display-currency conversion on booking reads.
func (h *BookingHandler) WithRates(rates catalog.RateSource) *BookingHandler {
	h.rates = rates
	return h
}

type createBookingRequest struct {
	ProviderID      string   `json:"provider_id"`
	Date            string   `json:"date"` // 2006-01-02
	TimeSlot        string   `json:"time_slot"`
	AppointmentType string   `json:"appointment_type"`
	Reason          string   `json:"reason"`
	ServiceIDs      []string `json:"service_ids"`
	PaymentMethod   string   `json:"payment_method"`
	IdempotencyKey  string   `json:"idempotency_key"`
}

type serviceLineView struct {
	ServiceID string `json:"service_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

type bookingView struct {
	ID              string            `json:"id"`
	ProviderID      string            `json:"provider_id"`
	Date            string            `json:"date"`
	TimeSlot        string            `json:"time_slot"`
	AppointmentType string            `json:"appointment_type,omitempty"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	PaymentMethod   string            `json:"payment_method"`
	Currency        string            `json:"currency"`
	ConsultationFee int64             `json:"consultation_fee"`
	ServicesTotal   int64             `json:"services_total"`
	PlatformFee     int64             `json:"platform_fee"`
	FinalTotal      int64             `json:"final_total"`
	QueueNumber     *int              `json:"queue_number,omitempty"`
	Services        []serviceLineView `json:"services,omitempty"`

	// Display conversion, present only when ?currency= was requested.
	DisplayCurrency string `json:"display_currency,omitempty"`
	DisplayTotal    int64  `json:"display_total,omitempty"`
}

type createBookingResponse struct {
	Booking              bookingView `json:"booking"`
	CheckoutURL          string      `json:"checkout_url,omitempty"`
	EstimatedWaitMinutes *int        `json:"estimated_wait_minutes,omitempty"`
	Replayed             bool        `json:"replayed,omitempty"`
}

// Create books an appointment for the authenticated patient.
// POST /api/v1/bookings
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	patientID, ok := patientFromContext(w, r)
	if !ok {
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		jsonError(w, "invalid provider_id", http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		jsonError(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	serviceIDs := make([]uuid.UUID, 0, len(req.ServiceIDs))
	for _, raw := range req.ServiceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			jsonError(w, "invalid service id "+raw, http.StatusBadRequest)
			return
		}
		serviceIDs = append(serviceIDs, id)
	}

	res, err := h.orchestrator.CreateBooking(r.Context(), booking.CreateRequest{
		PatientID:       patientID,
		ProviderID:      providerID,
		Date:            date,
		TimeSlot:        req.TimeSlot,
		AppointmentType: req.AppointmentType,
		Reason:          req.Reason,
		ServiceIDs:      serviceIDs,
		PaymentMethod:   booking.PaymentMethod(req.PaymentMethod),
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		h.logger.Error("create booking failed", "error", err, "patient_id", patientID)
		bookingError(w, err)
		return
	}

	resp := createBookingResponse{
		Booking:     toBookingView(res.Booking, res.Lines),
		CheckoutURL: res.CheckoutURL,
		Replayed:    res.Replayed,
	}
	if res.QueueEntry != nil {
		resp.EstimatedWaitMinutes = &res.QueueEntry.EstimatedWaitMinutes
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// Get returns one of the patient's bookings.
// GET /api/v1/bookings/{bookingID}
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	patientID, ok := patientFromContext(w, r)
	if !ok {
		return
	}
	bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		jsonError(w, "invalid booking id", http.StatusBadRequest)
		return
	}

	b, lines, err := h.orchestrator.GetBooking(r.Context(), patientID, bookingID)
	if err != nil {
		bookingError(w, err)
		return
	}

	view := toBookingView(b, lines)
	if display := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency"))); display != "" {
		if h.rates == nil {
			jsonError(w, "currency conversion not available", http.StatusBadRequest)
			return
		}
		rate, err := h.rates.Rate(r.Context(), b.Currency, display)
		if err != nil {
			h.logger.Warn("display currency conversion failed", "error", err, "currency", display)
			jsonError(w, "unsupported display currency", http.StatusBadRequest)
			return
		}
		view.DisplayCurrency = display
		view.DisplayTotal = int64(math.Round(float64(b.FinalTotal) * rate))
	}
	writeJSON(w, http.StatusOK, view)
}

type positionResponse struct {
	Position             int    `json:"position"`
	PeopleAhead          int    `json:"people_ahead"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
	Status               string `json:"status"`
}

// Position reports the patient's place in today's queue.
// GET /api/v1/bookings/{bookingID}/position
func (h *BookingHandler) Position(w http.ResponseWriter, r *http.Request) {
	patientID, ok := patientFromContext(w, r)
	if !ok {
		return
	}
	bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		jsonError(w, "invalid booking id", http.StatusBadRequest)
		return
	}

	info, err := h.orchestrator.MyPosition(r.Context(), patientID, bookingID)
	if err != nil {
		bookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{
		Position:             info.Position,
		PeopleAhead:          info.PeopleAhead,
		EstimatedWaitMinutes: info.EstimatedWaitMinutes,
		Status:               string(info.Status),
	})
}

func patientFromContext(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := tenancy.PatientIDFromContext(r.Context())
	if !ok {
		jsonError(w, "missing patient identity", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		jsonError(w, "invalid patient identity", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return id, true
}

func toBookingView(b *booking.Booking, lines []booking.ServiceLine) bookingView {
	view := bookingView{
		ID:              b.ID.String(),
		ProviderID:      b.ProviderID.String(),
		Date:            b.Date.Format("2006-01-02"),
		TimeSlot:        b.TimeSlot,
		AppointmentType: b.AppointmentType,
		Status:          string(b.Status),
		PaymentStatus:   string(b.PaymentStatus),
		PaymentMethod:   string(b.PaymentMethod),
		Currency:        b.Currency,
		ConsultationFee: b.ConsultationFee,
		ServicesTotal:   b.ServicesTotal,
		PlatformFee:     b.PlatformFee,
		FinalTotal:      b.FinalTotal,
		QueueNumber:     b.QueueNumber,
	}
	for _, line := range lines {
		view.Services = append(view.Services, serviceLineView{
			ServiceID: line.ServiceID.String(),
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Subtotal:  line.Subtotal,
		})
	}
	return view
}
