// Package handlers exposes the booking and queue API over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/careflow-platform/internal/booking"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// bookingError maps domain errors onto HTTP statuses.
func bookingError(w http.ResponseWriter, err error) {
	var vErr *booking.ValidationError
	var trErr *booking.InvalidTransitionError
	var initErr *booking.PaymentInitiationError
	var ccErr *booking.ConcurrencyConflictError
	switch {
	case errors.As(err, &vErr):
		jsonError(w, vErr.Error(), http.StatusBadRequest)
	case errors.As(err, &trErr):
		jsonError(w, trErr.Error(), http.StatusConflict)
	case errors.As(err, &ccErr):
		jsonError(w, "queue is busy, retry the request", http.StatusConflict)
	case errors.As(err, &initErr):
		jsonError(w, "payment gateway unavailable", http.StatusBadGateway)
	case errors.Is(err, booking.ErrNotFound):
		jsonError(w, "not found", http.StatusNotFound)
	default:
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}
