// Package events defines the booking lifecycle events and the
// transactional outbox that delivers them to the notification
// collaborator without coupling delivery to the booking transaction.
package events

import "time"

// Event type names as stored in the outbox.
const (
	TypeBookingConfirmed = "booking.confirmed.v1"
	TypeBookingCompleted = "booking.completed.v1"
	TypePaymentFailed    = "payment.failed.v1"
	TypeQueueTurn        = "queue.your_turn.v1"
	TypeQueueAdvanced    = "queue.advanced.v1"
)

// BookingConfirmedV1 is emitted when a booking reaches confirmed with a
// queue position assigned.
type BookingConfirmedV1 struct {
	EventID              string    `json:"event_id"`
	BookingID            string    `json:"booking_id"`
	PatientID            string    `json:"patient_id"`
	ProviderID           string    `json:"provider_id"`
	Date                 string    `json:"date"`
	TimeSlot             string    `json:"time_slot"`
	QueuePosition        int       `json:"queue_position"`
	EstimatedWaitMinutes int       `json:"estimated_wait_minutes"`
	AmountCents          int64     `json:"amount_cents"`
	Currency             string    `json:"currency"`
	PaymentMethod        string    `json:"payment_method"`
	OccurredAt           time.Time `json:"occurred_at"`
}

// PaymentFailedV1 is emitted when an online payment fails or expires and
// the booking moves to a terminal state.
type PaymentFailedV1 struct {
	EventID     string    `json:"event_id"`
	BookingID   string    `json:"booking_id"`
	PatientID   string    `json:"patient_id"`
	ProviderID  string    `json:"provider_id"`
	ProviderRef string    `json:"provider_ref"`
	Reason      string    `json:"reason,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// QueueTurnV1 tells a patient it is their turn.
type QueueTurnV1 struct {
	EventID    string    `json:"event_id"`
	BookingID  string    `json:"booking_id"`
	PatientID  string    `json:"patient_id"`
	ProviderID string    `json:"provider_id"`
	Position   int       `json:"position"`
	OccurredAt time.Time `json:"occurred_at"`
}

// QueueAdvancedV1 is emitted for the remaining waiting patients after a
// call-next, carrying their refreshed wait estimate.
type QueueAdvancedV1 struct {
	EventID              string    `json:"event_id"`
	BookingID            string    `json:"booking_id"`
	PatientID            string    `json:"patient_id"`
	ProviderID           string    `json:"provider_id"`
	Position             int       `json:"position"`
	EstimatedWaitMinutes int       `json:"estimated_wait_minutes"`
	OccurredAt           time.Time `json:"occurred_at"`
}

// BookingCompletedV1 is emitted when a visit completes, with the observed
// service duration.
type BookingCompletedV1 struct {
	EventID         string    `json:"event_id"`
	BookingID       string    `json:"booking_id"`
	PatientID       string    `json:"patient_id"`
	ProviderID      string    `json:"provider_id"`
	DurationMinutes int       `json:"duration_minutes"`
	OccurredAt      time.Time `json:"occurred_at"`
}
