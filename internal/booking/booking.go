// Package booking owns the appointment booking domain: the Booking entity,
// its lifecycle state machine, fee computation, and the orchestrator that
// drives a booking from request to queue assignment.
package booking

import (
	"time"

	"github.com/google/uuid"
)

// Status is the booking lifecycle status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRejected   Status = "rejected"
	StatusNoShow     Status = "no_show"
)

// PaymentStatus tracks the payment outcome recorded on the booking.
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPendingOnsite PaymentStatus = "pending_onsite"
	PaymentPaid          PaymentStatus = "paid"
	PaymentFailed        PaymentStatus = "failed"
)

// PaymentMethod selects how the patient pays.
type PaymentMethod string

const (
	MethodOnline PaymentMethod = "online"
	MethodOnsite PaymentMethod = "onsite"
)

// validTransitions is the booking state machine. A status absent from the
// map is terminal.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled, StatusRejected, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusRejected, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether from -> to is a legal booking transition.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Booking is a patient's appointment with a provider, including the fee
// snapshot and payment outcome. Amounts are minor currency units.
type Booking struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	ProviderID      uuid.UUID
	Date            time.Time // date component only, UTC
	TimeSlot        string
	AppointmentType string
	Reason          string
	IdempotencyKey  string
	Currency        string

	ConsultationFee int64
	ServicesTotal   int64
	Subtotal        int64
	PlatformFee     int64
	FinalTotal      int64

	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	PaymentRef    string

	Status      Status
	QueueNumber *int
	Version     int

	CreatedAt   time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// Transition moves the booking to the next status, returning
// InvalidTransitionError when the move is not legal.
func (b *Booking) Transition(to Status) error {
	if !CanTransition(b.Status, to) {
		return &InvalidTransitionError{Entity: "booking", From: string(b.Status), To: string(to)}
	}
	now := time.Now().UTC()
	switch to {
	case StatusCompleted:
		b.CompletedAt = &now
	case StatusCancelled, StatusRejected, StatusNoShow:
		b.CancelledAt = &now
	}
	b.Status = to
	return nil
}

// Confirmable reports whether the payment state allows the booking to be
// confirmed. A booking may never reach confirmed without a paid or
// onsite-pending payment.
func (b *Booking) Confirmable() bool {
	return b.PaymentStatus == PaymentPaid || b.PaymentStatus == PaymentPendingOnsite
}

// ServiceLine is an add-on service captured against a booking with the
// price snapshotted at booking time.
type ServiceLine struct {
	ID        uuid.UUID
	BookingID uuid.UUID
	ServiceID uuid.UUID
	Name      string
	UnitPrice int64
	Quantity  int
	Subtotal  int64
}
