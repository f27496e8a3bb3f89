package booking

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a booking or provider does not exist.
var ErrNotFound = errors.New("booking: not found")

// ErrEmptyQueue signals call-next found no waiting entries. It is a
// sentinel, not a failure: handlers translate it to an explicit empty
// result.
var ErrEmptyQueue = errors.New("booking: queue is empty")

// ValidationError rejects a request before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("booking: invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError reports an illegal state machine move.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("booking: %s cannot transition from %s to %s", e.Entity, e.From, e.To)
}

// PaymentInitiationError wraps a gateway failure during booking creation.
// The booking is rolled back and the patient is never charged.
type PaymentInitiationError struct {
	Err error
}

func (e *PaymentInitiationError) Error() string {
	return fmt.Sprintf("booking: payment initiation failed: %v", e.Err)
}

func (e *PaymentInitiationError) Unwrap() error { return e.Err }

// ConcurrencyConflictError signals a queue-position race that exhausted
// its internal retries.
type ConcurrencyConflictError struct {
	Attempts int
	Err      error
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("booking: queue position conflict after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConcurrencyConflictError) Unwrap() error { return e.Err }
