// Package notify turns booking lifecycle events into patient-facing
// messages. It sits behind the outbox deliverer: handlers must be
// idempotent and return an error only when a retry could help.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/careflow-platform/internal/events"
	"github.com/wolfman30/careflow-platform/pkg/logging"
)

// ErrContactNotFound means the patient has no contact record on file.
var ErrContactNotFound = errors.New("notify: contact not found")

// Contact is the minimum we need to reach a patient.
type Contact struct {
	PatientID uuid.UUID
	Name      string
	Email     string
}

// ContactDirectory resolves a patient ID to their contact details.
type ContactDirectory interface {
	Contact(ctx context.Context, patientID uuid.UUID) (Contact, error)
}

// PgContactDirectory reads contacts from the patients table.
type PgContactDirectory struct {
	pool events.Querier
}

func NewPgContactDirectory(pool events.Querier) *PgContactDirectory {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &PgContactDirectory{pool: pool}
}

func (d *PgContactDirectory) Contact(ctx context.Context, patientID uuid.UUID) (Contact, error) {
	query := `
		SELECT id, full_name, email
		FROM patients
		WHERE id = $1
	`
	var c Contact
	err := d.pool.QueryRow(ctx, query, patientID).Scan(&c.PatientID, &c.Name, &c.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrContactNotFound
	}
	if err != nil {
		return Contact{}, fmt.Errorf("notify: load contact: %w", err)
	}
	return c, nil
}

// QueuePublisher fans events out to a message queue for other consumers
// (analytics, SMS workers). Optional; a nil publisher is skipped.
type QueuePublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte) error
}

// Service routes outbox events to email and the optional queue fan-out.
type Service struct {
	email     EmailSender
	directory ContactDirectory
	publisher QueuePublisher
	logger    *logging.Logger
}

// NewService creates the notification service. The publisher may be nil.
func NewService(email EmailSender, directory ContactDirectory, logger *logging.Logger) *Service {
	if email == nil {
		panic("notify: email sender required")
	}
	if directory == nil {
		panic("notify: contact directory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:     email,
		directory: directory,
		logger:    logger,
	}
}

// WithPublisher adds a queue fan-out for every handled event.
func (s *Service) WithPublisher(pub QueuePublisher) *Service {
	s.publisher = pub
	return s
}

// Handle implements events.DeliveryHandler. Unknown event types are
// acknowledged so a stale outbox row cannot wedge delivery; transport
// failures are returned so the deliverer retries.
func (s *Service) Handle(ctx context.Context, entry events.OutboxEntry) error {
	var err error
	switch entry.Type {
	case events.TypeBookingConfirmed:
		err = s.bookingConfirmed(ctx, entry.Payload)
	case events.TypeBookingCompleted:
		err = s.bookingCompleted(ctx, entry.Payload)
	case events.TypePaymentFailed:
		err = s.paymentFailed(ctx, entry.Payload)
	case events.TypeQueueTurn:
		err = s.queueTurn(ctx, entry.Payload)
	case events.TypeQueueAdvanced:
		err = s.queueAdvanced(ctx, entry.Payload)
	default:
		s.logger.Warn("skipping unknown event type", "type", entry.Type, "event_id", entry.ID)
		return nil
	}
	if err != nil {
		return err
	}
	return s.fanOut(ctx, entry)
}

func (s *Service) fanOut(ctx context.Context, entry events.OutboxEntry) error {
	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.Publish(ctx, entry.Type, entry.Payload); err != nil {
		return fmt.Errorf("notify: publish %s: %w", entry.Type, err)
	}
	return nil
}

func (s *Service) bookingConfirmed(ctx context.Context, payload json.RawMessage) error {
	var ev events.BookingConfirmedV1
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.logger.Error("malformed booking.confirmed payload", "error", err)
		return nil
	}
	contact, ok, err := s.lookup(ctx, ev.PatientID, ev.BookingID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	msg := EmailMessage{
		To:      contact.Email,
		ToName:  contact.Name,
		Subject: "Your booking is confirmed",
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour booking for %s at %s is confirmed.\nQueue position: %d\nEstimated wait: %d minutes\nTotal: %s\n\nSee you soon!",
			contact.Name, ev.Date, ev.TimeSlot, ev.QueuePosition, ev.EstimatedWaitMinutes,
			formatAmount(ev.AmountCents, ev.Currency),
		),
	}
	return s.email.Send(ctx, msg)
}

func (s *Service) bookingCompleted(ctx context.Context, payload json.RawMessage) error {
	var ev events.BookingCompletedV1
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.logger.Error("malformed booking.completed payload", "error", err)
		return nil
	}
	contact, ok, err := s.lookup(ctx, ev.PatientID, ev.BookingID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	msg := EmailMessage{
		To:      contact.Email,
		ToName:  contact.Name,
		Subject: "Thanks for your visit",
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour visit is complete. We'd love to hear how it went.\n\nThank you for choosing us!",
			contact.Name,
		),
	}
	return s.email.Send(ctx, msg)
}

func (s *Service) paymentFailed(ctx context.Context, payload json.RawMessage) error {
	var ev events.PaymentFailedV1
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.logger.Error("malformed payment.failed payload", "error", err)
		return nil
	}
	contact, ok, err := s.lookup(ctx, ev.PatientID, ev.BookingID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	body := fmt.Sprintf(
		"Hi %s,\n\nWe couldn't complete your payment of %s and your booking was cancelled.\nYou can book again anytime.",
		contact.Name, formatAmount(ev.AmountCents, ev.Currency),
	)
	if ev.Reason != "" {
		body += fmt.Sprintf("\n\nReason: %s", ev.Reason)
	}
	msg := EmailMessage{
		To:      contact.Email,
		ToName:  contact.Name,
		Subject: "Payment failed - booking cancelled",
		Body:    body,
	}
	return s.email.Send(ctx, msg)
}

func (s *Service) queueTurn(ctx context.Context, payload json.RawMessage) error {
	var ev events.QueueTurnV1
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.logger.Error("malformed queue.your_turn payload", "error", err)
		return nil
	}
	contact, ok, err := s.lookup(ctx, ev.PatientID, ev.BookingID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	msg := EmailMessage{
		To:      contact.Email,
		ToName:  contact.Name,
		Subject: "It's your turn!",
		Body: fmt.Sprintf(
			"Hi %s,\n\nThe provider is ready for you now. Please head to the front desk.",
			contact.Name,
		),
	}
	return s.email.Send(ctx, msg)
}

func (s *Service) queueAdvanced(ctx context.Context, payload json.RawMessage) error {
	var ev events.QueueAdvancedV1
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.logger.Error("malformed queue.advanced payload", "error", err)
		return nil
	}
	contact, ok, err := s.lookup(ctx, ev.PatientID, ev.BookingID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	msg := EmailMessage{
		To:      contact.Email,
		ToName:  contact.Name,
		Subject: "Queue update",
		Body: fmt.Sprintf(
			"Hi %s,\n\nThe queue moved. You are now number %d with an estimated wait of %d minutes.",
			contact.Name, ev.Position, ev.EstimatedWaitMinutes,
		),
	}
	return s.email.Send(ctx, msg)
}

// lookup resolves the patient contact. A missing or malformed contact
// is not retryable, so it logs and reports not-ok. Directory failures
// (e.g. the database being away) propagate so the deliverer retries.
func (s *Service) lookup(ctx context.Context, patientID, bookingID string) (Contact, bool, error) {
	id, err := uuid.Parse(patientID)
	if err != nil {
		s.logger.Error("event carries invalid patient id", "patient_id", patientID, "booking_id", bookingID)
		return Contact{}, false, nil
	}
	contact, err := s.directory.Contact(ctx, id)
	if errors.Is(err, ErrContactNotFound) {
		s.logger.Warn("no contact on file for patient", "patient_id", patientID, "booking_id", bookingID)
		return Contact{}, false, nil
	}
	if err != nil {
		return Contact{}, false, err
	}
	if contact.Email == "" {
		s.logger.Warn("patient has no email", "patient_id", patientID)
		return Contact{}, false, nil
	}
	return contact, true, nil
}

func formatAmount(cents int64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%.2f %s", float64(cents)/100, currency)
}

var _ events.DeliveryHandler = (*Service)(nil)
