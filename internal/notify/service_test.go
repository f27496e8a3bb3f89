package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/careflow-platform/internal/events"
)

type recordingSender struct {
	sent []EmailMessage
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type mapDirectory struct {
	contacts map[uuid.UUID]Contact
	err      error
}

func (d *mapDirectory) Contact(_ context.Context, patientID uuid.UUID) (Contact, error) {
	if d.err != nil {
		return Contact{}, d.err
	}
	c, ok := d.contacts[patientID]
	if !ok {
		return Contact{}, ErrContactNotFound
	}
	return c, nil
}

type recordingPublisher struct {
	types []string
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ []byte) error {
	if p.err != nil {
		return p.err
	}
	p.types = append(p.types, eventType)
	return nil
}

func entryFor(t *testing.T, eventType string, payload any) events.OutboxEntry {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return events.OutboxEntry{
		ID:        uuid.New(),
		BookingID: uuid.New(),
		Type:      eventType,
		Payload:   data,
		CreatedAt: time.Now(),
	}
}

func TestHandleBookingConfirmedSendsEmail(t *testing.T) {
	patientID := uuid.New()
	sender := &recordingSender{}
	dir := &mapDirectory{contacts: map[uuid.UUID]Contact{
		patientID: {PatientID: patientID, Name: "Ada", Email: "ada@example.com"},
	}}
	svc := NewService(sender, dir, nil)

	entry := entryFor(t, events.TypeBookingConfirmed, events.BookingConfirmedV1{
		EventID:              uuid.NewString(),
		BookingID:            uuid.NewString(),
		PatientID:            patientID.String(),
		Date:                 "2026-09-01",
		TimeSlot:             "morning",
		QueuePosition:        3,
		EstimatedWaitMinutes: 30,
		AmountCents:          6565,
		Currency:             "USD",
	})

	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "ada@example.com" {
		t.Errorf("unexpected recipient: %s", msg.To)
	}
	if msg.Subject != "Your booking is confirmed" {
		t.Errorf("unexpected subject: %s", msg.Subject)
	}
	if !strings.Contains(msg.Body, "Queue position: 3") {
		t.Errorf("body missing queue position: %s", msg.Body)
	}
	if !strings.Contains(msg.Body, "65.65 USD") {
		t.Errorf("body missing amount: %s", msg.Body)
	}
}

func TestHandleQueueTurnSendsEmail(t *testing.T) {
	patientID := uuid.New()
	sender := &recordingSender{}
	dir := &mapDirectory{contacts: map[uuid.UUID]Contact{
		patientID: {PatientID: patientID, Name: "Ada", Email: "ada@example.com"},
	}}
	svc := NewService(sender, dir, nil)

	entry := entryFor(t, events.TypeQueueTurn, events.QueueTurnV1{
		PatientID: patientID.String(),
		BookingID: uuid.NewString(),
		Position:  1,
	})

	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].Subject != "It's your turn!" {
		t.Fatalf("expected your-turn email, got %+v", sender.sent)
	}
}

func TestHandleUnknownTypeIsAcknowledged(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, &mapDirectory{}, nil)

	entry := events.OutboxEntry{ID: uuid.New(), Type: "booking.teleported.v9", Payload: []byte(`{}`)}
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("unknown type must not error: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Error("unknown type must not send email")
	}
}

func TestHandleMissingContactIsNotRetried(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, &mapDirectory{}, nil)

	entry := entryFor(t, events.TypePaymentFailed, events.PaymentFailedV1{
		PatientID: uuid.NewString(),
		BookingID: uuid.NewString(),
	})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("missing contact must not error: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Error("must not send without a contact")
	}
}

func TestHandleDirectoryFailurePropagates(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, &mapDirectory{err: errors.New("connection refused")}, nil)

	entry := entryFor(t, events.TypeBookingCompleted, events.BookingCompletedV1{
		PatientID: uuid.NewString(),
		BookingID: uuid.NewString(),
	})
	if err := svc.Handle(context.Background(), entry); err == nil {
		t.Fatal("directory failure should propagate for retry")
	}
}

func TestHandleSendFailurePropagates(t *testing.T) {
	patientID := uuid.New()
	sender := &recordingSender{err: errors.New("smtp down")}
	dir := &mapDirectory{contacts: map[uuid.UUID]Contact{
		patientID: {PatientID: patientID, Name: "Ada", Email: "ada@example.com"},
	}}
	svc := NewService(sender, dir, nil)

	entry := entryFor(t, events.TypeQueueAdvanced, events.QueueAdvancedV1{
		PatientID: patientID.String(),
		BookingID: uuid.NewString(),
		Position:  2,
	})
	if err := svc.Handle(context.Background(), entry); err == nil {
		t.Fatal("send failure should propagate for retry")
	}
}

func TestHandleFansOutToPublisher(t *testing.T) {
	patientID := uuid.New()
	sender := &recordingSender{}
	dir := &mapDirectory{contacts: map[uuid.UUID]Contact{
		patientID: {PatientID: patientID, Name: "Ada", Email: "ada@example.com"},
	}}
	pub := &recordingPublisher{}
	svc := NewService(sender, dir, nil).WithPublisher(pub)

	entry := entryFor(t, events.TypeQueueAdvanced, events.QueueAdvancedV1{
		PatientID: patientID.String(),
		BookingID: uuid.NewString(),
		Position:  2,
	})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(pub.types) != 1 || pub.types[0] != events.TypeQueueAdvanced {
		t.Fatalf("expected fan-out of queue.advanced, got %v", pub.types)
	}
}
