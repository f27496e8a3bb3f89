package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/careflow-platform/internal/observability/metrics"
)

type stubFinalizer struct {
	succeeded []uuid.UUID
	failed    []uuid.UUID
	err       error
}

func (s *stubFinalizer) HandlePaymentSucceeded(ctx context.Context, bookingID uuid.UUID, providerRef string) error {
	if s.err != nil {
		return s.err
	}
	s.succeeded = append(s.succeeded, bookingID)
	return nil
}

func (s *stubFinalizer) HandlePaymentFailed(ctx context.Context, bookingID uuid.UUID, providerRef, reason string) error {
	if s.err != nil {
		return s.err
	}
	s.failed = append(s.failed, bookingID)
	return nil
}

type stubTracker struct {
	seen map[string]bool
}

func (s *stubTracker) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	return s.seen[provider+":"+eventID], nil
}

func (s *stubTracker) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	s.seen[provider+":"+eventID] = true
	return true, nil
}

func signedRequest(t *testing.T, secret, body string) *http.Request {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewBufferString(body))
	req.Header.Set("X-Gateway-Signature", hex.EncodeToString(mac.Sum(nil)))
	return req
}

func TestWebhookPaidFinalizesBooking(t *testing.T) {
	fin := &stubFinalizer{}
	tracker := &stubTracker{}
	h := NewWebhookHandler("whsec", tracker, fin, nil)
	bookingID := uuid.New()

	body := fmt.Sprintf(`{"event_id":"evt_1","type":"checkout.paid","data":{"checkout_id":"chk_1","reference_id":"%s"}}`, bookingID)
	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(t, "whsec", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fin.succeeded, 1)
	assert.Equal(t, bookingID, fin.succeeded[0])

	// Replay with the same event id: acknowledged, not re-finalized.
	rec = httptest.NewRecorder()
	h.Handle(rec, signedRequest(t, "whsec", body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, fin.succeeded, 1)
}

func TestWebhookFailedEvent(t *testing.T) {
	fin := &stubFinalizer{}
	h := NewWebhookHandler("whsec", &stubTracker{}, fin, nil)
	bookingID := uuid.New()

	body := fmt.Sprintf(`{"event_id":"evt_2","type":"checkout.failed","data":{"checkout_id":"chk_2","reference_id":"%s","reason":"card_declined"}}`, bookingID)
	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(t, "whsec", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fin.failed, 1)
	assert.Equal(t, bookingID, fin.failed[0])
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	fin := &stubFinalizer{}
	h := NewWebhookHandler("whsec", &stubTracker{}, fin, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewBufferString(`{}`))
	req.Header.Set("X-Gateway-Signature", "bogus")
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, fin.succeeded)
}

func TestWebhookUnknownBookingAcknowledged(t *testing.T) {
	// The finalizer wraps the sentinel the way the booking orchestrator
	// does for a booking id it has never seen.
	bookingID := uuid.New()
	fin := &stubFinalizer{err: fmt.Errorf("booking: finalize %s: %w", bookingID, ErrRecordNotFound)}
	h := NewWebhookHandler("whsec", &stubTracker{}, fin, nil)

	body := fmt.Sprintf(`{"event_id":"evt_3","type":"checkout.paid","data":{"checkout_id":"chk_3","reference_id":"%s"}}`, bookingID)
	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(t, "whsec", body))

	assert.Equal(t, http.StatusOK, rec.Code, "unknown bookings acknowledge so the gateway stops retrying")
}

func TestWebhookFinalizerErrorReturns500(t *testing.T) {
	fin := &stubFinalizer{err: fmt.Errorf("booking: commit tx: connection reset")}
	h := NewWebhookHandler("whsec", &stubTracker{}, fin, nil)

	body := fmt.Sprintf(`{"event_id":"evt_5","type":"checkout.paid","data":{"checkout_id":"chk_5","reference_id":"%s"}}`, uuid.New())
	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(t, "whsec", body))

	assert.Equal(t, http.StatusInternalServerError, rec.Code, "transient failures must leave the event retryable")
}

func TestWebhookCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewBookingMetrics(reg)
	fin := &stubFinalizer{}
	h := NewWebhookHandler("whsec", &stubTracker{}, fin, nil).WithMetrics(m)

	body := fmt.Sprintf(`{"event_id":"evt_6","type":"checkout.paid","data":{"checkout_id":"chk_6","reference_id":"%s"}}`, uuid.New())
	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(t, "whsec", body))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, float64(1), webhookCounterValue(t, reg, "checkout.paid", "applied"))
}

func webhookCounterValue(t *testing.T, reg *prometheus.Registry, eventType, status string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "careflow_payments_webhook_total" {
			continue
		}
		for _, pb := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range pb.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["event_type"] == eventType && labels["status"] == status {
				return pb.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestWebhookIgnoresUnrelatedEvents(t *testing.T) {
	fin := &stubFinalizer{}
	h := NewWebhookHandler("whsec", &stubTracker{}, fin, nil)

	body := fmt.Sprintf(`{"event_id":"evt_4","type":"checkout.viewed","data":{"checkout_id":"chk_4","reference_id":"%s"}}`, uuid.New())
	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(t, "whsec", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fin.succeeded)
	assert.Empty(t, fin.failed)
}
