package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveBookingCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveBooking("online", "pending")
	m.ObserveBooking("online", "pending")
	m.ObserveBooking("onsite", "confirmed")

	got := counterValue(t, m.bookingsTotal.WithLabelValues("online", "pending"))
	if got != 2 {
		t.Fatalf("online/pending = %v, want 2", got)
	}
	got = counterValue(t, m.bookingsTotal.WithLabelValues("onsite", "confirmed"))
	if got != 1 {
		t.Fatalf("onsite/confirmed = %v, want 1", got)
	}
}

func TestObserveQueueConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveQueueConflict()
	m.ObserveQueueConflict()

	if got := counterValue(t, m.queueConflicts); got != 2 {
		t.Fatalf("conflicts = %v, want 2", got)
	}
}

func TestSetQueueDepth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.SetQueueDepth("prov-1", 4)
	m.SetQueueDepth("prov-1", 2)

	var pb dto.Metric
	if err := m.queueDepth.WithLabelValues("prov-1").Write(&pb); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := pb.GetGauge().GetValue(); got != 2 {
		t.Fatalf("depth = %v, want 2", got)
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("online", "pending")
	m.ObserveQueueConflict()
	m.ObserveGatewayLatency("checkout", 0.1)
	m.SetQueueDepth("prov-1", 1)
	m.ObserveWebhook("checkout.paid", "ok")
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return pb.GetCounter().GetValue()
}
