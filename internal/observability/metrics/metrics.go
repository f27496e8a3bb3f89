package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking flow.
type BookingMetrics struct {
	bookingsTotal  *prometheus.CounterVec
	queueConflicts prometheus.Counter
	paymentLatency *prometheus.HistogramVec
	queueDepth     *prometheus.GaugeVec
	webhookTotal   *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careflow",
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Booking attempts by payment method and outcome",
		}, []string{"method", "outcome"}),
		queueConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "careflow",
			Subsystem: "queue",
			Name:      "position_conflicts_total",
			Help:      "Queue position races that triggered an internal retry",
		}),
		paymentLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "careflow",
			Subsystem: "payments",
			Name:      "gateway_latency_seconds",
			Help:      "Latency of payment gateway round trips",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "careflow",
			Subsystem: "queue",
			Name:      "waiting_entries",
			Help:      "Waiting entries per provider partition",
		}, []string{"provider_id"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careflow",
			Subsystem: "payments",
			Name:      "webhook_total",
			Help:      "Gateway webhook callbacks by event type and status",
		}, []string{"event_type", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.queueConflicts, m.paymentLatency, m.queueDepth, m.webhookTotal)
	return m
}

func (m *BookingMetrics) ObserveBooking(method, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(method, outcome).Inc()
}

func (m *BookingMetrics) ObserveQueueConflict() {
	if m == nil {
		return
	}
	m.queueConflicts.Inc()
}

func (m *BookingMetrics) ObserveGatewayLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.paymentLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *BookingMetrics) SetQueueDepth(providerID string, waiting int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(providerID).Set(float64(waiting))
}

func (m *BookingMetrics) ObserveWebhook(eventType, status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(eventType, status).Inc()
}
