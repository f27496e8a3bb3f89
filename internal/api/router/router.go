// Package router wires the public, patient, and provider route groups.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/careflow-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/careflow-platform/internal/http/middleware"
	"github.com/wolfman30/careflow-platform/internal/payments"
	"github.com/wolfman30/careflow-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	Bookings       *handlers.BookingHandler
	Queue          *handlers.QueueHandler
	GatewayWebhook *payments.WebhookHandler
	FakePayments   *payments.FakePaymentsHandler
	MetricsHandler http.Handler

	PatientJWTSecret  string
	ProviderJWTSecret string

	CORSAllowedOrigins []string

	// Requests/sec per client IP; 0 disables rate limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitPerSecond > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
	}

	// Public endpoints: health, metrics, gateway callbacks.
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.GatewayWebhook != nil {
			public.Post("/webhooks/gateway", cfg.GatewayWebhook.Handle)
		}
		if cfg.FakePayments != nil {
			public.Mount("/payments/fake", cfg.FakePayments.Routes())
		}
	})

	r.Route("/api/v1", func(api chi.Router) {
		// Patient endpoints.
		api.Group(func(patient chi.Router) {
			patient.Use(httpmiddleware.PatientJWT(cfg.PatientJWTSecret))
			if cfg.Bookings != nil {
				patient.Post("/bookings", cfg.Bookings.Create)
				patient.Get("/bookings/{bookingID}", cfg.Bookings.Get)
				patient.Get("/bookings/{bookingID}/position", cfg.Bookings.Position)
			}
		})

		// Provider endpoints.
		api.Group(func(provider chi.Router) {
			provider.Use(httpmiddleware.ProviderJWT(cfg.ProviderJWTSecret))
			if cfg.Queue != nil {
				provider.Route("/provider/queue", func(q chi.Router) {
					q.Get("/", cfg.Queue.Status)
					q.Post("/call-next", cfg.Queue.CallNext)
					q.Post("/bookings/{bookingID}/complete", cfg.Queue.Complete)
					q.Get("/live", cfg.Queue.Live)
				})
			}
		})
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
