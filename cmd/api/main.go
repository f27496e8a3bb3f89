package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/careflow-platform/cmd/mainconfig"
	"github.com/wolfman30/careflow-platform/internal/api/router"
	"github.com/wolfman30/careflow-platform/internal/app/bootstrap"
	"github.com/wolfman30/careflow-platform/internal/booking"
	"github.com/wolfman30/careflow-platform/internal/catalog"
	appconfig "github.com/wolfman30/careflow-platform/internal/config"
	"github.com/wolfman30/careflow-platform/internal/events"
	"github.com/wolfman30/careflow-platform/internal/http/handlers"
	"github.com/wolfman30/careflow-platform/internal/notify"
	"github.com/wolfman30/careflow-platform/internal/observability/metrics"
	"github.com/wolfman30/careflow-platform/internal/payments"
	"github.com/wolfman30/careflow-platform/internal/queue"
	"github.com/wolfman30/careflow-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting careflow-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool == nil {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	sesClient := sesv2.NewFromConfig(awsCfg)
	sqsClient := sqs.NewFromConfig(awsCfg)

	gateway := bootstrap.BuildGateway(cfg, logger)
	if gateway == nil {
		logger.Error("no payment gateway configured; set GATEWAY_BASE_URL or ALLOW_FAKE_PAYMENTS")
		os.Exit(1)
	}

	metricsHandler, bookingMetrics := setupMetrics()

	estimator := queue.NewEstimator(cfg.SlotMinutes)
	hub := queue.NewHub(logger)
	orchestrator := booking.NewOrchestrator(
		pool,
		booking.NewRepository(pool),
		catalog.NewRepository(pool),
		booking.NewFeeCalculator(cfg.PlatformFeeBasisPoints, logger),
		payments.NewCoordinator(gateway, payments.NewRepository(pool), logger),
		queue.NewSequencer(estimator, logger),
		queue.NewRepository(pool),
		estimator,
		events.NewOutboxStore(pool),
		logger,
	).
		WithHub(hub).
		WithMetrics(bookingMetrics).
		WithCheckoutURLs(cfg.GatewaySuccessURL, cfg.GatewayCancelURL).
		WithDefaultCurrency(cfg.DefaultCurrency).
		WithConflictRetries(cfg.QueueConflictRetries)

	webhook := payments.NewWebhookHandler(cfg.GatewayWebhookSecret, events.NewProcessedStore(pool), orchestrator, logger).
		WithMetrics(bookingMetrics)

	var fakePayments *payments.FakePaymentsHandler
	if cfg.AllowFakePayments {
		fakePayments = payments.NewFakePaymentsHandler(orchestrator, logger)
	}

	rates := bootstrap.BuildCurrencyCache(cfg, redisClient, logger)
	bookingHandler := handlers.NewBookingHandler(orchestrator, logger).WithRates(rates)
	queueHandler := handlers.NewQueueHandler(orchestrator, hub, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		Bookings:           bookingHandler,
		Queue:              queueHandler,
		GatewayWebhook:     webhook,
		FakePayments:       fakePayments,
		MetricsHandler:     metricsHandler,
		PatientJWTSecret:   cfg.PatientJWTSecret,
		ProviderJWTSecret:  cfg.ProviderJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	// Background workers: outbox delivery and stale-payment reconciliation.
	sender := bootstrap.BuildEmailSender(cfg, sesClient, logger)
	notifier := bootstrap.BuildNotifier(cfg, notify.NewPgContactDirectory(pool), sender, sqsClient, logger)
	deliverer := events.NewDeliverer(events.NewOutboxStore(pool), notifier, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval)
	reconciler := booking.NewReconciler(
		booking.NewRepository(pool),
		payments.NewCoordinator(gateway, payments.NewRepository(pool), logger),
		orchestrator,
		logger,
	).
		WithMaxAge(cfg.PendingPaymentMaxAge).
		WithInterval(cfg.ReconcileInterval)

	supervisor := bootstrap.NewSupervisor(logger)
	supervisor.Add("outbox-deliverer", deliverer.Start)
	supervisor.Add("payment-reconciler", reconciler.Start)

	workersDone := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(workersDone)
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		logger.Warn("workers did not drain before timeout")
	}

	logger.Info("server stopped")
}

// connectPostgresPool opens the pgx pool, or returns nil when no URL is
// configured so the caller can decide how fatal that is.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres not reachable", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// setupMetrics builds the prometheus registry with the booking metrics
// and standard process collectors.
func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(registry)
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return handler, bookingMetrics
}
