// Package bootstrap wires optional runtime collaborators from
// configuration so cmd/api stays a thin composition root.
package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/careflow-platform/internal/catalog"
	appconfig "github.com/wolfman30/careflow-platform/internal/config"
	"github.com/wolfman30/careflow-platform/internal/notify"
	"github.com/wolfman30/careflow-platform/internal/payments"
	"github.com/wolfman30/careflow-platform/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildCurrencyCache wires the display-currency rate cache. Without
// redis the cache degrades to pass-through lookups.
func BuildCurrencyCache(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) *catalog.CurrencyCache {
	if cfg == nil {
		return nil
	}
	source := catalog.NewStaticRateSource(nil)
	return catalog.NewCurrencyCache(source, redisClient, cfg.CurrencyCacheTTL, logger)
}

// BuildEmailSender selects the configured email provider. Misconfigured
// providers fall back to the stub so booking flow never depends on email.
func BuildEmailSender(cfg *appconfig.Config, sesClient *sesv2.Client, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}

	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("sendgrid selected but not configured; using stub sender")
	case "ses":
		if sender := notify.NewSESSender(sesClient, notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("ses selected but no client available; using stub sender")
	case "stub", "":
	default:
		logger.Warn("unknown email provider; using stub sender", "provider", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger)
}

// BuildNotifier assembles the outbox delivery handler: contact lookup,
// email, and the optional SQS fan-out.
func BuildNotifier(cfg *appconfig.Config, directory notify.ContactDirectory, sender notify.EmailSender, sqsClient *sqs.Client, logger *logging.Logger) *notify.Service {
	svc := notify.NewService(sender, directory, logger)
	if cfg == nil {
		return svc
	}
	if pub := notify.NewSQSPublisher(sqsClient, cfg.NotifyQueueURL, logger); pub != nil {
		svc = svc.WithPublisher(pub)
		if logger != nil {
			logger.Info("event fan-out enabled", "queue_url", cfg.NotifyQueueURL)
		}
	}
	return svc
}

// BuildGateway selects the payment gateway. The fake gateway is only
// reachable when explicitly allowed, so a missing base URL in
// production yields nil and online payments stay disabled.
func BuildGateway(cfg *appconfig.Config, logger *logging.Logger) payments.Gateway {
	if cfg == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.GatewayBaseURL) != "" {
		return payments.NewHTTPGateway(
			cfg.GatewayBaseURL,
			cfg.GatewayAPIKey,
			cfg.GatewaySuccessURL,
			cfg.GatewayCancelURL,
			cfg.GatewayTimeout,
			logger,
		)
	}
	if cfg.AllowFakePayments {
		logger.Warn("using fake payment gateway; do not enable in production")
		return payments.NewFakeGateway(cfg.PublicBaseURL, logger)
	}
	return nil
}
