package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// Fees & queue policy
	PlatformFeeBasisPoints int
	SlotMinutes            int
	DefaultCurrency        string
	QueueConflictRetries   int

	// Payment gateway
	GatewayBaseURL       string
	GatewayAPIKey        string
	GatewayWebhookSecret string
	GatewaySuccessURL    string
	GatewayCancelURL     string
	GatewayTimeout       time.Duration
	AllowFakePayments    bool
	PendingPaymentMaxAge time.Duration
	ReconcileInterval    time.Duration

	// Auth
	PatientJWTSecret  string
	ProviderJWTSecret string

	// HTTP throttling
	RateLimitPerSecond float64
	RateLimitBurst     int

	// Currency rate cache
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	CurrencyCacheTTL time.Duration

	// Notifications
	EmailProvider      string
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	SESFromEmail       string
	SESFromName        string
	NotifyQueueURL     string
	OutboxBatchSize    int
	OutboxPollInterval time.Duration

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		PlatformFeeBasisPoints: getEnvAsInt("PLATFORM_FEE_BASIS_POINTS", 100),
		SlotMinutes:            getEnvAsInt("SLOT_MINUTES", 15),
		DefaultCurrency:        strings.ToUpper(strings.TrimSpace(getEnv("DEFAULT_CURRENCY", "USD"))),
		QueueConflictRetries:   getEnvAsInt("QUEUE_CONFLICT_RETRIES", 3),

		GatewayBaseURL:       getEnv("GATEWAY_BASE_URL", ""),
		GatewayAPIKey:        getEnv("GATEWAY_API_KEY", ""),
		GatewayWebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),
		GatewaySuccessURL:    getEnv("GATEWAY_SUCCESS_URL", ""),
		GatewayCancelURL:     getEnv("GATEWAY_CANCEL_URL", ""),
		GatewayTimeout:       getEnvAsDuration("GATEWAY_TIMEOUT", 10*time.Second),
		AllowFakePayments:    getEnvAsBool("ALLOW_FAKE_PAYMENTS", false),
		PendingPaymentMaxAge: getEnvAsDuration("PENDING_PAYMENT_MAX_AGE", 30*time.Minute),
		ReconcileInterval:    getEnvAsDuration("RECONCILE_INTERVAL", 5*time.Minute),

		PatientJWTSecret:  getEnv("PATIENT_JWT_SECRET", ""),
		ProviderJWTSecret: getEnv("PROVIDER_JWT_SECRET", ""),

		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),

		RedisAddr:        getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		CurrencyCacheTTL: getEnvAsDuration("CURRENCY_CACHE_TTL", 1*time.Hour),

		EmailProvider:      strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "ses"))),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "Careflow"),
		SESFromEmail:       getEnv("SES_FROM_EMAIL", ""),
		SESFromName:        getEnv("SES_FROM_NAME", "Careflow"),
		NotifyQueueURL:     getEnv("NOTIFY_QUEUE_URL", ""),
		OutboxBatchSize:    getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
