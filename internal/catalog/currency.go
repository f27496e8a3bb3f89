package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/careflow-platform/pkg/logging"
)

// RateSource resolves a conversion rate between two currencies. The real
// implementation lives with the currency collaborator; this package only
// consumes it.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (float64, error)
}

// CurrencyCache is a keyed, TTL-bounded cache in front of the rate
// source. It replaces the source's process-global memoization with an
// explicit cache whose TTL comes from configuration.
type CurrencyCache struct {
	source RateSource
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCurrencyCache(source RateSource, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *CurrencyCache {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CurrencyCache{source: source, redis: redisClient, ttl: ttl, logger: logger}
}

// Rate returns the conversion rate from -> to, consulting redis first.
// Identical currencies short-circuit to 1. A cache failure falls through
// to the source; a source failure is the caller's problem.
func (c *CurrencyCache) Rate(ctx context.Context, from, to string) (float64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" {
		return 0, fmt.Errorf("catalog: currency codes required")
	}
	if from == to {
		return 1, nil
	}

	key := c.key(from, to)
	if c.redis != nil {
		if cached, err := c.redis.Get(ctx, key).Result(); err == nil {
			if rate, err := strconv.ParseFloat(cached, 64); err == nil {
				return rate, nil
			}
		} else if err != redis.Nil {
			c.logger.Warn("currency cache read failed", "error", err, "key", key)
		}
	}

	rate, err := c.source.Rate(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("catalog: currency lookup %s->%s: %w", from, to, err)
	}

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, strconv.FormatFloat(rate, 'f', -1, 64), c.ttl).Err(); err != nil {
			c.logger.Warn("currency cache write failed", "error", err, "key", key)
		}
	}
	return rate, nil
}

func (c *CurrencyCache) key(from, to string) string {
	return fmt.Sprintf("careflow:currency:%s:%s", from, to)
}
