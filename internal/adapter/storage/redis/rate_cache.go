package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RateCache implements ports.RateCache using Redis. Rates are stored as
// decimal strings so no precision is lost across the round trip.
type RateCache struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewRateCache creates a Redis-backed exchange-rate cache with a fixed TTL.
func NewRateCache(client *goredis.Client, ttl time.Duration) *RateCache {
	return &RateCache{
		client: client,
		prefix: "fxrate:",
		ttl:    ttl,
	}
}

func (c *RateCache) key(base, target string) string {
	return fmt.Sprintf("%s%s:%s", c.prefix, base, target)
}

// Get retrieves a cached rate. The second return is false on a cache miss.
func (c *RateCache) Get(ctx context.Context, base, target string) (decimal.Decimal, bool, error) {
	val, err := c.client.Get(ctx, c.key(base, target)).Result()
	if err != nil {
		if err == goredis.Nil {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("redis rate get: %w", err)
	}

	rate, err := decimal.NewFromString(val)
	if err != nil {
		// Corrupt entry; treat as a miss so the converter refetches.
		return decimal.Zero, false, nil
	}
	return rate, true, nil
}

// Set stores a rate with the cache TTL.
func (c *RateCache) Set(ctx context.Context, base, target string, rate decimal.Decimal) error {
	if err := c.client.Set(ctx, c.key(base, target), rate.String(), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis rate set: %w", err)
	}
	return nil
}
