// Package ratelimit implements a fixed-window request limiter backed by
// Redis, grounded on Jaimin0100-mailnexy-backend's sender_rate_limit.go
// (its RedisStorage Get/Set/Del idiom over *redis.Client), adapted from a
// fiber.Storage shim to a direct INCR+EXPIRE counter since this core has no
// third-party web framework to plug a Storage interface into.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Limiter enforces "at most Max calls per Window" per key. A nil *Limiter
// is a valid no-op: deployments without Redis configured (standalone/local
// runs) simply skip rate limiting rather than failing closed on every
// request, matching the teacher's "Storage: nil uses in-memory... or no
// limiting" fallback.
type Limiter struct {
	client *redis.Client
	prefix string
}

func New(addr, password string, db int, prefix string) *Limiter {
	return &Limiter{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		prefix: prefix,
	}
}

// NewFromURL accepts a "redis://[:password@]host:port/db" URL, the shape
// AGENTCORE_REDIS_URL carries.
func NewFromURL(rawURL, prefix string) (*Limiter, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &Limiter{client: redis.NewClient(opts), prefix: prefix}, nil
}

// Allow increments the counter for key's current window and reports
// whether the caller is still under max. Only the first increment in a
// window (count == 1) sets the expiry; if that EXPIRE fails, the error is
// returned and the key is left without a TTL.
func (l *Limiter) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	if l == nil {
		return true, nil
	}
	fullKey := fmt.Sprintf("%s:ratelimit:%s", l.prefix, key)
	count, err := l.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(max), nil
}

func (l *Limiter) Close() error {
	if l == nil {
		return nil
	}
	return l.client.Close()
}
