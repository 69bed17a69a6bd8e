// Package ratelimit holds the Redis burst limiters that protect the
// unauthenticated endpoints. Daily API quotas are not enforced here; they
// live in the database ledger.
package ratelimit

import (
	"context"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	AlgorithmFixedWindow   = "fixed_window"
	AlgorithmSlidingWindow = "sliding_window"
	AlgorithmTokenBucket   = "token_bucket"
)

// Decision is the outcome of one Take.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when a rejected caller may try again.
	ResetAt time.Time
}

// RetryAfter rounds the wait up to whole seconds, as the Retry-After header
// expects.
func (d Decision) RetryAfter(now time.Time) int {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return int((wait + time.Second - 1) / time.Second)
}

type Limiter interface {
	// Take records one request for key and reports whether it is admitted.
	Take(ctx context.Context, key string) (Decision, error)
	Limit() int
}

// Store is the part of Redis the fixed window counter needs.
type Store interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Scripter runs a Lua script atomically on the Redis server. Limiters that
// read then write their state go through it.
type Scripter interface {
	RunScript(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) *redis.Cmd
}

// NewLimiter admits limit requests per window. Unknown algorithms fall back
// to the fixed window.
func NewLimiter(redis *storage.RedisClient, algorithm string, limit int, window time.Duration) Limiter {
	switch algorithm {
	case AlgorithmTokenBucket:
		refill := float64(limit) / window.Seconds()
		return NewTokenBucket(redis, limit, refill)
	case AlgorithmSlidingWindow:
		return NewSlidingWindow(redis, limit, window)
	default:
		return NewFixedWindow(redis, limit, window)
	}
}

func clampRemaining(limit int, used int64) int {
	if remaining := int64(limit) - used; remaining > 0 {
		return int(remaining)
	}
	return 0
}
