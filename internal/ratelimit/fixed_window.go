package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// FixedWindow counts requests per key in aligned windows with Redis INCR.
type FixedWindow struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewFixedWindow(store Store, limit int, window time.Duration) *FixedWindow {
	if window < time.Second {
		window = time.Second
	}
	return &FixedWindow{store: store, limit: limit, window: window, now: time.Now}
}

func (f *FixedWindow) Take(ctx context.Context, key string) (Decision, error) {
	now := f.now()
	start := now.Truncate(f.window)
	redisKey := fmt.Sprintf("ratelimit:fixed:%s:%d", key, start.Unix())

	count, err := f.store.Incr(ctx, redisKey)
	if err != nil {
		return Decision{}, err
	}
	if count == 1 {
		if err := f.store.Expire(ctx, redisKey, f.window); err != nil {
			return Decision{}, err
		}
	}

	return Decision{
		Allowed:   count <= int64(f.limit),
		Limit:     f.limit,
		Remaining: clampRemaining(f.limit, count),
		ResetAt:   start.Add(f.window),
	}, nil
}

func (f *FixedWindow) Limit() int {
	return f.limit
}
