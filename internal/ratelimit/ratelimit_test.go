package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
)

// memoryStore is an in-process Store for exercising the limiters.
type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: make(map[string]string)}
}

func (m *memoryStore) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := strconv.ParseInt(m.values[key], 10, 64)
	n++
	m.values[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *memoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func TestFixedWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)

	limiter := NewFixedWindow(newMemoryStore(), 3, time.Minute)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		d, err := limiter.Take(ctx, "auth:10.0.0.1")
		if err != nil {
			t.Fatalf("Take: %v", err)
		}
		if !d.Allowed || d.Remaining != 2-i {
			t.Fatalf("request %d = %+v", i+1, d)
		}
	}

	d, _ := limiter.Take(ctx, "auth:10.0.0.1")
	if d.Allowed || d.Remaining != 0 {
		t.Errorf("fourth request = %+v, want rejected", d)
	}
	if !d.ResetAt.Equal(time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC)) {
		t.Errorf("reset = %v", d.ResetAt)
	}
	if got := d.RetryAfter(now); got != 55 {
		t.Errorf("RetryAfter = %d, want 55", got)
	}

	other, _ := limiter.Take(ctx, "auth:10.0.0.2")
	if !other.Allowed || other.Remaining != 2 {
		t.Errorf("other key = %+v", other)
	}

	now = now.Add(time.Minute)
	if d, _ = limiter.Take(ctx, "auth:10.0.0.1"); !d.Allowed {
		t.Error("next window should admit again")
	}
}

func TestDecisionRetryAfterRoundsUp(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		wait time.Duration
		want int
	}{
		{0, 0},
		{-time.Second, 0},
		{300 * time.Millisecond, 1},
		{2 * time.Second, 2},
	}
	for _, tt := range tests {
		if got := (Decision{ResetAt: now.Add(tt.wait)}).RetryAfter(now); got != tt.want {
			t.Errorf("RetryAfter(%v) = %d, want %d", tt.wait, got, tt.want)
		}
	}
}

func newTestRedis(t *testing.T) *storage.RedisClient {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := storage.NewRedis(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client
}

func TestSlidingWindow(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := start

	limiter := NewSlidingWindow(newTestRedis(t), 3, time.Minute)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		d, err := limiter.Take(ctx, "auth:10.0.0.1")
		if err != nil {
			t.Fatalf("Take: %v", err)
		}
		if !d.Allowed || d.Remaining != 2-i {
			t.Fatalf("request %d = %+v", i+1, d)
		}
	}

	d, err := limiter.Take(ctx, "auth:10.0.0.1")
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Errorf("fourth request = %+v, want rejected", d)
	}
	if !d.ResetAt.Equal(start.Add(time.Minute)) {
		t.Errorf("reset = %v, want %v", d.ResetAt, start.Add(time.Minute))
	}

	// Rejected requests are not recorded, so the oldest admitted one still
	// decides when the window reopens.
	now = start.Add(30 * time.Second)
	d, _ = limiter.Take(ctx, "auth:10.0.0.1")
	if d.Allowed {
		t.Fatal("window still full after 30s")
	}
	if got := d.RetryAfter(now); got != 30 {
		t.Errorf("RetryAfter = %d, want 30", got)
	}

	other, _ := limiter.Take(ctx, "auth:10.0.0.2")
	if !other.Allowed || other.Remaining != 2 {
		t.Errorf("other key = %+v", other)
	}

	now = start.Add(61 * time.Second)
	d, _ = limiter.Take(ctx, "auth:10.0.0.1")
	if !d.Allowed || d.Remaining != 2 {
		t.Errorf("after the window = %+v, want admitted with 2 left", d)
	}
}

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	bucket := NewTokenBucket(newTestRedis(t), 2, 1)
	bucket.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if d, err := bucket.Take(ctx, "k"); err != nil || !d.Allowed {
			t.Fatalf("request %d: %+v err=%v", i+1, d, err)
		}
	}

	d, err := bucket.Take(ctx, "k")
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if d.Allowed {
		t.Fatal("empty bucket should reject")
	}
	if got := d.RetryAfter(now); got != 1 {
		t.Errorf("RetryAfter = %d, want 1", got)
	}

	now = now.Add(1500 * time.Millisecond)
	d, _ = bucket.Take(ctx, "k")
	if !d.Allowed || d.Remaining != 0 {
		t.Errorf("after 1.5s = %+v, want one refilled token spent", d)
	}
}

func TestConcurrentTakesNeverOverAdmit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	redis := newTestRedis(t)

	bucket := NewTokenBucket(redis, 5, 0.001)
	bucket.now = func() time.Time { return now }
	window := NewSlidingWindow(redis, 5, time.Hour)
	window.now = func() time.Time { return now }

	for _, limiter := range []Limiter{bucket, window} {
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			admitted int
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d, err := limiter.Take(ctx, "burst")
				if err != nil {
					t.Errorf("Take: %v", err)
					return
				}
				if d.Allowed {
					mu.Lock()
					admitted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if admitted != 5 {
			t.Errorf("%T admitted %d of 50, want 5", limiter, admitted)
		}
	}
}

func TestNewLimiterSelectsAlgorithm(t *testing.T) {
	redis := newTestRedis(t)

	tests := []struct {
		algorithm string
		want      string
	}{
		{AlgorithmFixedWindow, "*ratelimit.FixedWindow"},
		{AlgorithmSlidingWindow, "*ratelimit.SlidingWindow"},
		{AlgorithmTokenBucket, "*ratelimit.TokenBucket"},
		{"", "*ratelimit.FixedWindow"},
	}
	for _, tt := range tests {
		limiter := NewLimiter(redis, tt.algorithm, 10, time.Minute)
		if got := fmt.Sprintf("%T", limiter); got != tt.want {
			t.Errorf("NewLimiter(%q) = %s, want %s", tt.algorithm, got, tt.want)
		}
		if limiter.Limit() != 10 {
			t.Errorf("NewLimiter(%q).Limit() = %d, want 10", tt.algorithm, limiter.Limit())
		}
	}
}
