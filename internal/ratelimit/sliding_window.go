package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Trims the window, counts, admits and reads the oldest member in one
// server-side step. Scores are milliseconds.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	count = count + 1
	allowed = 1
end

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
	reset = tonumber(oldest[2]) + window
end

return {allowed, count, reset}
`)

// SlidingWindow keeps one sorted-set member per admitted request, scored by
// its timestamp.
type SlidingWindow struct {
	scripts Scripter
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewSlidingWindow(scripts Scripter, limit int, window time.Duration) *SlidingWindow {
	if window < time.Millisecond {
		window = time.Millisecond
	}
	return &SlidingWindow{scripts: scripts, limit: limit, window: window, now: time.Now}
}

func (s *SlidingWindow) Take(ctx context.Context, key string) (Decision, error) {
	now := s.now()
	// Members carry a random suffix so two requests in the same millisecond both count.
	member := fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])

	res, err := s.scripts.RunScript(ctx, slidingWindowScript, []string{"ratelimit:sliding:" + key},
		now.UnixMilli(), s.window.Milliseconds(), s.limit, member).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("sliding window: unexpected reply %v", res)
	}

	return Decision{
		Allowed:   res[0] == 1,
		Limit:     s.limit,
		Remaining: clampRemaining(s.limit, res[1]),
		ResetAt:   time.UnixMilli(res[2]),
	}, nil
}

func (s *SlidingWindow) Limit() int {
	return s.limit
}
