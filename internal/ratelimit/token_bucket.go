package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Refills, spends and stores the bucket in one server-side step. The bucket
// is a hash of tokens and the millisecond timestamp of the last refill.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
	tokens = capacity
else
	tokens = math.min(capacity, tokens + math.max(now - ts, 0) * rate / 1000)
end

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', tostring(now))
redis.call('PEXPIRE', key, ttl)

local wait = 0
if tokens < 1 then
	wait = math.ceil((1 - tokens) * 1000 / rate)
end

return {allowed, math.floor(tokens), wait}
`)

// TokenBucket refills continuously at a fixed rate up to its capacity.
type TokenBucket struct {
	scripts  Scripter
	capacity int
	perSec   float64
	now      func() time.Time
}

func NewTokenBucket(scripts Scripter, capacity int, perSecond float64) *TokenBucket {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &TokenBucket{scripts: scripts, capacity: capacity, perSec: perSecond, now: time.Now}
}

// ttl keeps idle buckets around until they would be full anyway.
func (t *TokenBucket) ttl() time.Duration {
	return time.Duration(float64(t.capacity)/t.perSec*float64(time.Second)) + time.Minute
}

func (t *TokenBucket) Take(ctx context.Context, key string) (Decision, error) {
	now := t.now()

	res, err := t.scripts.RunScript(ctx, tokenBucketScript, []string{"ratelimit:bucket:" + key},
		now.UnixMilli(), t.capacity, strconv.FormatFloat(t.perSec, 'f', -1, 64), t.ttl().Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("token bucket: unexpected reply %v", res)
	}

	return Decision{
		Allowed:   res[0] == 1,
		Limit:     t.capacity,
		Remaining: int(res[1]),
		ResetAt:   now.Add(time.Duration(res[2]) * time.Millisecond),
	}, nil
}

func (t *TokenBucket) Limit() int {
	return t.capacity
}
