package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var slidingWindowScript = redis.NewScript(`
-- KEYS[1] = window zset key
-- ARGV[1] = now_ms
-- ARGV[2] = window_ms
-- ARGV[3] = max
-- ARGV[4] = unique member for this hit
--
-- Returns: {allowed(0|1), remaining, retry_after_ms}
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now_ms - window_ms)
local count = redis.call('ZCARD', KEYS[1])

if count >= max then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  local retry = window_ms
  if oldest[2] then
    retry = (tonumber(oldest[2]) + window_ms) - now_ms
  end
  return {0, 0, retry}
end

redis.call('ZADD', KEYS[1], now_ms, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window_ms)
return {1, max - count - 1, 0}
`)

// RedisLimiter is a sliding-window limiter backed by a Redis sorted set per
// key. Admission is atomic via Lua, so multiple gateway instances sharing one
// Redis agree on the window.
type RedisLimiter struct {
	rdb    *redis.Client
	max    int
	window time.Duration
	prefix string
}

func NewRedisLimiter(rdb *redis.Client, max int, window time.Duration) (*RedisLimiter, error) {
	if rdb == nil {
		return nil, fmt.Errorf("ratelimit: redis client is nil")
	}
	if max <= 0 || window <= 0 {
		return nil, fmt.Errorf("ratelimit: max and window must be positive")
	}
	return &RedisLimiter{rdb: rdb, max: max, window: window, prefix: "ratelimit:"}, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := time.Now()
	res, err := slidingWindowScript.Run(ctx, l.rdb,
		[]string{l.prefix + key},
		now.UnixMilli(),
		l.window.Milliseconds(),
		l.max,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: script failed: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script result %v", res)
	}

	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}
