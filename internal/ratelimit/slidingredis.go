package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cast"
)

// slidingScript trims the window, admits the request only while the window has
// room and reports the oldest admitted timestamp so callers get an exact reset.
// Rejected requests are not recorded.
var slidingScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
local allowed = 0
if count < max then
	redis.call('ZADD', key, ARGV[1], ARGV[5])
	count = count + 1
	allowed = 1
end
redis.call('PEXPIRE', key, ARGV[4])
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local first = ARGV[1]
if oldest[2] then
	first = oldest[2]
end
return {allowed, count, first}
`)

// SlidingWindow is a sliding window limiter backed by a Redis sorted set per key.
// Scores are admission times in milliseconds.
type SlidingWindow struct {
	Client *redis.Client
	Prefix string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Allow admits one request for key when fewer than max were admitted during the
// trailing window. reset is when the oldest admitted request leaves the window.
func (l SlidingWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1 {
		windowMs = 1
	}
	nowMs := now.UnixMilli()
	res, err := slidingScript.Run(ctx, l.Client, []string{l.Prefix + key},
		nowMs,
		nowMs-windowMs,
		max,
		windowMs,
		uuid.NewString(),
	).Slice()
	if err != nil {
		return false, 0, now.Add(window), fmt.Errorf("sliding window %s: %w", key, err)
	}
	if len(res) != 3 {
		return false, 0, now.Add(window), fmt.Errorf("sliding window %s: unexpected reply of %d values", key, len(res))
	}

	count := cast.ToInt(res[1])
	oldest, err := strconv.ParseFloat(cast.ToString(res[2]), 64)
	if err != nil {
		return false, 0, now.Add(window), fmt.Errorf("sliding window %s: oldest score: %w", key, err)
	}
	remaining = max - count
	if remaining < 0 {
		remaining = 0
	}
	reset = time.UnixMilli(int64(oldest)).Add(window)
	return cast.ToInt(res[0]) == 1, remaining, reset, nil
}
