package epplimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript maintains a per-sender sorted set of acceptance
// instants (score = unix microseconds) and enforces the hourly/daily caps
// of spec §4.6 atomically, so that concurrent submissions for the same
// sender across multiple server instances cannot both observe capacity.
//
// KEYS[1] = sorted set key for the sender
// ARGV[1] = current unix time in microseconds
// ARGV[2] = max_per_hour (-1 = unlimited)
// ARGV[3] = max_per_day (-1 = unlimited)
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local max_hour = tonumber(ARGV[2])
local max_day = tonumber(ARGV[3])

local day_cutoff = now - 86400 * 1000000
local hour_cutoff = now - 3600 * 1000000

redis.call("ZREMRANGEBYSCORE", key, "-inf", day_cutoff)

local d = redis.call("ZCARD", key)
local h = redis.call("ZCOUNT", key, hour_cutoff, "+inf")

if max_hour >= 0 and h >= max_hour then
    return {0, "hour", h, max_hour}
end
if max_day >= 0 and d >= max_day then
    return {0, "day", d, max_day}
end

redis.call("ZADD", key, now, now .. "-" .. tostring(math.random(1000000)))
redis.call("EXPIRE", key, 86400)

return {1, "", 0, 0}
`)

// RedisLimiter is the optional distributed sliding-window limiter backend
// (spec §4.6 concurrency note: check-and-record must be atomic per
// sender across instances sharing a rate limit).
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter wraps an already-configured *redis.Client.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// CheckAndRecord implements Limiter via the sliding-window Lua script.
func (l *RedisLimiter) CheckAndRecord(ctx context.Context, sender string, maxPerHour, maxPerDay *int) error {
	key := fmt.Sprintf("epp:rate:%s", sender)
	hourArg, dayArg := -1, -1
	if maxPerHour != nil {
		hourArg = *maxPerHour
	}
	if maxPerDay != nil {
		dayArg = *maxPerDay
	}

	res, err := slidingWindowScript.Run(ctx, l.client, []string{key},
		time.Now().UnixMicro(), hourArg, dayArg).Result()
	if err != nil {
		return fmt.Errorf("epplimiter: redis script: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 4 {
		return fmt.Errorf("epplimiter: unexpected script response")
	}

	allowed, _ := results[0].(int64)
	if allowed == 1 {
		return nil
	}

	window, _ := results[1].(string)
	count, _ := results[2].(int64)
	cap, _ := results[3].(int64)

	if window == "hour" {
		return &RejectedError{Reason: fmt.Sprintf("Hourly rate limit exceeded (%d/%d)", count, cap)}
	}
	return &RejectedError{Reason: fmt.Sprintf("Daily rate limit exceeded (%d/%d)", count, cap)}
}
