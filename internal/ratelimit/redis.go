package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// fixedWindowScript counts hits on KEYS[1].  The first hit starts the window
// by setting the expiry; a full window is rejected without incrementing.
var fixedWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])

	local count = tonumber(redis.call('GET', key) or '0')
	if count >= limit then
		local ttl = redis.call('PTTL', key)
		return { 0, count, ttl }
	end

	count = redis.call('INCR', key)
	if count == 1 then
		redis.call('PEXPIRE', key, window_ms)
	end
	return { 1, count, redis.call('PTTL', key) }
`)

// RedisLimiter is the shared-memory alternative to MySQLLimiter.
type RedisLimiter struct {
	rdb    redis.Scripter
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(rdb redis.Scripter, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix, now: time.Now}
}

func (l *RedisLimiter) key(identifier, endpoint string) string {
	return strings.Join([]string{l.prefix, identifier, endpoint}, ":")
}

func (l *RedisLimiter) CheckAndConsume(ctx context.Context, identifier, endpoint string, limit int, window time.Duration) (Result, error) {
	vals, err := fixedWindowScript.Run(ctx, l.rdb, []string{l.key(identifier, endpoint)}, limit, window.Milliseconds()).Result()
	if err != nil {
		return Result{}, errors.Wrap(err, "rate limit script")
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 3 {
		return Result{}, errors.Errorf("rate limit script: unexpected result %#v", vals)
	}
	return buildResult(l.now(), limit, window, asInt64(arr[0]) == 1, asInt64(arr[1]), asInt64(arr[2])), nil
}

func buildResult(now time.Time, limit int, window time.Duration, allowed bool, count, ttlMs int64) Result {
	reset := now.Add(window)
	if ttlMs > 0 {
		reset = now.Add(time.Duration(ttlMs) * time.Millisecond)
	}
	remaining := 0
	if allowed {
		remaining = limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
	}
	return Result{Allowed: allowed, Remaining: remaining, ResetTime: reset}
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
