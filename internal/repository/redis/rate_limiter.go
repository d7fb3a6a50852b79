package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"otc-service/internal/client"
	"otc-service/internal/util"
)

// slidingWindowScript keeps one sorted-set member per admitted request, scored by its
// millisecond timestamp. It returns {allowed, retryAfterMs}.
var slidingWindowScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if redis.call('ZCARD', key) < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	return {1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {0, tonumber(oldest[2]) + window - now}
`)

type RateLimiter struct {
	client *client.RedisClient
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(c *client.RedisClient, prefix string, limit int, window time.Duration) *RateLimiter {
	if prefix == "" {
		prefix = "otc"
	}
	return &RateLimiter{client: c, prefix: prefix, limit: limit, window: window, now: time.Now}
}

// Allow admits one request for key unless limit requests were already admitted within
// the trailing window.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := slidingWindowScript.Run(ctx, l.client.Client,
		[]string{fmt.Sprintf("%s:ratelimit:%s", l.prefix, key)},
		l.now().UnixMilli(), l.window.Milliseconds(), l.limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		util.Error("Failed to execute sliding window rate limit",
			util.String("key", key),
			util.ErrorField(err))
		return false, 0, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit result %v", res)
	}

	allowed := res[0] == 1
	if !allowed {
		util.Debug("Rate limit exceeded", util.String("key", key))
	}
	return allowed, time.Duration(res[1]) * time.Millisecond, nil
}
