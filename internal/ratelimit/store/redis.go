package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"canopy/internal/ratelimit/models"
)

// allowScript implements the sliding window over a sorted set in one atomic
// step: expire old attempts, count, and record the new one only when the
// budget allows. Scores and arguments are unix milliseconds. The reply is
// {allowed, count, oldestScore}.
var allowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)
	count = count + 1
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then
	oldestScore = tonumber(oldest[2])
end
if count <= limit then
	return {1, count, oldestScore}
end
return {0, count, oldestScore}
`)

// Redis is a sliding-window store shared across server instances.
type Redis struct {
	client *redis.Client

	now func() time.Time
}

// NewRedis creates a store over the given client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		client: client,
		now:    time.Now,
	}
}

var _ Store = (*Redis)(nil)

// Allow checks and records one attempt against key's window.
func (s *Redis) Allow(ctx context.Context, key string, limit int, span time.Duration) (*models.Result, error) {
	now := s.now()
	nowMillis := now.UnixMilli()
	// The member must be unique per attempt; nanoseconds disambiguate
	// attempts landing in the same millisecond.
	member := strconv.FormatInt(now.UnixNano(), 10)

	reply, err := allowScript.Run(ctx, s.client, []string{key},
		nowMillis, span.Milliseconds(), limit, member).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check: %w", err)
	}
	if len(reply) != 3 {
		return nil, fmt.Errorf("redis rate limit check: unexpected reply length %d", len(reply))
	}

	allowed := reply[0] == 1
	count := int(reply[1])
	resetAt := time.UnixMilli(reply[2]).Add(span)

	result := &models.Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}
	if !allowed {
		result.RetryAfter = retryAfterSeconds(now, resetAt)
	}
	return result, nil
}

// Reset clears the window for key.
func (s *Redis) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis rate limit reset: %w", err)
	}
	return nil
}
