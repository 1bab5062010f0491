package protect

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces rate-limit counters in Redis.
const KeyPrefix = "parley:ratelimit:"

// checkScript increments the counter unless it already reached the limit.
// Returns -1 on rejection, otherwise the new count.
var checkScript = redis.NewScript(`
local c = tonumber(redis.call('GET', KEYS[1]) or '0')
if c >= tonumber(ARGV[1]) then
  return -1
end
redis.call('SET', KEYS[1], c + 1, 'PX', ARGV[2])
return c + 1
`)

// RedisLimiter is a Limiter whose counters live in Redis so that several
// instances share one budget per identity.
type RedisLimiter struct {
	client redis.Scripter
}

// NewRedisLimiter creates a limiter on top of an existing Redis client.
func NewRedisLimiter(client redis.Scripter) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Check implements Limiter.
func (l *RedisLimiter) Check(ctx context.Context, identity string, limit int, window time.Duration) (Decision, error) {
	d := Decision{Limit: limit, Window: window}

	ms := window.Milliseconds()
	if ms < 1 {
		ms = 1
	}

	n, err := checkScript.Run(ctx, l.client, []string{KeyPrefix + identity}, limit, ms).Int64()
	if err != nil {
		return d, fmt.Errorf("redis rate check: %w", err)
	}
	if n < 0 {
		return d, ErrRateLimited
	}

	d.Allowed = true
	d.Remaining = limit - int(n)
	return d, nil
}
