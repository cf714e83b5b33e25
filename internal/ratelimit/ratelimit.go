package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/codeWithGodstime/meetmesh/internal/user"
)

// incrScript bumps the counter and sets the window expiry in one step. A
// key left without a TTL gets one on its next hit.
var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`)

// RedisLimiter counts sends per user in fixed windows shared by all
// instances.
type RedisLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	log    zerolog.Logger
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, log zerolog.Logger) *RedisLimiter {
	return &RedisLimiter{
		redis:  client,
		limit:  limit,
		window: window,
		log:    log,
	}
}

func limitKey(u user.ID) string {
	return fmt.Sprintf("ratelimit:send:%d", u)
}

// Allow records one send for u and reports whether it is within the limit.
func (l *RedisLimiter) Allow(ctx context.Context, u user.ID) (bool, error) {
	key := limitKey(u)

	count, err := incrScript.Run(ctx, l.redis, []string{key}, l.window.Milliseconds()).Int64()
	if err != nil {
		l.log.Error().Err(err).Int("user_id", int(u)).Msg("failed to increment rate limit")
		return false, err
	}

	return count <= int64(l.limit), nil
}

// Unlimited allows every send.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, user.ID) (bool, error) {
	return true, nil
}
