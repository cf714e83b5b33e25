package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codeWithGodstime/meetmesh/internal/user"
)

var clearIfScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisRegistry shares presence across instances. Every key carries the
// TTL so a crashed instance cannot leave users online forever.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, ttl: ttl}
}

func presenceKey(u user.ID) string {
	return fmt.Sprintf("presence:user:%d", u)
}

func (r *RedisRegistry) Set(ctx context.Context, u user.ID, h Handle) error {
	if err := r.client.Set(ctx, presenceKey(u), string(h), r.ttl).Err(); err != nil {
		return fmt.Errorf("presence set %d: %w", u, err)
	}
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, u user.ID) (Handle, bool, error) {
	val, err := r.client.Get(ctx, presenceKey(u)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("presence get %d: %w", u, err)
	}
	return Handle(val), true, nil
}

func (r *RedisRegistry) Clear(ctx context.Context, u user.ID) error {
	if err := r.client.Del(ctx, presenceKey(u)).Err(); err != nil {
		return fmt.Errorf("presence clear %d: %w", u, err)
	}
	return nil
}

func (r *RedisRegistry) ClearIf(ctx context.Context, u user.ID, h Handle) error {
	err := clearIfScript.Run(ctx, r.client, []string{presenceKey(u)}, string(h)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("presence clear %d: %w", u, err)
	}
	return nil
}
