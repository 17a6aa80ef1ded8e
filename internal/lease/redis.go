package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "pulseflow:lease:"

// Redis keeps leases in Redis so a release from any replica frees the key.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis wraps an existing client. A ttl of zero or less uses DefaultTTL.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Acquire sets the key only if it is absent.
func (r *Redis) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, redisKeyPrefix+key, "1", r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis acquire lease %s: %w", key, err)
	}
	return ok, nil
}

// Release deletes the key.
func (r *Redis) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis release lease %s: %w", key, err)
	}
	return nil
}

// Held reports whether the key exists.
func (r *Redis) Held(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis lease exists %s: %w", key, err)
	}
	return n > 0, nil
}
