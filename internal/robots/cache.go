package robots

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores raw robots.txt bodies keyed by origin. An empty body means
// the origin publishes no rules.
type Cache interface {
	Get(ctx context.Context, origin string) (body string, ok bool, err error)
	Set(ctx context.Context, origin, body string, ttl time.Duration) error
}

type memoryEntry struct {
	body      string
	expiresAt time.Time
}

// MemoryCache is an in-process Cache with per-entry expiry.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, origin string) (string, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[origin]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, origin)
		c.mu.Unlock()
		return "", false, nil
	}
	return entry.body, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, origin, body string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[origin] = memoryEntry{body: body, expiresAt: c.now().Add(ttl)}
	return nil
}

// Clear drops every entry.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
}

const redisKeyPrefix = "pulseflow:robots:"

// RedisCache shares robots.txt bodies across replicas.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, origin string) (string, bool, error) {
	body, err := c.client.Get(ctx, redisKeyPrefix+origin).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get robots %s: %w", origin, err)
	}
	return body, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, origin, body string, ttl time.Duration) error {
	if err := c.client.Set(ctx, redisKeyPrefix+origin, body, ttl).Err(); err != nil {
		return fmt.Errorf("redis set robots %s: %w", origin, err)
	}
	return nil
}
