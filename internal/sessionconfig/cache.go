package sessionconfig

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how long a cached value is served before the
// store is read again.
const DefaultCacheTTL = 5 * time.Minute

// RedisKeyPrefix namespaces session config entries in Redis.
const RedisKeyPrefix = "authcore:sessioncfg:"

// Cache holds recently read configuration values.
// A miss is reported as ok == false with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value int, ok bool, err error)
	Set(ctx context.Context, key string, value int) error
	Delete(ctx context.Context, key string) error
}

// MemoryCache is an in-process Cache with a fixed TTL.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   int
	expires time.Time
}

// NewMemoryCache creates an in-process cache. A non-positive ttl means entries never expire.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *MemoryCache) Get(_ context.Context, key string) (int, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return 0, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return 0, false, nil
	}
	return e.value, true, nil
}

// Set caches value for key.
func (c *MemoryCache) Set(_ context.Context, key string, value int) error {
	e := memoryEntry{value: value}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Delete evicts key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// RedisCache shares cached values between replicas through Redis.
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache. An empty prefix means RedisKeyPrefix.
func NewRedisCache(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = RedisKeyPrefix
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Get reads key from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (int, bool, error) {
	v, err := c.rdb.Get(ctx, c.prefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

// Set writes key to Redis with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value int) error {
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := c.rdb.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key from Redis.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
