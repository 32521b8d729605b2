package kvstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cashi/auth-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultPingTimeout    = 2 * time.Second
	defaultDialTimeout    = 3 * time.Second
	defaultIOTimeout      = 2 * time.Second
)

// Client wraps a go-redis client with connection lifecycle tracking.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	rdb    redis.UniversalClient
	prefix string

	connected bool
	mu        sync.RWMutex
}

// Connect creates a Redis client from cfg and verifies it with a ping.
//
// Returns ErrDisabled when redis.enabled is false so callers can fall back
// to the in-process cache.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultIOTimeout,
		WriteTimeout: defaultIOTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return &Client{
		rdb:       rdb,
		prefix:    cfg.KeyPrefix,
		connected: true,
	}, nil
}

// NewFromClient wraps an existing go-redis client. Used by tests.
func NewFromClient(rdb redis.UniversalClient, prefix string) *Client {
	return &Client{rdb: rdb, prefix: prefix, connected: true}
}

// Redis returns the underlying go-redis client.
func (c *Client) Redis() redis.UniversalClient {
	return c.rdb
}

// KeyPrefix returns the configured key namespace, e.g. "authcore:".
func (c *Client) KeyPrefix() string {
	return c.prefix
}

// HealthCheck pings Redis.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := c.rdb.Ping(checkCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// IsConnected reports whether Close has not been called yet.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close closes the connection pool. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false

	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("closing redis: %w", err)
	}
	return nil
}
