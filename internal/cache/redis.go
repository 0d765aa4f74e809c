// Package cache holds the Redis client and the credential lookup cache.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config tunes the Redis pool and the auth context cache. Zero fields take
// the DefaultConfig values.
type Config struct {
	PoolSize int
	// AuthTTL bounds how long a revoked credential can survive on another
	// instance whose eviction failed.
	AuthTTL       time.Duration
	AuthKeyPrefix string
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		PoolSize:      20,
		AuthTTL:       5 * time.Minute,
		AuthKeyPrefix: "auth:ctx:",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PoolSize <= 0 {
		c.PoolSize = d.PoolSize
	}
	if c.AuthTTL <= 0 {
		c.AuthTTL = d.AuthTTL
	}
	if c.AuthKeyPrefix == "" {
		c.AuthKeyPrefix = d.AuthKeyPrefix
	}
	return c
}

// Cache wraps a Redis client with the auth cache settings.
type Cache struct {
	client  *redis.Client
	authTTL time.Duration
	authKey string
}

// New connects to redisURL and verifies the connection.
func New(ctx context.Context, redisURL string, cfg Config) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	cfg = cfg.withDefaults()
	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	c := NewFromClient(redis.NewClient(opt), cfg)
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return c, nil
}

// NewFromClient wraps an existing client. PoolSize is ignored. Close closes
// the client.
func NewFromClient(client *redis.Client, cfg Config) *Cache {
	cfg = cfg.withDefaults()
	return &Cache{
		client:  client,
		authTTL: cfg.AuthTTL,
		authKey: cfg.AuthKeyPrefix,
	}
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying client for the lock and event stream.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// AuthTTL is the lifetime of a cached auth context.
func (c *Cache) AuthTTL() time.Duration { return c.authTTL }
