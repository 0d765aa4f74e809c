package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisConfig tunes RedisLocker.
type RedisConfig struct {
	// TTL bounds how long a crashed holder can block others.
	TTL time.Duration
	// RetryDelay is the pause between SET NX attempts.
	RetryDelay time.Duration
	// Prefix is prepended to every key.
	Prefix string
	// ReleaseTimeout bounds the release round trip.
	ReleaseTimeout time.Duration
}

// DefaultRedisConfig returns sane defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		TTL:            10 * time.Second,
		RetryDelay:     20 * time.Millisecond,
		Prefix:         "lock:",
		ReleaseTimeout: 2 * time.Second,
	}
}

// RedisLocker is a Locker shared across processes through Redis.
type RedisLocker struct {
	client *redis.Client
	cfg    RedisConfig
	logger *slog.Logger
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a RedisLocker. Zero config fields use defaults.
func NewRedisLocker(client *redis.Client, cfg RedisConfig, logger *slog.Logger) *RedisLocker {
	def := DefaultRedisConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = def.ReleaseTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{client: client, cfg: cfg, logger: logger}
}

// Lock retries SET NX PX until it succeeds or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := l.cfg.Prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.cfg.TTL).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		case <-time.After(l.cfg.RetryDelay):
		}
	}

	l.logger.Debug("lock acquired", "key", redisKey)

	var once sync.Once
	return func() {
		once.Do(func() { l.release(redisKey, token) })
	}, nil
}

func (l *RedisLocker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.ReleaseTimeout)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int64()
	if err != nil {
		l.logger.Warn("lock release failed", "key", redisKey, "error", err)
		return
	}
	if n == 0 {
		l.logger.Warn("lock expired before release", "key", redisKey, "ttl", l.cfg.TTL)
	}
}
