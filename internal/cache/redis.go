package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis implements Cache on a go-redis client. Connection failures mark the
// cache unavailable instead of propagating; a broken Redis degrades token
// persistence, it does not break requests.
type Redis struct {
	rdb       *redis.Client
	logger    *zap.Logger
	available bool
}

// NewRedis connects to Redis and pings it once. When the ping fails the
// returned cache reports unavailable; callers decide whether to fall back
// to the in-process store.
func NewRedis(ctx context.Context, opts *redis.Options, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	rdb := redis.NewClient(opts)
	c := &Redis{rdb: rdb, logger: logger}

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, cache disabled", zap.Error(err))
		return c
	}
	c.available = true
	return c
}

func (c *Redis) Available() bool { return c.available }

func (c *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	if !c.available {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if !c.available {
		return false
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *Redis) Delete(ctx context.Context, key string) bool {
	if !c.available {
		return false
	}
	n, err := c.rdb.Del(ctx, key).Result()
	if err != nil {
		c.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return n > 0
}

// Close releases the underlying client.
func (c *Redis) Close() error {
	return c.rdb.Close()
}
