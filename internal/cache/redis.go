package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"aggregat4/linkbook/internal/logger"
)

// KeyPrefix namespaces every key this application writes to redis.
const KeyPrefix = "linkbook:cache:"

// Redis stores JSON encoded values in redis and lets redis expire them.
type Redis[V any] struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	log    logger.Logger
}

// NewRedis returns a cache writing keys under KeyPrefix + namespace + ":".
func NewRedis[V any](client redis.Cmdable, namespace string, ttl time.Duration, log logger.Logger) *Redis[V] {
	return &Redis[V]{client: client, prefix: KeyPrefix + namespace + ":", ttl: ttl, log: log}
}

func (c *Redis[V]) key(k string) string {
	return c.prefix + k
}

func (c *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	var value V
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis cache get failed", logger.String("key", key), logger.Error(err))
		}
		return value, false
	}
	if err := json.Unmarshal(data, &value); err != nil {
		c.log.Warn("redis cache entry is corrupt", logger.String("key", key), logger.Error(err))
		var zero V
		return zero, false
	}
	return value, true
}

func (c *Redis[V]) Set(ctx context.Context, key string, value V) {
	data, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("redis cache marshal failed", logger.String("key", key), logger.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		c.log.Warn("redis cache set failed", logger.String("key", key), logger.Error(err))
	}
}

func (c *Redis[V]) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		c.log.Warn("redis cache delete failed", logger.String("key", key), logger.Error(err))
	}
}

// Clear deletes every key under this cache's prefix.
func (c *Redis[V]) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.log.Warn("redis cache clear failed", logger.String("key", iter.Val()), logger.Error(err))
			return
		}
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("redis cache scan failed", logger.Error(err))
	}
}
