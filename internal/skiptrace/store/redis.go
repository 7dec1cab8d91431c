package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"skiptrace/internal/skiptrace"
)

const cacheKeyPrefix = "skiptrace:cache:"

// RedisCache fronts another Cache with a Redis read-through layer. Hits skip
// the backing store entirely; misses fall through and populate Redis on the
// way back. Redis failures degrade to the backing store, never to an error.
type RedisCache struct {
	client  *redis.Client
	backing Cache
	ttl     time.Duration
	log     *slog.Logger
}

// NewRedisCache wraps the backing cache. ttl should match the freshness
// window so Redis never serves a record Postgres would consider stale.
func NewRedisCache(client *redis.Client, backing Cache, ttl time.Duration, log *slog.Logger) *RedisCache {
	return &RedisCache{client: client, backing: backing, ttl: ttl, log: log}
}

func (c *RedisCache) key(addressKey, nameKey string) string {
	return cacheKeyPrefix + addressKey + "|" + nameKey
}

func (c *RedisCache) Lookup(ctx context.Context, addressKey, nameKey string) (*skiptrace.CacheRecord, error) {
	key := c.key(addressKey, nameKey)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var rec skiptrace.CacheRecord
		if err := json.Unmarshal(raw, &rec); err == nil {
			return &rec, nil
		}
		// Corrupt entry: drop it and fall through to the backing store.
		c.client.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn("redis cache read failed", "error", err)
	}

	rec, err := c.backing.Lookup(ctx, addressKey, nameKey)
	if err != nil {
		return nil, err
	}
	c.populate(ctx, key, rec)
	return rec, nil
}

func (c *RedisCache) Insert(ctx context.Context, rec *skiptrace.CacheRecord) (*skiptrace.CacheRecord, error) {
	stored, err := c.backing.Insert(ctx, rec)
	if err != nil {
		return nil, err
	}
	c.populate(ctx, c.key(stored.AddressKey, stored.NameKey), stored)
	return stored, nil
}

func (c *RedisCache) Refresh(ctx context.Context, rec *skiptrace.CacheRecord) error {
	if err := c.backing.Refresh(ctx, rec); err != nil {
		return err
	}
	c.populate(ctx, c.key(rec.AddressKey, rec.NameKey), rec)
	return nil
}

func (c *RedisCache) populate(ctx context.Context, key string, rec *skiptrace.CacheRecord) {
	raw, err := json.Marshal(rec)
	if err != nil {
		c.log.Warn("redis cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("redis cache write failed", "error", err)
	}
}

var _ Cache = (*RedisCache)(nil)
