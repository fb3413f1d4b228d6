package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
)

// Cache is a set of keys that expire after a TTL
type Cache interface {
	// Add records key and reports whether it was absent
	Add(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Contains(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// LocalCache keeps keys in process memory. It is only correct when a
// single process adds keys, which holds for the leader-gated consumer
// as long as leadership does not move.
type LocalCache struct {
	cache *gocache.Cache
}

func NewLocalCache(defaultTTL, cleanupInterval time.Duration) *LocalCache {
	return &LocalCache{
		cache: gocache.New(defaultTTL, cleanupInterval),
	}
}

func (l *LocalCache) Add(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := l.cache.Add(key, struct{}{}, ttl); err != nil {
		// go-cache only fails Add when the key is live
		return false, nil
	}
	return true, nil
}

func (l *LocalCache) Contains(_ context.Context, key string) (bool, error) {
	_, found := l.cache.Get(key)
	return found, nil
}

func (l *LocalCache) Delete(_ context.Context, key string) error {
	l.cache.Delete(key)
	return nil
}

// Len counts keys including expired ones not yet cleaned up
func (l *LocalCache) Len() int {
	return l.cache.ItemCount()
}

// RedisCache keeps keys in Redis so they survive a leader change
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisCache(client *redis.Client, keyPrefix string) *RedisCache {
	return &RedisCache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (r *RedisCache) Add(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.keyPrefix+key, 1, ttl).Result()
}

func (r *RedisCache) Contains(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.keyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.keyPrefix+key).Err()
}
