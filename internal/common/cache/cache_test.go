package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, "test:"), mr
}

func TestCaches(t *testing.T) {
	ctx := context.Background()
	redisCache, _ := newRedisCache(t)

	backends := map[string]Cache{
		"local": NewLocalCache(time.Minute, time.Minute),
		"redis": redisCache,
	}
	for name, c := range backends {
		t.Run(name, func(t *testing.T) {
			ok, err := c.Contains(ctx, "m1")
			require.NoError(t, err)
			assert.False(t, ok)

			added, err := c.Add(ctx, "m1", time.Minute)
			require.NoError(t, err)
			assert.True(t, added)

			added, err = c.Add(ctx, "m1", time.Minute)
			require.NoError(t, err)
			assert.False(t, added, "second add of the same key")

			ok, err = c.Contains(ctx, "m1")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, c.Delete(ctx, "m1"))
			ok, err = c.Contains(ctx, "m1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestLocalCache_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(time.Minute, time.Minute)

	added, _ := c.Add(ctx, "m1", 20*time.Millisecond)
	require.True(t, added)
	assert.Equal(t, 1, c.Len())

	time.Sleep(40 * time.Millisecond)
	ok, _ := c.Contains(ctx, "m1")
	assert.False(t, ok)

	added, _ = c.Add(ctx, "m1", time.Minute)
	assert.True(t, added, "expired key can be added again")
}

func TestRedisCache_Expires(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)

	added, err := c.Add(ctx, "m1", time.Minute)
	require.NoError(t, err)
	require.True(t, added)
	assert.True(t, mr.Exists("test:m1"))

	mr.FastForward(2 * time.Minute)
	ok, err := c.Contains(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNew(t *testing.T) {
	_, err := New(Config{Type: TypeRedis})
	assert.Error(t, err)

	_, err = New(Config{Type: "memcached"})
	assert.Error(t, err)

	c, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &LocalCache{}, c)
}
