package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewRedisCache("redis://"+s.Addr(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestNewRedisCache(t *testing.T) {
	c, _ := setupTestRedis(t, 0)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	_, err := NewRedisCache("not a url", 0)
	assert.Error(t, err)
}

func TestRedisSetAndGet(t *testing.T) {
	c, _ := setupTestRedis(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "proposal-data-p1", `{"a":1}`))

	value, ok, err := c.Get(ctx, "proposal-data-p1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, value)
}

func TestRedisGetMiss(t *testing.T) {
	c, _ := setupTestRedis(t, 0)

	value, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestRedisEntriesExpireWithTTL(t *testing.T) {
	c, s := setupTestRedis(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v"))

	s.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisWithoutTTLKeepsEntries(t *testing.T) {
	c, s := setupTestRedis(t, 0)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v"))

	s.FastForward(24 * time.Hour)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "v"))
	value, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", value)
}
