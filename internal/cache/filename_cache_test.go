package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/andresuchdata/radx-zenodo-upload/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, FilenameCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisFilenameCache(client, time.Hour)
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestRedisFilenameCache(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "https://staging/a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "https://staging/a", "a.csv"))
	name, ok, err := c.Get(ctx, "https://staging/a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a.csv", name)

	key := filenameKey("https://staging/a")
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))

	mr.FastForward(2 * time.Hour)
	_, ok, err = c.Get(ctx, "https://staging/a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPurge(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "u1", "a"))
	require.NoError(t, c.Set(ctx, "u2", "b"))
	require.NoError(t, mr.Set("other", "keep"))

	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("other"))
}

func TestNewFilenameCacheFallsBack(t *testing.T) {
	ctx := context.Background()

	c := NewFilenameCache(ctx, config.CacheConfig{Enabled: false})
	assert.IsType(t, noopFilenameCache{}, c)

	c = NewFilenameCache(ctx, config.CacheConfig{Enabled: true, RedisURL: "redis://127.0.0.1:1/0"})
	assert.IsType(t, noopFilenameCache{}, c)

	mr := miniredis.RunT(t)
	c = NewFilenameCache(ctx, config.CacheConfig{Enabled: true, RedisURL: "redis://" + mr.Addr() + "/0"})
	assert.IsType(t, &redisFilenameCache{}, c)
	require.NoError(t, c.Close())
}

func TestBuildRedisOptions(t *testing.T) {
	opts, err := buildRedisOptions(config.CacheConfig{RedisPort: "6380", RedisDB: 2})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	_, err = buildRedisOptions(config.CacheConfig{RedisURL: "://bad"})
	assert.Error(t, err)
}
