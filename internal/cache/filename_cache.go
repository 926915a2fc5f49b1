package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/radx-zenodo-upload/internal/config"
	"github.com/andresuchdata/radx-zenodo-upload/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const filenameKeyPrefix = "staging:filename:"

// FilenameCache remembers filenames resolved from staging pages.
type FilenameCache interface {
	Get(ctx context.Context, stagingURL string) (string, bool, error)
	Set(ctx context.Context, stagingURL, filename string) error
	Purge(ctx context.Context) (int, error)
	Close() error
}

// NewFilenameCache returns a Redis-backed cache, or a noop one when caching is
// disabled or Redis cannot be reached.
func NewFilenameCache(ctx context.Context, cfg config.CacheConfig) FilenameCache {
	if !cfg.Enabled {
		return noopFilenameCache{}
	}

	client, ttl, err := newRedisClient(ctx, cfg)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("filename cache disabled")
		return noopFilenameCache{}
	}

	logger.Log.Info().Str("addr", client.Options().Addr).Dur("ttl", ttl).Msg("filename cache enabled")
	return NewRedisFilenameCache(client, ttl)
}

type redisFilenameCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisFilenameCache wraps an existing client.
func NewRedisFilenameCache(client *redis.Client, ttl time.Duration) FilenameCache {
	if ttl <= 0 {
		ttl = defaultFilenameTTL
	}
	return &redisFilenameCache{client: client, ttl: ttl}
}

func filenameKey(stagingURL string) string {
	sum := sha1.Sum([]byte(stagingURL))
	return filenameKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *redisFilenameCache) Get(ctx context.Context, stagingURL string) (string, bool, error) {
	value, err := c.client.Get(ctx, filenameKey(stagingURL)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}
	return value, true, nil
}

func (c *redisFilenameCache) Set(ctx context.Context, stagingURL, filename string) error {
	if err := c.client.Set(ctx, filenameKey(stagingURL), filename, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisFilenameCache) Purge(ctx context.Context) (int, error) {
	return deleteKeysWithPrefix(ctx, c.client, filenameKeyPrefix, 100)
}

func (c *redisFilenameCache) Close() error {
	return c.client.Close()
}

type noopFilenameCache struct{}

func (noopFilenameCache) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (noopFilenameCache) Set(context.Context, string, string) error         { return nil }
func (noopFilenameCache) Purge(context.Context) (int, error)                { return 0, nil }
func (noopFilenameCache) Close() error                                       { return nil }
