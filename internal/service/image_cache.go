package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const imageCacheKeyPrefix = "image:prompt:"

// ImageCache remembers the final URL generated for a prompt and size
type ImageCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewImageCache creates a Redis backed prompt cache
func NewImageCache(client *redis.Client, ttl time.Duration) *ImageCache {
	return &ImageCache{redis: client, ttl: ttl}
}

// Get returns the cached URL for req; ok is false on a miss
func (c *ImageCache) Get(ctx context.Context, req ImageRequest) (string, bool, error) {
	url, err := c.redis.Get(ctx, cacheKey(req)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read image cache: %w", err)
	}
	return url, true, nil
}

// Set stores url for req
func (c *ImageCache) Set(ctx context.Context, req ImageRequest, url string) error {
	if err := c.redis.Set(ctx, cacheKey(req), url, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write image cache: %w", err)
	}
	return nil
}

func cacheKey(req ImageRequest) string {
	sum := sha256.Sum256([]byte(req.Size + "|" + req.Prompt))
	return imageCacheKeyPrefix + hex.EncodeToString(sum[:])
}
