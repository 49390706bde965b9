package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shortlyhq/shortly/internal/cache"
)

const keyPrefix = "short_url:"

// URLCache is a Redis-backed implementation of cache.URLCache.
type URLCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewURLCache(client *redis.Client, ttl time.Duration) *URLCache {
	return &URLCache{
		client: client,
		ttl:    ttl,
	}
}

func key(shortCode string) string {
	return keyPrefix + shortCode
}

func (c *URLCache) Get(ctx context.Context, shortCode string) (*cache.Entry, error) {
	const op = "cache.redis.URLCache.Get"

	data, err := c.client.Get(ctx, key(shortCode)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, cache.ErrCacheMiss)
		}

		return nil, fmt.Errorf("%s: failed to get cache entry: %w", op, err)
	}

	entry := new(cache.Entry)
	if err := json.Unmarshal(data, entry); err != nil {
		return nil, fmt.Errorf("%s: failed to unmarshal cache entry: %w", op, err)
	}

	return entry, nil
}

func (c *URLCache) Set(ctx context.Context, shortCode string, entry *cache.Entry) error {
	const op = "cache.redis.URLCache.Set"

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal cache entry: %w", op, err)
	}

	if err := c.client.Set(ctx, key(shortCode), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to set cache entry: %w", op, err)
	}

	return nil
}
