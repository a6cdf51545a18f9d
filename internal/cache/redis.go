// Package cache holds the Redis-backed hot caches: the day-keyed event
// cache fed by ETL runs and the read-through aggregate caches. Every cache
// in this package fails open — a Redis or serialization error degrades to
// a miss and never propagates to the read path.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis using a redis:// URL and verifies the
// connection before returning.
func NewRedisClient(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// getJSON loads and decodes a JSON value. The second return is false on a
// miss (absent key) — distinct from a decoding or transport error.
func getJSON(ctx context.Context, client goredis.UniversalClient, key string, dst any) (bool, error) {
	raw, err := client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached value at %s: %w", key, err)
	}
	return true, nil
}

// setJSON encodes and stores a JSON value with the given TTL.
func setJSON(ctx context.Context, client goredis.UniversalClient, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode value for %s: %w", key, err)
	}
	if err := client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
