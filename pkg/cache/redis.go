package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis stores values in Redis under a key prefix
type Redis struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	counters counters
}

// NewRedisClient parses a redis:// URL and verifies connectivity
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedis wraps an existing client. The cache does not own the client; Close
// is a no-op so the client can be shared with health checks.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get retrieves a cached value
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.counters.record(false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	r.counters.record(true)
	return data, true, nil
}

// Set stores a value
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// DeletePrefix removes matching keys using SCAN
func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	pattern := r.prefix + prefix + "*"
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan failed for pattern %s: %w", pattern, err)
	}
	return nil
}

// Stats returns hit/miss counters; item count is not tracked
func (r *Redis) Stats() Stats {
	return r.counters.stats(0)
}

// Close is a no-op
func (r *Redis) Close() error {
	return nil
}
