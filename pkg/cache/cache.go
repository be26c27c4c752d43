// Package cache provides the byte-oriented caches that sit in front of the
// analytics computations: an in-process expiring LRU, a Redis cache and a
// tiered combination of the two.
package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrCacheUnavailable is returned when a backend cannot be reached
var ErrCacheUnavailable = errors.New("cache unavailable")

// Cache stores opaque values by string key
type Cache interface {
	// Get returns the value and true on a hit. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A zero ttl uses the cache's default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeletePrefix removes every key starting with prefix
	DeletePrefix(ctx context.Context, prefix string) error

	Stats() Stats
	Close() error
}

// Stats represents cache statistics
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hitRate"`
	ItemCount int64   `json:"itemCount"`
}

// Config holds cache configuration
type Config struct {
	L1Size int           // max entries in the in-process LRU
	L1TTL  time.Duration // expiry of in-process entries

	// L1SharedTTL caps L1 expiry when Redis is shared between instances
	L1SharedTTL time.Duration

	L2TTL       time.Duration // expiry of Redis entries
	L2KeyPrefix string
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		L1Size:      10000,
		L1TTL:       5 * time.Minute,
		L1SharedTTL: 30 * time.Second,
		L2TTL:       15 * time.Minute,
		L2KeyPrefix: "unwind:",
	}
}

type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

func (c *counters) stats(items int64) Stats {
	s := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		ItemCount: items,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
