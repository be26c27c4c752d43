package cache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is an in-process LRU with a single expiry for all entries
type Memory struct {
	lru      *lru.LRU[string, []byte]
	counters counters
}

// NewMemory creates a memory cache holding at most size entries
func NewMemory(size int, ttl time.Duration) *Memory {
	if size < 10 {
		size = 10
	}
	return &Memory{
		lru: lru.NewLRU[string, []byte](size, nil, ttl),
	}
}

// Get retrieves a cached value
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := m.lru.Get(key)
	m.counters.record(ok)
	return value, ok, nil
}

// Set stores a value. Per-entry ttl is not supported; the LRU expiry applies.
func (m *Memory) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.lru.Add(key, value)
	return nil
}

// DeletePrefix removes matching keys
func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	for _, key := range m.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			m.lru.Remove(key)
		}
	}
	return nil
}

// Stats returns cache statistics
func (m *Memory) Stats() Stats {
	return m.counters.stats(int64(m.lru.Len()))
}

// Close releases resources
func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}
