package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Tiered checks an in-process L1 before an optional Redis L2. L2 failures are
// reported through the error hook and otherwise treated as misses, so the
// cache keeps working on L1 alone when Redis is down.
//
// With Redis configured, L1 is private to each instance while L2 is shared.
// DeletePrefix publishes the prefix on an invalidation channel so that peers
// running Subscribe drop their L1 copies, and L1 entries live for at most
// L1SharedTTL in case a message is missed.
type Tiered struct {
	l1       *Memory
	l2       *Redis
	channel  string
	counters counters
	onError  func(op string, err error)
}

// NewTiered creates a tiered cache. client may be nil for L1 only.
func NewTiered(cfg Config, client *redis.Client) *Tiered {
	l1TTL := cfg.L1TTL
	if client != nil && cfg.L1SharedTTL > 0 && (l1TTL <= 0 || cfg.L1SharedTTL < l1TTL) {
		l1TTL = cfg.L1SharedTTL
	}

	t := &Tiered{
		l1:      NewMemory(cfg.L1Size, l1TTL),
		onError: func(string, error) {},
	}
	if client != nil {
		t.l2 = NewRedis(client, cfg.L2KeyPrefix, cfg.L2TTL)
		t.channel = cfg.L2KeyPrefix + invalidationChannel
	}
	return t
}

const invalidationChannel = "invalidate"

// OnError sets a hook for swallowed L2 errors
func (t *Tiered) OnError(fn func(op string, err error)) {
	if fn != nil {
		t.onError = fn
	}
}

// Get checks L1, then L2. L2 hits are promoted into L1.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if value, ok, _ := t.l1.Get(ctx, key); ok {
		t.counters.record(true)
		return value, true, nil
	}

	if t.l2 != nil {
		value, ok, err := t.l2.Get(ctx, key)
		if err != nil {
			t.onError("get", err)
		} else if ok {
			_ = t.l1.Set(ctx, key, value, 0)
			t.counters.record(true)
			return value, true, nil
		}
	}

	t.counters.record(false)
	return nil, false, nil
}

// Set writes through both tiers
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = t.l1.Set(ctx, key, value, ttl)
	if t.l2 != nil {
		if err := t.l2.Set(ctx, key, value, ttl); err != nil {
			t.onError("set", err)
		}
	}
	return nil
}

// DeletePrefix removes matching keys from both tiers and tells peers to do
// the same. An L2 failure is returned since stale values could otherwise be
// served from Redis; a failed publish only goes to the error hook.
func (t *Tiered) DeletePrefix(ctx context.Context, prefix string) error {
	_ = t.l1.DeletePrefix(ctx, prefix)
	if t.l2 == nil {
		return nil
	}

	err := t.l2.DeletePrefix(ctx, prefix)
	if pubErr := t.l2.client.Publish(ctx, t.channel, prefix).Err(); pubErr != nil {
		t.onError("publish", pubErr)
	}
	return err
}

// Subscribe listens for invalidations published by peers and applies them to
// L1 until stop is called. It returns once the subscription is confirmed. It
// is a no-op without Redis.
func (t *Tiered) Subscribe(ctx context.Context) (stop func() error, err error) {
	if t.l2 == nil {
		return func() error { return nil }, nil
	}

	sub := t.l2.client.Subscribe(ctx, t.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", t.channel, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range sub.Channel() {
			_ = t.l1.DeletePrefix(context.Background(), msg.Payload)
		}
	}()

	return func() error {
		err := sub.Close()
		<-done
		return err
	}, nil
}

// Stats returns combined statistics; item count is L1 only
func (t *Tiered) Stats() Stats {
	return t.counters.stats(int64(t.l1.lru.Len()))
}

// Close releases L1 memory
func (t *Tiered) Close() error {
	return t.l1.Close()
}
