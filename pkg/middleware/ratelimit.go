package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/platinummonkey/unwind/pkg/httputil"
	"github.com/platinummonkey/unwind/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerMinute is the steady refill rate
	RequestsPerMinute int
	// Burst is the bucket capacity
	Burst int
}

// DefaultRateLimitConfig returns the limits applied to the auth endpoints
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
		Burst:             5,
	}
}

// RateLimiter implements rate limiting using token bucket algorithm
type RateLimiter struct {
	config  RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	metrics *observability.Metrics
	now     func() time.Time
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter. Non-positive values fall back
// to the defaults.
func NewRateLimiter(config RateLimitConfig, metrics *observability.Metrics) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if config.RequestsPerMinute < 1 {
		config.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if config.Burst < 1 {
		config.Burst = defaults.Burst
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		metrics: metrics,
		now:     time.Now,
	}
}

// Allow checks if a request is allowed for the given key
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: float64(rl.config.Burst), lastUpdate: now}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastUpdate)
	if elapsed > 0 {
		b.tokens = math.Min(float64(rl.config.Burst), b.tokens+elapsed.Minutes()*float64(rl.config.RequestsPerMinute))
		b.lastUpdate = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// retryAfter is the wait until one token is available again
func (rl *RateLimiter) retryAfter() time.Duration {
	return time.Duration(float64(time.Minute) / float64(rl.config.RequestsPerMinute))
}

// Cleanup removes buckets that have refilled completely
func (rl *RateLimiter) Cleanup() {
	full := time.Duration(float64(time.Minute) * float64(rl.config.Burst) / float64(rl.config.RequestsPerMinute))
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastUpdate) > full {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// StartCleanup starts a background goroutine to cleanup old buckets
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Handler limits requests per client IP
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow("ip:" + httputil.GetClientIP(r)) {
			if rl.metrics != nil {
				rl.metrics.RateLimitedTotal.WithLabelValues(r.URL.Path).Inc()
			}
			observability.FromContext(r.Context()).
				WithField("path", r.URL.Path).
				Warn("Rate limit exceeded")

			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(rl.retryAfter().Seconds())))
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.config.RequestsPerMinute))
			httputil.WriteTooManyRequests(w, "Too many requests. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
