// Package rate provides the per-source-address request limiter that slows
// high-volume authentication attempts regardless of which account they
// target. It is independent of the per-account lockout tracker in
// internal/limiters; the Engine runs both checks and either can reject.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit, key prefix
// "arl:". Boundary bursts up to twice the nominal rate are accepted.
package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// Limiter enforces a fixed-window attempt budget per source address using
// Redis counters shared across service instances.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(client redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: client, config: cfg}
}

func addressKey(addr string) string {
	return "arl:" + addr
}

// Allow records one attempt from addr and returns [ErrRateLimited] once the
// window budget is exhausted. Empty addresses are not counted: the limiter is
// advisory for callers that cannot attribute a source address.
func (l *Limiter) Allow(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	count, err := l.redis.Incr(ctx, addressKey(addr)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: TTL set only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, addressKey(addr), l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}

	return nil
}

// Reset clears the counter for addr.
func (l *Limiter) Reset(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	if err := l.redis.Del(ctx, addressKey(addr)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
