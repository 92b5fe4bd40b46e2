// Package limiters holds the account-keyed failure counter and timed lockout
// tracker. Counting is externalized to Redis so multiple service instances
// agree on the same state.
//
// # Window semantics
//
// Failure counting is fixed-window: the counter key gets its TTL on the first
// failure and crossing the threshold writes a separate lockout key with its
// own TTL. Fixed windows admit boundary bursts up to twice the nominal rate;
// that is an accepted tradeoff, not a bug.
//
// Key prefixes:
//   - alf: failure counter per account
//   - alk: active lockout per account
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockoutUnavailable indicates the lockout backend is unreachable.
var ErrLockoutUnavailable = errors.New("lockout backend unavailable")

// LockoutConfig holds threshold and window tuning for the lockout tracker.
type LockoutConfig struct {
	Threshold int           // failures within Window that trigger a lockout
	Window    time.Duration // counting window for failures
	Duration  time.Duration // how long an engaged lockout lasts
}

// Decision is the outcome of a lockout check or failure recording.
type Decision struct {
	Locked     bool
	RetryAfter time.Duration
}

// LockoutLimiter tracks failed authentication attempts per account and
// promotes repeated failures to a timed lockout. All mutations are atomic
// Redis operations; there is no client-side read-modify-write.
type LockoutLimiter struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

// NewLockoutLimiter creates a [LockoutLimiter] backed by the given client.
func NewLockoutLimiter(client redis.UniversalClient, cfg LockoutConfig) *LockoutLimiter {
	return &LockoutLimiter{redis: client, config: cfg}
}

func (l *LockoutLimiter) counterKey(accountID string) string {
	return "alf:" + accountID
}

func (l *LockoutLimiter) lockKey(accountID string) string {
	return "alk:" + accountID
}

// RecordFailure atomically increments the failure counter for accountID and,
// when the threshold is crossed, engages a lockout for the configured
// duration. The returned Decision reflects the state after this failure.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, accountID string) (Decision, error) {
	count, err := l.redis.Incr(ctx, l.counterKey(accountID)).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	// Fixed-window semantics: TTL set only for the first failure in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, l.counterKey(accountID), l.config.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
	}

	if count >= int64(l.config.Threshold) {
		if err := l.redis.Set(ctx, l.lockKey(accountID), "1", l.config.Duration).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
		return Decision{Locked: true, RetryAfter: l.config.Duration}, nil
	}

	return Decision{}, nil
}

// RecordSuccess unconditionally clears the failure counter and any active
// lockout for accountID.
func (l *LockoutLimiter) RecordSuccess(ctx context.Context, accountID string) error {
	if err := l.redis.Del(ctx, l.counterKey(accountID), l.lockKey(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// Check is the read-only lockout probe run before any password verification,
// so a locked account never reaches the hasher.
func (l *LockoutLimiter) Check(ctx context.Context, accountID string) (Decision, error) {
	ttl, err := l.redis.TTL(ctx, l.lockKey(accountID)).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	switch {
	case ttl == -2: // key absent
		return Decision{}, nil
	case ttl == -1: // key present without expiry; treat as a full lockout
		return Decision{Locked: true, RetryAfter: l.config.Duration}, nil
	default:
		return Decision{Locked: true, RetryAfter: ttl}, nil
	}
}

// FailureCount returns the current counter value for accountID. Missing keys
// return zero and do not reveal account existence.
func (l *LockoutLimiter) FailureCount(ctx context.Context, accountID string) (int, error) {
	count, err := l.redis.Get(ctx, l.counterKey(accountID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(count), nil
}
