package limiters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, cfg LockoutConfig) (*LockoutLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewLockoutLimiter(rdb, cfg), mr
}

func defaultConfig() LockoutConfig {
	return LockoutConfig{
		Threshold: 5,
		Window:    time.Hour,
		Duration:  15 * time.Minute,
	}
}

func TestThresholdEngagesLockout(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newLimiter(t, defaultConfig())

	for i := 1; i <= 4; i++ {
		dec, err := limiter.RecordFailure(ctx, "acct-1")
		if err != nil {
			t.Fatalf("RecordFailure %d error: %v", i, err)
		}
		if dec.Locked {
			t.Fatalf("failure %d must not engage a lockout", i)
		}
	}

	dec, err := limiter.RecordFailure(ctx, "acct-1")
	if err != nil {
		t.Fatalf("RecordFailure 5 error: %v", err)
	}
	if !dec.Locked {
		t.Fatal("fifth failure must engage the lockout")
	}
	if dec.RetryAfter != 15*time.Minute {
		t.Fatalf("RetryAfter = %v, want 15m", dec.RetryAfter)
	}

	check, err := limiter.Check(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if !check.Locked {
		t.Fatal("Check must report locked after threshold")
	}
	if check.RetryAfter <= 0 || check.RetryAfter > 15*time.Minute {
		t.Fatalf("RetryAfter = %v, want (0, 15m]", check.RetryAfter)
	}
}

func TestSuccessClearsState(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newLimiter(t, defaultConfig())

	for i := 0; i < 5; i++ {
		if _, err := limiter.RecordFailure(ctx, "acct-1"); err != nil {
			t.Fatalf("RecordFailure error: %v", err)
		}
	}

	if err := limiter.RecordSuccess(ctx, "acct-1"); err != nil {
		t.Fatalf("RecordSuccess error: %v", err)
	}

	dec, err := limiter.Check(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if dec.Locked {
		t.Fatal("success must clear an engaged lockout")
	}

	count, err := limiter.FailureCount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("FailureCount error: %v", err)
	}
	if count != 0 {
		t.Fatalf("FailureCount = %d, want 0", count)
	}
}

func TestLockoutExpires(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newLimiter(t, defaultConfig())

	for i := 0; i < 5; i++ {
		if _, err := limiter.RecordFailure(ctx, "acct-1"); err != nil {
			t.Fatalf("RecordFailure error: %v", err)
		}
	}

	mr.FastForward(16 * time.Minute)

	dec, err := limiter.Check(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if dec.Locked {
		t.Fatal("lockout must expire after its duration")
	}
}

func TestWindowExpiryResetsCounter(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newLimiter(t, LockoutConfig{
		Threshold: 5,
		Window:    time.Minute,
		Duration:  15 * time.Minute,
	})

	for i := 0; i < 4; i++ {
		if _, err := limiter.RecordFailure(ctx, "acct-1"); err != nil {
			t.Fatalf("RecordFailure error: %v", err)
		}
	}

	mr.FastForward(2 * time.Minute)

	// Failures older than the window no longer count toward the threshold.
	dec, err := limiter.RecordFailure(ctx, "acct-1")
	if err != nil {
		t.Fatalf("RecordFailure error: %v", err)
	}
	if dec.Locked {
		t.Fatal("stale failures must not count toward the threshold")
	}

	count, err := limiter.FailureCount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("FailureCount error: %v", err)
	}
	if count != 1 {
		t.Fatalf("FailureCount = %d, want 1", count)
	}
}

func TestConcurrentFailuresNeverUndercount(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newLimiter(t, LockoutConfig{
		Threshold: 16,
		Window:    time.Hour,
		Duration:  15 * time.Minute,
	})

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			if _, err := limiter.RecordFailure(ctx, "acct-1"); err != nil {
				t.Errorf("RecordFailure error: %v", err)
			}
		}()
	}

	close(start)
	wg.Wait()

	count, err := limiter.FailureCount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("FailureCount error: %v", err)
	}
	if count != workers {
		t.Fatalf("FailureCount = %d, want %d", count, workers)
	}

	dec, err := limiter.Check(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if !dec.Locked {
		t.Fatal("threshold reached under concurrency must engage the lockout")
	}
}
