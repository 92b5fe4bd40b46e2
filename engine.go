package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/token"

	"github.com/google/uuid"
)

// Engine is the authentication orchestrator. All fields are set by Build
// and never mutated afterwards; every method is safe for concurrent use.
type Engine struct {
	config       Config
	accounts     AccountStore
	refreshStore refresh.Store
	tokens       *token.Manager
	passwords    *password.Hasher
	lockout      *limiters.LockoutLimiter
	ipLimiter    *rate.Limiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
}

// Close drains the audit dispatcher. Call it on shutdown; pending events
// are delivered before it returns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e == nil || e.config.Now == nil {
		return time.Now()
	}
	return e.config.Now()
}

// Validate verifies an access token and returns its subject ID. Every
// rejection collapses to ErrTokenInvalid; the caller learns nothing about
// which check failed.
func (e *Engine) Validate(ctx context.Context, accessToken string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	start := e.now()

	claims, err := e.tokens.Verify(accessToken, token.KindAccess)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return "", ErrTokenInvalid
	}

	e.metricInc(MetricValidateSuccess)
	e.metrics.Observe(MetricValidateLatency, e.now().Sub(start))
	return claims.SubjectID(), nil
}

// mintPair issues a fresh access+refresh pair for subjectID and persists
// the refresh token's hash. The plaintext refresh token exists only in the
// returned pair.
func (e *Engine) mintPair(ctx context.Context, subjectID string) (TokenPair, error) {
	access, err := e.tokens.Issue(subjectID, token.KindAccess)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	refreshTok, err := e.tokens.Issue(subjectID, token.KindRefresh)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := e.now()
	rec := refresh.Record{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		TokenHash: refresh.HashToken(refreshTok),
		ExpiresAt: now.Add(e.config.Token.RefreshTTL),
		CreatedAt: now,
	}
	if err := e.refreshStore.Save(ctx, rec); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refreshTok}, nil
}

// checkAddressLimit enforces the per-source-address budget. A context
// without a client IP skips the check.
func (e *Engine) checkAddressLimit(ctx context.Context) error {
	if e.ipLimiter == nil {
		return nil
	}

	err := e.ipLimiter.Allow(ctx, clientIPFromContext(ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
