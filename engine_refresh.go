package authcore

import (
	"context"
	"fmt"

	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/token"
)

// Refresh exchanges a live refresh token for a new pair. Each token is
// single-use: the presented token is atomically revoked before the new
// pair is minted, so of N concurrent calls with the same token exactly one
// succeeds.
//
// Presenting an already-revoked token is treated as theft evidence: every
// refresh token in the subject's lineage is revoked and the caller gets
// the same ErrTokenInvalid as for any other bad token.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	claims, err := e.tokens.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		e.metricInc(MetricRefreshInvalid)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": "codec_rejected"}
		})
		return TokenPair{}, ErrTokenInvalid
	}
	subjectID := claims.SubjectID()

	// The active flag is re-checked on every rotation so deactivating an
	// account cuts off its sessions before the refresh TTL runs out.
	acct, err := e.accounts.FindByID(ctx, subjectID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if acct == nil || !acct.Active {
		e.metricInc(MetricRefreshInvalid)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, subjectID, ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": "subject_inactive"}
		})
		return TokenPair{}, ErrTokenInvalid
	}

	hash := refresh.HashToken(refreshToken)
	rec, err := e.refreshStore.FindByHash(ctx, hash)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if rec == nil {
		e.metricInc(MetricRefreshInvalid)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, subjectID, ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": "unknown_or_expired"}
		})
		return TokenPair{}, ErrTokenInvalid
	}

	if rec.Revoked {
		return TokenPair{}, e.escalateReuse(ctx, subjectID, rec.ID, "revoked_token_presented")
	}

	won, err := e.refreshStore.Revoke(ctx, hash)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !won {
		// A concurrent call revoked it first; this caller replayed.
		return TokenPair{}, e.escalateReuse(ctx, subjectID, rec.ID, "lost_rotation_race")
	}

	pair, err := e.mintPair(ctx, subjectID)
	if err != nil {
		return TokenPair{}, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, subjectID, nil, func() map[string]string {
		return map[string]string{"rotated_record": rec.ID}
	})
	return pair, nil
}

// escalateReuse revokes the subject's entire refresh lineage and emits the
// elevated reuse event. The returned error is always ErrTokenInvalid
// unless the lineage revocation itself fails.
func (e *Engine) escalateReuse(ctx context.Context, subjectID, recordID, reason string) error {
	revoked, err := e.refreshStore.RevokeAllForSubject(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricRefreshReuseDetected)
	e.emitAudit(ctx, auditEventRefreshReuse, false, subjectID, ErrTokenInvalid, func() map[string]string {
		return map[string]string{
			"record":          recordID,
			"reason":          reason,
			"lineage_revoked": fmt.Sprintf("%d", revoked),
		}
	})
	return ErrTokenInvalid
}

// Logout revokes the presented refresh token. It is idempotent and
// deliberately quiet: unknown, expired, or already-revoked tokens return
// nil so a logout button never shows the user an error.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	won, err := e.refreshStore.Revoke(ctx, refresh.HashToken(refreshToken))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if won {
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogout, true, "", nil, nil)
	}
	return nil
}
