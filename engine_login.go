package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Login verifies credentials and, on success, issues an access+refresh
// pair. The check order is fixed: address limiter, account lookup, lockout
// probe, password verification. Unknown and inactive accounts burn the
// same hashing cost as a wrong password so the failure modes are
// timing-equivalent, and all three surface as ErrInvalidCredentials.
//
// The failure that engages a lockout still reports ErrInvalidCredentials;
// ErrAccountLocked appears from the next attempt on.
func (e *Engine) Login(ctx context.Context, email, passwd string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))

	if err := e.checkAddressLimit(ctx); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", ErrRateLimited, func() map[string]string {
				return map[string]string{"email": email}
			})
		}
		return TokenPair{}, err
	}

	acct, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if acct == nil || !acct.Active {
		e.passwords.DummyVerify(passwd)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
			reason := "account_unknown"
			if acct != nil {
				reason = "account_inactive"
			}
			return map[string]string{"email": email, "reason": reason}
		})
		return TokenPair{}, ErrInvalidCredentials
	}

	lock, err := e.lockout.Check(ctx, acct.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if lock.Locked {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, acct.ID, ErrAccountLocked, func() map[string]string {
			return map[string]string{"retry_after": lock.RetryAfter.String()}
		})
		return TokenPair{}, ErrAccountLocked
	}

	ok, err := e.passwords.Verify(passwd, acct.PasswordHash)
	if err != nil || !ok {
		if _, recErr := e.lockout.RecordFailure(ctx, acct.ID); recErr != nil {
			return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, recErr)
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, acct.ID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"email": email, "reason": "password_mismatch"}
		})
		return TokenPair{}, ErrInvalidCredentials
	}

	if err := e.lockout.RecordSuccess(ctx, acct.ID); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	pair, err := e.mintPair(ctx, acct.ID)
	if err != nil {
		return TokenPair{}, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, acct.ID, nil, nil)
	return pair, nil
}
