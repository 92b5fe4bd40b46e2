package authcore

import (
	"context"
	"fmt"
)

// ChangePassword re-verifies the current password, installs the new hash,
// and revokes every refresh token the subject holds. Sessions on other
// devices die with their next refresh.
func (e *Engine) ChangePassword(ctx context.Context, subjectID, current, next string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	acct, err := e.accounts.FindByID(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if acct == nil || !acct.Active {
		e.passwords.DummyVerify(current)
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFail, false, subjectID, ErrAccountNotFound, nil)
		return ErrAccountNotFound
	}

	ok, err := e.passwords.Verify(current, acct.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFail, false, subjectID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "current_password_mismatch"}
		})
		return ErrInvalidCredentials
	}

	if len(next) < e.config.Password.MinLength {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFail, false, subjectID, ErrInvalidInput, func() map[string]string {
			return map[string]string{"reason": "policy"}
		})
		return fmt.Errorf("%w: password shorter than %d characters", ErrInvalidInput, e.config.Password.MinLength)
	}

	if same, err := e.passwords.Verify(next, acct.PasswordHash); err == nil && same {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFail, false, subjectID, ErrSamePassword, nil)
		return ErrSamePassword
	}

	hash, err := e.passwords.Hash(next)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.accounts.UpdatePasswordHash(ctx, subjectID, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	revoked, err := e.refreshStore.RevokeAllForSubject(ctx, subjectID)
	if err != nil {
		// The hash is already updated; the caller must retry until the
		// lineage is gone or old sessions survive the change.
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChanged, true, subjectID, nil, func() map[string]string {
		return map[string]string{"sessions_revoked": fmt.Sprintf("%d", revoked)}
	})
	return nil
}
