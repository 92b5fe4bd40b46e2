package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Register creates a new account. The email must look like an address, the
// password must meet the configured minimum length, and the display name
// must be non-empty. Registration never logs the account in.
func (e *Engine) Register(ctx context.Context, email, passwd, displayName string) (*AccountRecord, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	displayName = strings.TrimSpace(displayName)

	if err := validateRegistration(email, passwd, displayName, e.config.Password.MinLength); err != nil {
		e.emitAudit(ctx, auditEventAccountCreateFail, false, "", err, func() map[string]string {
			return map[string]string{"email": email, "reason": "validation"}
		})
		return nil, err
	}

	existing, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if existing != nil {
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, auditEventAccountDuplicate, false, "", ErrAccountExists, func() map[string]string {
			return map[string]string{"email": email}
		})
		return nil, ErrAccountExists
	}

	hash, err := e.passwords.Hash(passwd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec := AccountRecord{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    e.now(),
	}
	if err := e.accounts.Create(ctx, rec); err != nil {
		// The existence check above races with concurrent registrations;
		// the store's uniqueness constraint is authoritative.
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventAccountDuplicate, false, "", ErrAccountExists, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventAccountCreated, true, rec.ID, nil, func() map[string]string {
		return map[string]string{"email": email}
	})

	out := rec
	return &out, nil
}

// DeleteAccount removes the subject's refresh tokens and then the account
// itself. Tokens go first so a partial failure can never leave live
// credentials for a deleted account.
func (e *Engine) DeleteAccount(ctx context.Context, subjectID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	acct, err := e.accounts.FindByID(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if acct == nil {
		return ErrAccountNotFound
	}

	if err := e.refreshStore.DeleteAllForSubject(ctx, subjectID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.accounts.Delete(ctx, subjectID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, subjectID, nil, nil)
	return nil
}

func validateRegistration(email, passwd, displayName string, minPasswordLen int) error {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || !strings.Contains(email[at+1:], ".") {
		return fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	if len(passwd) < minPasswordLen {
		return fmt.Errorf("%w: password shorter than %d characters", ErrInvalidInput, minPasswordLen)
	}
	if displayName == "" {
		return fmt.Errorf("%w: empty display name", ErrInvalidInput)
	}
	return nil
}
