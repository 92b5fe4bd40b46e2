package authcore

import "errors"

var (
	// ErrAccountExists is returned by Register when the email is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidCredentials covers unknown accounts, wrong passwords, and
	// inactive accounts. Callers must not distinguish between them.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while an account lockout is engaged.
	ErrAccountLocked = errors.New("account locked")
	// ErrRateLimited is returned when a source address exhausts its budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrTokenInvalid covers every token rejection: malformed, bad signature,
	// expired, wrong kind, unknown, revoked, or reused.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrSamePassword is returned when a password change supplies the
	// current password as the new one.
	ErrSamePassword = errors.New("new password must be different from current password")
	// ErrInvalidInput is returned for malformed registration input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAccountNotFound is returned by operations addressing a subject that
	// does not exist, such as ChangePassword or DeleteAccount.
	ErrAccountNotFound = errors.New("account not found")
	// ErrStoreUnavailable indicates a backend failure. Operations are never
	// retried internally; callers decide whether to retry.
	ErrStoreUnavailable = errors.New("backend unavailable")
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or incompletely built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// UserMessage collapses any engine error into a wire-safe message. The
// detailed taxonomy stays internal; the caller-facing string never reveals
// whether an account exists, which check failed, or why a token was
// rejected.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAccountExists):
		return "email already registered"
	case errors.Is(err, ErrInvalidInput):
		return "invalid registration input"
	case errors.Is(err, ErrSamePassword):
		return "new password must be different"
	case errors.Is(err, ErrAccountLocked), errors.Is(err, ErrRateLimited):
		return "too many attempts, try again later"
	case errors.Is(err, ErrStoreUnavailable):
		return "service temporarily unavailable"
	default:
		return "authentication failed"
	}
}
