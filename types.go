package authcore

import (
	"context"
	"time"
)

// AccountRecord is the account representation exchanged with an
// AccountStore. The engine reads PasswordHash and Active; it never sees a
// plaintext password after hashing.
type AccountRecord struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// AccountStore is the interface callers implement to connect the engine to
// their account database. Lookups return (nil, nil) for absent accounts so
// the engine can equalize timing before failing; only genuine backend
// faults are errors.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*AccountRecord, error)
	FindByID(ctx context.Context, id string) (*AccountRecord, error)

	// Create persists a new account. Implementations must enforce email
	// uniqueness and return an error wrapping ErrAccountExists on
	// collision, since the engine's own existence check races with
	// concurrent registrations.
	Create(ctx context.Context, rec AccountRecord) error

	UpdatePasswordHash(ctx context.Context, id string, hash string) error
	Delete(ctx context.Context, id string) error
}

// TokenPair is the result of a successful Login or Refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
