package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrDuplicateHash is returned by Save when a record with the same token
	// hash already exists. Under correct random token generation this must not
	// occur; callers treat it as an alarm condition, never a retry.
	ErrDuplicateHash = errors.New("refresh token hash already exists")

	// ErrUnavailable indicates the backing store is unreachable.
	ErrUnavailable = errors.New("refresh store unavailable")
)

// Record is the persisted form of an issued refresh token. TokenHash is the
// hex SHA-256 of the bearer value and serves as the record's storage key; ID
// exists for audit correlation only.
type Record struct {
	ID        string
	SubjectID string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Store is the contract any durable backing must satisfy. All methods are
// safe for concurrent use from multiple goroutines and, for distributed
// implementations, multiple process instances.
type Store interface {
	// Save persists a new record. Fails with ErrDuplicateHash if the token
	// hash already exists.
	Save(ctx context.Context, rec Record) error

	// FindByHash returns the record for hash, or (nil, nil) when absent or
	// past expiry.
	FindByHash(ctx context.Context, hash string) (*Record, error)

	// Revoke atomically sets the revoked flag on the record for hash and
	// reports whether this call performed the revocation. Revoking an absent
	// or already-revoked record returns (false, nil), never an error.
	Revoke(ctx context.Context, hash string) (bool, error)

	// RevokeAllForSubject revokes every live record belonging to subjectID
	// and returns how many this call revoked.
	RevokeAllForSubject(ctx context.Context, subjectID string) (int, error)

	// DeleteAllForSubject removes every record belonging to subjectID.
	// Used on account deletion; hard delete is the deployment choice here
	// because the subject itself ceases to exist.
	DeleteAllForSubject(ctx context.Context, subjectID string) error
}

// HashToken computes the storage hash of a bearer refresh token.
func HashToken(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}
