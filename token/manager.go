package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind tags a token as an access or refresh credential.
type Kind string

const (
	// KindAccess marks short-lived tokens that authorize API calls directly.
	KindAccess Kind = "access"
	// KindRefresh marks long-lived tokens exchanged for a new pair.
	KindRefresh Kind = "refresh"
)

const maxLeeway = time.Minute

var (
	// ErrMalformed is returned when a token cannot be parsed or decoded.
	ErrMalformed = errors.New("malformed token")
	// ErrSignature is returned when the signature check fails.
	ErrSignature = errors.New("bad token signature")
	// ErrExpired is returned when the token is past its expiry (after leeway).
	ErrExpired = errors.New("token expired")
	// ErrWrongKind is returned when the kind tag does not match the expected kind.
	ErrWrongKind = errors.New("wrong token kind")
)

// Config holds the immutable codec parameters. The secret is loaded once at
// startup; rotating it invalidates all outstanding tokens and is an
// operational action, not a runtime code path.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Leeway     time.Duration // expiry checks only, capped at one minute

	// Now supplies the current time. Defaults to time.Now.
	Now func() time.Time
}

// Claims is the decoded claim set of a verified token.
type Claims struct {
	Kind Kind `json:"knd"`
	jwt.RegisteredClaims
}

// SubjectID returns the account ID the token asserts.
func (c *Claims) SubjectID() string {
	return c.RegisteredClaims.Subject
}

// Manager signs and verifies bearer tokens. It is immutable after
// construction and safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: signing secret is required")
	}
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token: signing secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: invalid TTL configuration")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("token: access TTL must be shorter than refresh TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("token: invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// TTL returns the configured lifetime for the given kind.
func (m *Manager) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return m.config.RefreshTTL
	}
	return m.config.AccessTTL
}

// Issue signs a new token of the given kind for subjectID. The embedded jti
// guarantees two tokens issued in the same instant are never byte-identical.
func (m *Manager) Issue(subjectID string, kind Kind) (string, error) {
	if subjectID == "" {
		return "", errors.New("token: empty subject")
	}
	switch kind {
	case KindAccess, KindRefresh:
	default:
		return "", fmt.Errorf("token: unknown kind %q", kind)
	}

	now := m.config.Now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.TTL(kind))),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// Verify parses tok, checks its signature against the shared secret, checks
// expiry (with leeway), and enforces the expected kind. Failures map to
// exactly one of [ErrMalformed], [ErrSignature], [ErrExpired], [ErrWrongKind].
func (m *Manager) Verify(tok string, expected Kind) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tok, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if claims.Subject == "" {
		return nil, ErrMalformed
	}
	if claims.Kind != expected {
		return nil, ErrWrongKind
	}

	return claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformed
	}
}
