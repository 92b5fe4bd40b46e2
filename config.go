package authcore

import (
	"errors"
	"fmt"
	"time"
)

// TokenConfig holds the codec parameters. The secret is shared by every
// instance verifying tokens and is immutable after Build.
type TokenConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string

	// Leeway is tolerated clock skew on expiry checks only. Capped at one
	// minute; it never loosens the signature check.
	Leeway time.Duration
}

// PasswordConfig holds the argon2id cost parameters and the registration
// password policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MinLength applies to Register and ChangePassword input.
	MinLength int
}

// LockoutConfig controls the per-account failure counter.
type LockoutConfig struct {
	// Threshold is the number of failures within Window that engages a
	// lockout.
	Threshold int
	Window    time.Duration
	// Duration is how long an engaged lockout lasts.
	Duration time.Duration
}

// RateLimitConfig controls the per-source-address attempt budget. It is
// independent of the account lockout and runs before any account lookup.
type RateLimitConfig struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events instead of blocking when the buffer is
	// full. Dropped events are counted and reported via AuditDropped.
	DropIfFull bool
}

// MetricsConfig controls the in-process atomic counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Config is the full engine configuration tree. Zero values are filled in
// from defaultConfig by the Builder; Validate runs at Build time.
type Config struct {
	Token     TokenConfig
	Password  PasswordConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig

	// Now supplies the current time for token issuance and expiry math.
	// Defaults to time.Now. Redis-side TTLs are unaffected.
	Now func() time.Time
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "authcore",
			Leeway:     30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Window:    15 * time.Minute,
			Duration:  15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			MaxAttempts: 20,
			Window:      time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for values the engine cannot operate
// with. It is called by Build; a failed validation is a startup error,
// never a runtime panic.
func (c Config) Validate() error {
	if len(c.Token.Secret) < 32 {
		return errors.New("Token.Secret must be at least 32 bytes")
	}
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token.AccessTTL must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("Token.RefreshTTL must exceed Token.AccessTTL")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > time.Minute {
		return errors.New("Token.Leeway must be between 0 and one minute")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password.MinLength must be at least 8")
	}
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout.Threshold must be positive")
	}
	if c.Lockout.Window <= 0 || c.Lockout.Duration <= 0 {
		return errors.New("Lockout.Window and Lockout.Duration must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxAttempts <= 0 {
			return fmt.Errorf("RateLimit.MaxAttempts must be positive when enabled")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("RateLimit.Window must be positive when enabled")
		}
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
