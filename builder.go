package authcore

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/token"
)

// Builder assembles an Engine. Configure it once, call Build, discard it; a
// Builder is single-use and not safe for concurrent configuration.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts     AccountStore
	refreshStore refresh.Store
	auditSink    AuditSink

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration tree. The secret slice is
// copied; the caller may zero its own copy afterwards.
func (b *Builder) WithConfig(cfg Config) *Builder {
	now := b.config.Now
	b.config = cloneConfig(cfg)
	if b.config.Now == nil {
		b.config.Now = now
	}
	return b
}

// WithRedis sets the client backing the refresh store, lockout counters,
// and address limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the caller's account database adapter. Required.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithRefreshStore overrides the default Redis-backed refresh token store.
func (b *Builder) WithRefreshStore(store refresh.Store) *Builder {
	b.refreshStore = store
	return b
}

// WithAuditSink sets the destination for audit events. Without a sink the
// dispatcher discards events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source for token issuance and expiry math.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.config.Now = now
	return b
}

// Build validates the configuration, wires every component, and returns a
// ready Engine. The returned Engine is immutable and safe for concurrent
// use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		Secret:     cloneBytes(cfg.Token.Secret),
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
		Issuer:     cfg.Token.Issuer,
		Leeway:     cfg.Token.Leeway,
		Now:        cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	passwords, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	store := b.refreshStore
	if store == nil {
		store = refresh.NewRedisStore(b.redis, cfg.Now)
	}

	engine := &Engine{
		config:       cfg,
		accounts:     b.accounts,
		refreshStore: store,
		tokens:       tokens,
		passwords:    passwords,
		lockout: limiters.NewLockoutLimiter(b.redis, limiters.LockoutConfig{
			Threshold: cfg.Lockout.Threshold,
			Window:    cfg.Lockout.Window,
			Duration:  cfg.Lockout.Duration,
		}),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	if cfg.RateLimit.Enabled {
		engine.ipLimiter = rate.New(b.redis, rate.Config{
			MaxAttempts: cfg.RateLimit.MaxAttempts,
			Window:      cfg.RateLimit.Window,
		})
	}

	b.built = true

	return engine, nil
}
