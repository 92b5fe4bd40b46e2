package authcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// fakeClock is a mutable time source shared by the engine and the tests.
// Redis-side TTLs are advanced separately with miniredis.FastForward.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memAccountStore is an in-memory AccountStore for engine tests.
type memAccountStore struct {
	mu       sync.Mutex
	byID     map[string]AccountRecord
	byEmail  map[string]string
	failNext error
}

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{
		byID:    map[string]AccountRecord{},
		byEmail: map[string]string{},
	}
}

func (s *memAccountStore) takeFault() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *memAccountStore) FindByEmail(_ context.Context, email string) (*AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault(); err != nil {
		return nil, err
	}

	id, ok := s.byEmail[email]
	if !ok {
		return nil, nil
	}
	rec := s.byID[id]
	return &rec, nil
}

func (s *memAccountStore) FindByID(_ context.Context, id string) (*AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault(); err != nil {
		return nil, err
	}

	rec, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memAccountStore) Create(_ context.Context, rec AccountRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault(); err != nil {
		return err
	}

	if _, exists := s.byEmail[rec.Email]; exists {
		return fmt.Errorf("%w: %s", ErrAccountExists, rec.Email)
	}
	s.byID[rec.ID] = rec
	s.byEmail[rec.Email] = rec.ID
	return nil
}

func (s *memAccountStore) UpdatePasswordHash(_ context.Context, id string, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault(); err != nil {
		return err
	}

	rec, ok := s.byID[id]
	if !ok {
		return errors.New("no such account")
	}
	rec.PasswordHash = hash
	s.byID[id] = rec
	return nil
}

func (s *memAccountStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault(); err != nil {
		return err
	}

	rec, ok := s.byID[id]
	if !ok {
		return errors.New("no such account")
	}
	delete(s.byEmail, rec.Email)
	delete(s.byID, id)
	return nil
}

func (s *memAccountStore) setActive(t *testing.T, email string, active bool) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		t.Fatalf("no account for %s", email)
	}
	rec := s.byID[id]
	rec.Active = active
	s.byID[id] = rec
}

// recordingSink collects audit events synchronously.
type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) byType(eventType string) []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []AuditEvent
	for _, ev := range s.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type engineFixture struct {
	engine   *Engine
	redis    *miniredis.Miniredis
	clock    *fakeClock
	accounts *memAccountStore
	sink     *recordingSink
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Token.AccessTTL = 15 * time.Minute
	cfg.Token.RefreshTTL = 7 * 24 * time.Hour
	cfg.Token.Leeway = 0
	// Minimum argon2 cost keeps the suite fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	cfg.RateLimit.Enabled = false
	return cfg
}

func newEngineFixture(t *testing.T, cfg Config) *engineFixture {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := newFakeClock()
	accounts := newMemAccountStore()
	sink := &recordingSink{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithAuditSink(sink).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &engineFixture{
		engine:   engine,
		redis:    mr,
		clock:    clock,
		accounts: accounts,
		sink:     sink,
	}
}

func (f *engineFixture) register(t *testing.T, email, passwd string) *AccountRecord {
	t.Helper()
	rec, err := f.engine.Register(context.Background(), email, passwd, "Test Account")
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", email, err)
	}
	return rec
}

func (f *engineFixture) login(t *testing.T, email, passwd string) TokenPair {
	t.Helper()
	pair, err := f.engine.Login(context.Background(), email, passwd)
	if err != nil {
		t.Fatalf("Login(%s) failed: %v", email, err)
	}
	return pair
}

func TestBuildRejectsMissingDependencies(t *testing.T) {
	cfg := testConfig()

	if _, err := New().WithConfig(cfg).WithAccountStore(newMemAccountStore()).Build(); err == nil {
		t.Fatal("Build without redis must fail")
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New().WithConfig(cfg).WithRedis(rdb).Build(); err == nil {
		t.Fatal("Build without account store must fail")
	}

	bad := cfg
	bad.Token.Secret = []byte("short")
	if _, err := New().WithConfig(bad).WithRedis(rdb).WithAccountStore(newMemAccountStore()).Build(); err == nil {
		t.Fatal("Build with short secret must fail")
	}

	b := New().WithConfig(cfg).WithRedis(rdb).WithAccountStore(newMemAccountStore())
	if _, err := b.Build(); err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("second Build on the same builder must fail")
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	ctx := context.Background()

	cases := []struct {
		name        string
		email       string
		password    string
		displayName string
	}{
		{"no at sign", "alice.example.com", "correct horse battery", "Alice"},
		{"no domain dot", "alice@localhost", "correct horse battery", "Alice"},
		{"empty email", "", "correct horse battery", "Alice"},
		{"short password", "alice@example.com", "short", "Alice"},
		{"empty display name", "alice@example.com", "correct horse battery", "  "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Register(ctx, tc.email, tc.password, tc.displayName)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("Register = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	ctx := context.Background()

	f.register(t, "alice@example.com", "correct horse battery")

	_, err := f.engine.Register(ctx, "alice@example.com", "another password!", "Alice Again")
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("duplicate Register = %v, want ErrAccountExists", err)
	}

	// Email matching is case-insensitive.
	_, err = f.engine.Register(ctx, "ALICE@example.com", "another password!", "Alice Again")
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("case-variant Register = %v, want ErrAccountExists", err)
	}
}

func TestLoginIssuesUsablePair(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	ctx := context.Background()

	created := f.register(t, "alice@example.com", "correct horse battery")
	pair := f.login(t, "alice@example.com", "correct horse battery")

	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("login must return both tokens")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}

	subject, err := f.engine.Validate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if subject != created.ID {
		t.Fatalf("Validate subject = %q, want %q", subject, created.ID)
	}
}

func TestLoginFailureModesAreUniform(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	ctx := context.Background()

	f.register(t, "alice@example.com", "correct horse battery")
	f.accounts.setActive(t, "alice@example.com", false)

	// Unknown account, wrong password, and inactive account all read the
	// same from outside.
	if _, err := f.engine.Login(ctx, "nobody@example.com", "whatever passwd"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown account = %v, want ErrInvalidCredentials", err)
	}
	if _, err := f.engine.Login(ctx, "alice@example.com", "correct horse battery"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("inactive account = %v, want ErrInvalidCredentials", err)
	}

	f.accounts.setActive(t, "alice@example.com", true)
	if _, err := f.engine.Login(ctx, "alice@example.com", "wrong password!!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password = %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateRejectsWrongKindAndExpiry(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	ctx := context.Background()

	f.register(t, "alice@example.com", "correct horse battery")
	pair := f.login(t, "alice@example.com", "correct horse battery")

	if _, err := f.engine.Validate(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token accepted as access token: %v", err)
	}
	if _, err := f.engine.Validate(ctx, "not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("garbage token = %v, want ErrTokenInvalid", err)
	}

	f.clock.Advance(16 * time.Minute)
	if _, err := f.engine.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expired access token = %v, want ErrTokenInvalid", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	ctx := context.Background()

	created := f.register(t, "alice@example.com", "correct horse battery")
	pair := f.login(t, "alice@example.com", "correct horse battery")

	if err := f.engine.DeleteAccount(ctx, created.ID); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}

	if _, err := f.engine.Login(ctx, "alice@example.com", "correct horse battery"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("login after deletion = %v, want ErrInvalidCredentials", err)
	}
	if _, err := f.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh after deletion = %v, want ErrTokenInvalid", err)
	}
	if err := f.engine.DeleteAccount(ctx, created.ID); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("second DeleteAccount = %v, want ErrAccountNotFound", err)
	}
}

func TestStoreFaultsSurfaceAsUnavailable(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	ctx := context.Background()

	f.accounts.failNext = errors.New("connection refused")
	if _, err := f.engine.Login(ctx, "alice@example.com", "correct horse battery"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("account store fault = %v, want ErrStoreUnavailable", err)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	ctx := context.Background()

	f.register(t, "alice@example.com", "correct horse battery")
	f.login(t, "alice@example.com", "correct horse battery")
	_, _ = f.engine.Login(ctx, "alice@example.com", "wrong password!!")

	snap := f.engine.MetricsSnapshot()
	if snap.Counters[MetricRegisterSuccess] != 1 {
		t.Fatalf("register count = %d, want 1", snap.Counters[MetricRegisterSuccess])
	}
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("login success count = %d, want 1", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("login failure count = %d, want 1", snap.Counters[MetricLoginFailure])
	}
}

func TestAuditEventsDelivered(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	f.register(t, "alice@example.com", "correct horse battery")
	_, _ = f.engine.Login(ctx, "alice@example.com", "wrong password!!")
	pair, err := f.engine.Login(ctx, "alice@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := f.engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	f.engine.Close()

	for _, eventType := range []string{
		auditEventAccountCreated,
		auditEventLoginFailure,
		auditEventLoginSuccess,
		auditEventLogout,
	} {
		if len(f.sink.byType(eventType)) == 0 {
			t.Errorf("no %s event delivered", eventType)
		}
	}

	failures := f.sink.byType(auditEventLoginFailure)
	if failures[0].IP != "203.0.113.7" {
		t.Fatalf("event IP = %q, want caller address", failures[0].IP)
	}
	if failures[0].Error != string(auditErrInvalidCredentials) {
		t.Fatalf("event error code = %q, want %q", failures[0].Error, auditErrInvalidCredentials)
	}
}
