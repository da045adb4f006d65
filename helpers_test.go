package phishgate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	testIP        = "203.0.113.9"
	testOtherIP   = "198.51.100.4"
	testPassword  = "orchard-vivid-tram-51"
	testWaitLimit = 3 * time.Second
)

// captureNotifier records every delivery on buffered channels so tests can
// read generated codes and passwords. Failures are injected per kind.
type captureNotifier struct {
	codes   chan string
	created chan string
	updated chan []string
	resets  chan string

	mu   sync.Mutex
	fail map[string]error
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{
		codes:   make(chan string, 8),
		created: make(chan string, 8),
		updated: make(chan []string, 8),
		resets:  make(chan string, 8),
		fail:    make(map[string]error),
	}
}

func (n *captureNotifier) failWith(kind string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail[kind] = err
}

func (n *captureNotifier) failure(kind string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fail[kind]
}

func (n *captureNotifier) SendTwoFactorCode(_ context.Context, _ *UserRecord, code string) error {
	if err := n.failure("two_factor_code"); err != nil {
		return err
	}
	n.codes <- code
	return nil
}

func (n *captureNotifier) SendAccountCreated(_ context.Context, _ *UserRecord, password string) error {
	if err := n.failure("account_created"); err != nil {
		return err
	}
	n.created <- password
	return nil
}

func (n *captureNotifier) SendAccountUpdated(_ context.Context, _ *UserRecord, changes []string) error {
	if err := n.failure("account_updated"); err != nil {
		return err
	}
	n.updated <- changes
	return nil
}

func (n *captureNotifier) SendAdminResetPassword(_ context.Context, _ *UserRecord, password string) error {
	if err := n.failure("admin_reset_password"); err != nil {
		return err
	}
	n.resets <- password
	return nil
}

type testEnv struct {
	engine   *Engine
	store    *MemoryCredentialStore
	notifier *captureNotifier
	sink     *ChannelSink
	redis    *miniredis.Miniredis
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Security.TokenKey = []byte("engine-test-key")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	notifier := newCaptureNotifier()
	sink := NewChannelSink(64)
	store := NewMemoryCredentialStore()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(store).
		WithNotifier(notifier).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		engine:   engine,
		store:    store,
		notifier: notifier,
		sink:     sink,
		redis:    mr,
	}
}

func (env *testEnv) seedUser(t *testing.T, email, tenantID string, role Role, twoFactor bool) *UserRecord {
	t.Helper()

	hash, err := env.engine.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash seed password: %v", err)
	}

	user := &UserRecord{
		UserID:           uuid.NewString(),
		TenantID:         tenantID,
		Email:            email,
		PasswordHash:     hash,
		TwoFactorEnabled: twoFactor,
		Role:             role,
	}
	if err := env.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (env *testEnv) login(t *testing.T, email, password string) *LoginResult {
	t.Helper()

	result, err := env.engine.Login(ipCtx(testIP), email, password)
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return result
}

func ipCtx(ip string) context.Context {
	return WithClientIP(context.Background(), ip)
}

func recvString(t *testing.T, ch <-chan string, what string) string {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(testWaitLimit):
		t.Fatalf("timed out waiting for %s", what)
		return ""
	}
}

func recvStrings(t *testing.T, ch <-chan []string, what string) []string {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(testWaitLimit):
		t.Fatalf("timed out waiting for %s", what)
		return nil
	}
}

// awaitAuditEvent consumes sink events until one matches the type or the
// deadline passes.
func awaitAuditEvent(t *testing.T, sink *ChannelSink, eventType string) AuditEvent {
	t.Helper()

	deadline := time.After(testWaitLimit)
	for {
		select {
		case event := <-sink.Events():
			if event.EventType == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for audit event %q", eventType)
			return AuditEvent{}
		}
	}
}
