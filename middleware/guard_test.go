package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	phishgate "github.com/tmorgan-sec/phishgate"
	"github.com/tmorgan-sec/phishgate/password"
)

const (
	testIP       = "10.1.2.3"
	testPassword = "relay-the-word-38"
)

func newTestEngine(t *testing.T) (*phishgate.Engine, *phishgate.MemoryCredentialStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := phishgate.DefaultConfig()
	cfg.Security.TokenKey = []byte("guard-test-key")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	store := phishgate.NewMemoryCredentialStore()

	engine, err := phishgate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	return engine, store
}

func seedUser(t *testing.T, store *phishgate.MemoryCredentialStore, role phishgate.Role, tenantID string) *phishgate.UserRecord {
	t.Helper()

	hasher, err := password.NewHasher(password.Params{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	user := &phishgate.UserRecord{
		UserID:       "user-" + tenantID + "-" + role.String(),
		TenantID:     tenantID,
		Email:        role.String() + "@" + tenantID + ".example.com",
		PasswordHash: hash,
		Role:         role,
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func loginToken(t *testing.T, engine *phishgate.Engine, email string) string {
	t.Helper()

	ctx := phishgate.WithClientIP(context.Background(), testIP)
	result, err := engine.Login(ctx, email, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.TwoFactorPending {
		t.Fatalf("unexpected pending second factor")
	}
	return result.Token
}

func echoIdentity(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := AuthResultFromContext(r.Context())
		if result == nil {
			t.Fatalf("no auth result on request context")
		}
		_, _ = w.Write([]byte(result.UserID))
	})
}

func TestGuardAllowsValidCookieSession(t *testing.T) {
	engine, store := newTestEngine(t)
	user := seedUser(t, store, phishgate.RoleMember, "2")
	token := loginToken(t, engine, user.Email)

	handler := Guard(engine, phishgate.TierUser, GuardConfig{})(echoIdentity(t))

	req := httptest.NewRequest("GET", "/app", nil)
	req.RemoteAddr = testIP + ":52113"
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != user.UserID {
		t.Fatalf("body = %q, want %q", rec.Body.String(), user.UserID)
	}
}

func TestGuardAcceptsBearerHeader(t *testing.T) {
	engine, store := newTestEngine(t)
	user := seedUser(t, store, phishgate.RoleMember, "2")
	token := loginToken(t, engine, user.Email)

	handler := Guard(engine, phishgate.TierUser, GuardConfig{})(echoIdentity(t))

	req := httptest.NewRequest("GET", "/api", nil)
	req.RemoteAddr = testIP + ":52113"
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGuardRejectsMissingToken(t *testing.T) {
	engine, _ := newTestEngine(t)

	handler := Guard(engine, phishgate.TierUser, GuardConfig{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler reached without a token")
	}))

	req := httptest.NewRequest("GET", "/app", nil)
	req.RemoteAddr = testIP + ":52113"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGuardRejectsGarbageToken(t *testing.T) {
	engine, _ := newTestEngine(t)

	handler := Guard(engine, phishgate.TierUser, GuardConfig{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler reached with a garbage token")
	}))

	req := httptest.NewRequest("GET", "/app", nil)
	req.RemoteAddr = testIP + ":52113"
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "not-a-real-token"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGuardRedirectsWhenConfigured(t *testing.T) {
	engine, _ := newTestEngine(t)

	handler := Guard(engine, phishgate.TierUser, GuardConfig{RedirectURL: "/login"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler reached without a token")
	}))

	req := httptest.NewRequest("GET", "/app", nil)
	req.RemoteAddr = testIP + ":52113"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/login" {
		t.Fatalf("location = %q, want /login", got)
	}
}

func TestGuardForbidsInsufficientTier(t *testing.T) {
	engine, store := newTestEngine(t)
	user := seedUser(t, store, phishgate.RoleMember, "2")
	token := loginToken(t, engine, user.Email)

	handler := Guard(engine, phishgate.TierAdmin, GuardConfig{RedirectURL: "/login"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler reached below the required tier")
	}))

	req := httptest.NewRequest("GET", "/admin", nil)
	req.RemoteAddr = testIP + ":52113"
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// Permission denials must never redirect to login.
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestGuardAllowsOperatorTenantAdmin(t *testing.T) {
	engine, store := newTestEngine(t)
	user := seedUser(t, store, phishgate.RoleAdmin, "1")
	token := loginToken(t, engine, user.Email)

	handler := Guard(engine, phishgate.TierTenantAdmin, GuardConfig{})(echoIdentity(t))

	req := httptest.NewRequest("GET", "/operator", nil)
	req.RemoteAddr = testIP + ":52113"
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGuardRejectsSessionFromOtherIP(t *testing.T) {
	engine, store := newTestEngine(t)
	user := seedUser(t, store, phishgate.RoleMember, "2")
	token := loginToken(t, engine, user.Email)

	handler := Guard(engine, phishgate.TierUser, GuardConfig{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler reached from the wrong ip")
	}))

	req := httptest.NewRequest("GET", "/app", nil)
	req.RemoteAddr = "192.0.2.77:40000"
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGuardTrustsForwardedForWhenEnabled(t *testing.T) {
	engine, store := newTestEngine(t)
	user := seedUser(t, store, phishgate.RoleMember, "2")
	token := loginToken(t, engine, user.Email)

	cfg := GuardConfig{TrustForwardedFor: true}
	handler := Guard(engine, phishgate.TierUser, cfg)(echoIdentity(t))

	req := httptest.NewRequest("GET", "/app", nil)
	req.RemoteAddr = "127.0.0.1:9000"
	req.Header.Set("X-Forwarded-For", testIP+", 127.0.0.1")
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
