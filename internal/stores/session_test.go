package stores

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewSessionStore(client, "pg:sess"), mr
}

func sampleSessionRecord(userID string, authenticated bool) *SessionRecord {
	now := time.Now().Unix()
	record := &SessionRecord{
		UserID:        userID,
		TenantID:      "2",
		BindingHash:   sha256.Sum256([]byte("203.0.113.7")),
		Authenticated: authenticated,
		CreatedAt:     now,
		ExpiresAt:     now + 3600,
	}
	if !authenticated {
		record.ChallengeRef = "ch-ref-1"
	}
	return record
}

func TestSessionSaveGetRoundTrip(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	record := sampleSessionRecord("u1", false)
	evicted, err := store.Save(ctx, "sid-1", record, time.Hour)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if evicted {
		t.Fatal("expected no eviction on first save")
	}

	loaded, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.UserID != record.UserID ||
		loaded.TenantID != record.TenantID ||
		loaded.BindingHash != record.BindingHash ||
		loaded.Authenticated != record.Authenticated ||
		loaded.ChallengeRef != record.ChallengeRef ||
		loaded.CreatedAt != record.CreatedAt ||
		loaded.ExpiresAt != record.ExpiresAt {
		t.Fatalf("loaded record mismatch: %+v vs %+v", loaded, record)
	}
}

func TestSessionSaveEvictsPreviousSession(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	if _, err := store.Save(ctx, "sid-old", sampleSessionRecord("u1", true), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	evicted, err := store.Save(ctx, "sid-new", sampleSessionRecord("u1", true), time.Hour)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !evicted {
		t.Fatal("expected previous session to be evicted")
	}

	if _, err := store.Get(ctx, "sid-old"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for evicted session, got %v", err)
	}
	if _, err := store.Get(ctx, "sid-new"); err != nil {
		t.Fatalf("Get for new session failed: %v", err)
	}
}

func TestSessionSaveDifferentUsersDoNotInterfere(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	if _, err := store.Save(ctx, "sid-a", sampleSessionRecord("u1", true), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	evicted, err := store.Save(ctx, "sid-b", sampleSessionRecord("u2", true), time.Hour)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if evicted {
		t.Fatal("expected no cross-user eviction")
	}

	if _, err := store.Get(ctx, "sid-a"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
}

func TestSessionGetMissing(t *testing.T) {
	store, _ := newTestSessionStore(t)

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionExpiryOnObservation(t *testing.T) {
	store, mr := newTestSessionStore(t)
	ctx := context.Background()

	record := sampleSessionRecord("u1", true)
	record.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if _, err := store.Save(ctx, "sid-1", record, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	// The record and the user slot are both gone.
	if mr.Exists("pg:sess:r:sid-1") {
		t.Fatal("expected expired record to be deleted")
	}
	if mr.Exists("pg:sess:u:u1") {
		t.Fatal("expected user slot to be cleared")
	}
}

func TestSessionUpdateKeepsTTL(t *testing.T) {
	store, mr := newTestSessionStore(t)
	ctx := context.Background()

	record := sampleSessionRecord("u1", false)
	if _, err := store.Save(ctx, "sid-1", record, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	before := mr.TTL("pg:sess:r:sid-1")

	record.Authenticated = true
	record.ChallengeRef = ""
	if err := store.Update(ctx, "sid-1", record); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	after := mr.TTL("pg:sess:r:sid-1")
	if after <= 0 || after > before {
		t.Fatalf("expected preserved TTL, got before=%v after=%v", before, after)
	}

	loaded, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !loaded.Authenticated || loaded.ChallengeRef != "" {
		t.Fatalf("expected promoted record, got %+v", loaded)
	}
}

func TestSessionUpdateMissing(t *testing.T) {
	store, _ := newTestSessionStore(t)

	err := store.Update(context.Background(), "nope", sampleSessionRecord("u1", true))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionDelete(t *testing.T) {
	store, mr := newTestSessionStore(t)
	ctx := context.Background()

	if _, err := store.Save(ctx, "sid-1", sampleSessionRecord("u1", true), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	existed, err := store.Delete(ctx, "sid-1", "u1")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !existed {
		t.Fatal("expected delete to report an existing record")
	}
	if mr.Exists("pg:sess:u:u1") {
		t.Fatal("expected user slot to be cleared")
	}

	existed, err = store.Delete(ctx, "sid-1", "u1")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if existed {
		t.Fatal("expected second delete to be a no-op")
	}
}

func TestSessionDeleteForUser(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	if _, err := store.Save(ctx, "sid-1", sampleSessionRecord("u1", true), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	removed, err := store.DeleteForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteForUser failed: %v", err)
	}
	if !removed {
		t.Fatal("expected a session to be removed")
	}
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	removed, err = store.DeleteForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteForUser failed: %v", err)
	}
	if removed {
		t.Fatal("expected no session for user")
	}
}

func TestEncodeRejectsInconsistentChallengeState(t *testing.T) {
	record := sampleSessionRecord("u1", true)
	record.ChallengeRef = "dangling"
	if _, err := encodeSessionRecord(record); err == nil {
		t.Fatal("expected encode error for authenticated record with challenge ref")
	}

	record = sampleSessionRecord("u1", false)
	record.ChallengeRef = ""
	if _, err := encodeSessionRecord(record); err == nil {
		t.Fatal("expected encode error for pending record without challenge ref")
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	encoded, err := encodeSessionRecord(sampleSessionRecord("u1", true))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	encoded[0] = 99

	if _, err := decodeSessionRecord(encoded); err == nil {
		t.Fatal("expected decode error for unknown version")
	}
}

func TestSessionBackendUnavailable(t *testing.T) {
	store, mr := newTestSessionStore(t)
	mr.Close()

	if _, err := store.Get(context.Background(), "sid-1"); !errors.Is(err, ErrSessionBackend) {
		t.Fatalf("expected ErrSessionBackend, got %v", err)
	}
}
