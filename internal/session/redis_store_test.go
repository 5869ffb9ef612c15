package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"planoflife/api/internal/store"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	sessions, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return sessions, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	sessions, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer sessions.Close()

	if err := sessions.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not-a-url"); err == nil {
		t.Error("expected error for malformed url")
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	sessions, s := setupTestRedis(t)
	defer sessions.Close()
	defer s.Close()

	ctx := context.Background()
	user := store.User{ID: "usr_123", DisplayName: "Josemaria"}
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := sessions.SaveRefreshSession(ctx, "token-hash", user, expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	got, err := sessions.LookupRefreshSession(ctx, "token-hash")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if got.ID != user.ID || got.DisplayName != user.DisplayName {
		t.Errorf("expected %+v, got %+v", user, got)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	sessions, s := setupTestRedis(t)
	defer sessions.Close()
	defer s.Close()

	ctx := context.Background()
	user := store.User{ID: "usr_123"}
	if err := sessions.SaveRefreshSession(ctx, "token-hash", user, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	s.FastForward(2 * time.Minute)

	if _, err := sessions.LookupRefreshSession(ctx, "token-hash"); err == nil {
		t.Error("expected expired token lookup to fail")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	sessions, s := setupTestRedis(t)
	defer sessions.Close()
	defer s.Close()

	ctx := context.Background()
	if err := sessions.SaveRefreshSession(ctx, "token-hash", store.User{ID: "usr_1"}, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if err := sessions.RevokeRefreshSession(ctx, "token-hash"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}
	if _, err := sessions.LookupRefreshSession(ctx, "token-hash"); err == nil {
		t.Error("expected revoked token lookup to fail")
	}
}
