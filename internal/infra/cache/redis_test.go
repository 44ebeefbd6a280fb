package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/bryanwahyu/sitesafe/internal/domain/auth"
)

func newTestCache(t *testing.T) *SessionCache {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed session cache tests")
	}
	c, err := NewSessionCache(context.Background(), addr, os.Getenv("TEST_REDIS_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSessionCacheSetGetDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	hash := fmt.Sprintf("test-%d", time.Now().UnixNano())
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	if _, ok := c.GetSession(ctx, hash); ok {
		t.Fatalf("expected miss before set")
	}
	if err := c.SetSession(ctx, hash, &auth.Session{UserID: "u1", ExpiresAt: exp}, time.Minute); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	got, ok := c.GetSession(ctx, hash)
	if !ok || got.UserID != "u1" || !got.ExpiresAt.Equal(exp) || got.TokenHash != hash {
		t.Fatalf("unexpected cached session %+v ok=%v", got, ok)
	}
	if err := c.DeleteSession(ctx, hash); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, ok := c.GetSession(ctx, hash); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestNewSessionCacheRequiresAddr(t *testing.T) {
	if _, err := NewSessionCache(context.Background(), "", "", 0); err == nil {
		t.Fatalf("expected error for empty address")
	}
}
