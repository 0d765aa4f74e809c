package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/chatmeter/chatmeter/internal/model"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), Config{})
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNew_ParsesURLAndPings(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c, err := New(context.Background(), "redis://"+mr.Addr()+"/0", Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	if _, err := New(context.Background(), "not a url", Config{}); err == nil {
		t.Error("Expected parse error")
	}
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cfg        Config
		wantTTL    time.Duration
		wantPrefix string
	}{
		{"zero value", Config{}, 5 * time.Minute, "auth:ctx:"},
		{"custom", Config{AuthTTL: time.Minute, AuthKeyPrefix: "staging:auth:"}, time.Minute, "staging:auth:"},
		{"negative ttl", Config{AuthTTL: -time.Second}, 5 * time.Minute, "auth:ctx:"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mr := miniredis.RunT(t)
			c := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), tt.cfg)
			t.Cleanup(func() { _ = c.Close() })

			if c.AuthTTL() != tt.wantTTL {
				t.Errorf("AuthTTL = %v, want %v", c.AuthTTL(), tt.wantTTL)
			}
			if err := c.SetAuthContext(context.Background(), "d1", &model.AuthContext{AccountID: "a"}); err != nil {
				t.Fatalf("SetAuthContext failed: %v", err)
			}
			key := tt.wantPrefix + "d1"
			if !mr.Exists(key) {
				t.Fatalf("expected key %q, have %v", key, mr.Keys())
			}
			if ttl := mr.TTL(key); ttl != tt.wantTTL {
				t.Errorf("TTL = %v, want %v", ttl, tt.wantTTL)
			}
		})
	}
}

func TestAuthContext_RoundTrip(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	ctx := context.Background()

	want := &model.AuthContext{
		AccountID:        "acct-1",
		Username:         "alice",
		CredentialID:     "cred-1",
		CredentialPrefix: "0123abcd",
	}
	if err := c.SetAuthContext(ctx, "digest-1", want); err != nil {
		t.Fatalf("SetAuthContext failed: %v", err)
	}

	if ttl := mr.TTL("auth:ctx:digest-1"); ttl != c.AuthTTL() {
		t.Errorf("TTL = %v, want %v", ttl, c.AuthTTL())
	}

	got, err := c.GetAuthContext(ctx, "digest-1")
	if err != nil {
		t.Fatalf("GetAuthContext failed: %v", err)
	}
	if got == nil || *got != *want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestAuthContext_MissAndExpiry(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	ctx := context.Background()

	got, err := c.GetAuthContext(ctx, "unknown")
	if err != nil || got != nil {
		t.Errorf("miss should return nil, nil; got %+v, %v", got, err)
	}

	_ = c.SetAuthContext(ctx, "d", &model.AuthContext{AccountID: "a"})
	mr.FastForward(c.AuthTTL() + time.Second)

	got, _ = c.GetAuthContext(ctx, "d")
	if got != nil {
		t.Error("entry should expire after TTL")
	}
}

func TestAuthContext_CorruptedIsMiss(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)

	tests := []struct {
		name  string
		value string
	}{
		{"not json", "{{{"},
		{"no account", `{"username":"alice"}`},
	}
	for _, tt := range tests {
		if err := mr.Set("auth:ctx:"+tt.name, tt.value); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := c.GetAuthContext(context.Background(), tt.name)
		if err != nil || got != nil {
			t.Errorf("%s: expected nil, nil; got %+v, %v", tt.name, got, err)
		}
	}
}

func TestAuthContext_Delete(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	ctx := context.Background()

	_ = c.SetAuthContext(ctx, "d", &model.AuthContext{AccountID: "a"})
	if err := c.DeleteAuthContext(ctx, "d"); err != nil {
		t.Fatalf("DeleteAuthContext failed: %v", err)
	}
	if mr.Exists("auth:ctx:d") {
		t.Error("entry should be gone")
	}
}

func TestAuthContext_RedisDown(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if _, err := c.GetAuthContext(ctx, "d"); err == nil {
		t.Error("Expected error when Redis is unreachable")
	}
}
