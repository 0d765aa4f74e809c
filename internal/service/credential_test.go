package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chatmeter/chatmeter/internal/auth"
	"github.com/chatmeter/chatmeter/internal/memstore"
	"github.com/chatmeter/chatmeter/internal/metrics"
	"github.com/chatmeter/chatmeter/internal/model"
)

type fakeAuthCache struct {
	mu      sync.Mutex
	entries map[string]model.AuthContext
	readErr error
}

func newFakeAuthCache() *fakeAuthCache {
	return &fakeAuthCache{entries: make(map[string]model.AuthContext)}
}

func (c *fakeAuthCache) GetAuthContext(_ context.Context, digest string) (*model.AuthContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	ac, ok := c.entries[digest]
	if !ok {
		return nil, nil
	}
	return &ac, nil
}

func (c *fakeAuthCache) SetAuthContext(_ context.Context, digest string, ac *model.AuthContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[digest] = *ac
	return nil
}

func (c *fakeAuthCache) DeleteAuthContext(_ context.Context, digest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, digest)
	return nil
}

func (c *fakeAuthCache) has(digest string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[digest]
	return ok
}

func newCredentialEnv(t *testing.T, cache AuthCache) (*CredentialService, *memstore.Store, *metrics.InMemoryRecorder) {
	t.Helper()
	ms := memstore.New()
	rec := metrics.NewInMemory()
	seedAccount(t, ms, "a1", 4000)
	return NewCredentialService(ms, ms, cache, nil, rec), ms, rec
}

func TestCredentialService_IssueAndResolve(t *testing.T) {
	t.Parallel()

	svc, _, _ := newCredentialEnv(t, nil)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "a1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if issued.Secret == "" || issued.Credential.Digest != auth.Digest(issued.Secret) {
		t.Fatal("issued credential should store the digest of the returned secret")
	}

	ac, err := svc.Resolve(ctx, issued.Secret)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if ac.AccountID != "a1" || ac.Username != "user-a1" || ac.CredentialID != issued.Credential.ID {
		t.Errorf("unexpected auth context: %+v", ac)
	}

	// Surrounding whitespace is ignored.
	if _, err := svc.Resolve(ctx, "  "+issued.Secret+"\n"); err != nil {
		t.Errorf("Resolve with padding failed: %v", err)
	}
}

func TestCredentialService_ResolveFailures(t *testing.T) {
	t.Parallel()

	svc, _, rec := newCredentialEnv(t, nil)

	tests := []struct {
		name   string
		secret string
		want   error
	}{
		{"empty", "", ErrNoCredentials},
		{"whitespace", "   ", ErrNoCredentials},
		{"unknown", "not-a-real-credential", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		_, err := svc.Resolve(context.Background(), tt.secret)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
	if rec.Snapshot().AuthFailures != 1 {
		t.Errorf("AuthFailures = %d, want 1", rec.Snapshot().AuthFailures)
	}
}

func TestCredentialService_MultipleCredentialsStayValid(t *testing.T) {
	t.Parallel()

	svc, _, _ := newCredentialEnv(t, nil)
	ctx := context.Background()

	first, err := svc.Issue(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Issue(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if first.Secret == second.Secret {
		t.Fatal("each issue should mint a new secret")
	}
	for _, s := range []string{first.Secret, second.Secret} {
		if _, err := svc.Resolve(ctx, s); err != nil {
			t.Errorf("Resolve failed: %v", err)
		}
	}

	list, err := svc.List(ctx, "a1")
	if err != nil || len(list) != 2 {
		t.Fatalf("List = %d, %v; want 2", len(list), err)
	}
}

func TestCredentialService_CacheHit(t *testing.T) {
	t.Parallel()

	cache := newFakeAuthCache()
	svc, _, rec := newCredentialEnv(t, cache)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Resolve(ctx, issued.Secret); err != nil {
		t.Fatal(err)
	}
	if !cache.has(issued.Credential.Digest) {
		t.Fatal("resolved identity should be cached")
	}
	if _, err := svc.Resolve(ctx, issued.Secret); err != nil {
		t.Fatal(err)
	}

	snap := rec.Snapshot()
	if snap.AuthCacheMisses != 1 || snap.AuthCacheHits != 1 {
		t.Errorf("cache misses/hits = %d/%d, want 1/1", snap.AuthCacheMisses, snap.AuthCacheHits)
	}
}

func TestCredentialService_CacheReadErrorFallsBack(t *testing.T) {
	t.Parallel()

	cache := newFakeAuthCache()
	cache.readErr = errBoom
	svc, _, _ := newCredentialEnv(t, cache)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Resolve(ctx, issued.Secret); err != nil {
		t.Errorf("cache failure should not fail resolution: %v", err)
	}
}

func TestCredentialService_Revoke(t *testing.T) {
	t.Parallel()

	cache := newFakeAuthCache()
	svc, _, _ := newCredentialEnv(t, cache)
	ctx := context.Background()

	keep, _ := svc.Issue(ctx, "a1")
	drop, err := svc.Issue(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Resolve(ctx, drop.Secret); err != nil {
		t.Fatal(err)
	}

	if err := svc.Revoke(ctx, drop.Credential.ID); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if cache.has(drop.Credential.Digest) {
		t.Error("revoke should evict the cached identity")
	}
	if _, err := svc.Resolve(ctx, drop.Secret); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("revoked credential: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Resolve(ctx, keep.Secret); err != nil {
		t.Errorf("other credential should stay valid: %v", err)
	}

	if err := svc.Revoke(ctx, drop.Credential.ID); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("second revoke: expected ErrCredentialNotFound, got %v", err)
	}
}
