package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLocker(t *testing.T, cfg RedisConfig) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisLocker(client, cfg, nil), mr
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	t.Parallel()

	l, mr := newRedisLocker(t, RedisConfig{})
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "balance:a1")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if !mr.Exists("lock:balance:a1") {
		t.Fatal("lock key should exist while held")
	}
	if ttl := mr.TTL("lock:balance:a1"); ttl != 10*time.Second {
		t.Errorf("TTL = %v, want 10s", ttl)
	}

	unlock()
	if mr.Exists("lock:balance:a1") {
		t.Error("lock key should be deleted after release")
	}
}

func TestRedisLocker_ContendedTimesOut(t *testing.T) {
	t.Parallel()

	l, _ := newRedisLocker(t, RedisConfig{RetryDelay: 5 * time.Millisecond})

	unlock, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "a")
	if !errors.Is(err, ErrNotAcquired) {
		t.Errorf("Expected ErrNotAcquired, got: %v", err)
	}
}

func TestRedisLocker_WaitsForRelease(t *testing.T) {
	t.Parallel()

	l, _ := newRedisLocker(t, RedisConfig{RetryDelay: 2 * time.Millisecond})

	unlock, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	acquired := make(chan struct{})
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		u, err := l.Lock(ctx, "a")
		if err != nil {
			t.Errorf("waiter Lock failed: %v", err)
			return
		}
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("waiter acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	wg.Wait()
}

func TestRedisLocker_ReleaseKeepsForeignLock(t *testing.T) {
	t.Parallel()

	l, mr := newRedisLocker(t, RedisConfig{TTL: time.Second})

	unlock, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	// Our lease expires and someone else takes the key.
	mr.FastForward(2 * time.Second)
	if err := mr.Set("lock:a", "someone-else"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	unlock()

	got, err := mr.Get("lock:a")
	if err != nil || got != "someone-else" {
		t.Errorf("foreign lock must survive release, got %q, %v", got, err)
	}
}
