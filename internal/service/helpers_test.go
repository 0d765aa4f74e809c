package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chatmeter/chatmeter/internal/auth"
	"github.com/chatmeter/chatmeter/internal/events"
	"github.com/chatmeter/chatmeter/internal/memstore"
	"github.com/chatmeter/chatmeter/internal/model"
)

var testHasher = auth.NewHasher(auth.Params{Time: 1, Memory: 1024, Threads: 1})

// recordingSink keeps emitted events in memory.
type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Emit(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// refundFailingStore rejects every positive delta.
type refundFailingStore struct {
	*memstore.Store
	err error
}

func (s *refundFailingStore) ApplyDelta(ctx context.Context, accountID string, delta int64) (int64, error) {
	if delta > 0 {
		return 0, s.err
	}
	return s.Store.ApplyDelta(ctx, accountID, delta)
}

// generatorFunc is a Generator that does not normalize its output.
type generatorFunc func(ctx context.Context, text string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, text string) (string, error) { return f(ctx, text) }

func seedAccount(t *testing.T, s *memstore.Store, id string, balance int64) {
	t.Helper()
	now := time.Now().UTC()
	err := s.CreateAccount(context.Background(), &model.Account{
		ID:        id,
		Username:  "user-" + id,
		Balance:   balance,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func mustBalance(t *testing.T, s *memstore.Store, id string) int64 {
	t.Helper()
	b, err := s.GetBalance(context.Background(), id)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	return b
}

var errBoom = errors.New("boom")
