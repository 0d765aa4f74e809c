package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/chatmeter/chatmeter/internal/auth"
	"github.com/chatmeter/chatmeter/internal/memstore"
	"github.com/chatmeter/chatmeter/internal/model"
)

// memOpener serves every invocation from the same in-memory store.
// closes counts deps.close calls.
type memOpener struct {
	store  *memstore.Store
	redis  *redis.Client
	closes int
}

func (m *memOpener) open(_ context.Context, _ *globalOptions, logger *slog.Logger) (*deps, error) {
	return &deps{store: nopCloseStore{m.store, &m.closes}, redis: m.redis, logger: logger}, nil
}

type nopCloseStore struct {
	*memstore.Store
	closes *int
}

func (s nopCloseStore) Close() { *s.closes++ }

func newMemOpener(t *testing.T) *memOpener {
	t.Helper()
	ms := memstore.New()
	now := time.Now().UTC()
	if err := ms.CreateAccount(context.Background(), &model.Account{
		ID: "acct-1", Username: "alice", Balance: 50, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}
	return &memOpener{store: ms}
}

func run(t *testing.T, m *memOpener, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(m.open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBalanceGet(t *testing.T) {
	t.Parallel()

	m := newMemOpener(t)
	out, err := run(t, m, "balance", "get", "alice", "--json")
	if err != nil {
		t.Fatalf("balance get: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got["username"] != "alice" || got["tokens"] != float64(50) {
		t.Errorf("unexpected output: %v", got)
	}
	if m.closes != 1 {
		t.Errorf("store closed %d times, want 1", m.closes)
	}

	if _, err := run(t, m, "balance", "get", "nobody"); err == nil {
		t.Error("expected an error for an unknown user")
	}
}

func TestBalanceAdjust(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr string
		want    int64
	}{
		{"credit", []string{"balance", "adjust", "alice", "100", "--reason", "refund tx 01HX"}, "", 150},
		{"debit", []string{"balance", "adjust", "--reason", "correction", "--", "alice", "-50"}, "", 0},
		{"would go negative", []string{"balance", "adjust", "--reason", "oops", "--", "alice", "-51"}, "insufficient balance", 50},
		{"missing reason", []string{"balance", "adjust", "alice", "10"}, "--reason", 50},
		{"zero delta", []string{"balance", "adjust", "alice", "0", "--reason", "x"}, "zero", 50},
		{"bad delta", []string{"balance", "adjust", "alice", "ten", "--reason", "x"}, "invalid delta", 50},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newMemOpener(t)
			_, err := run(t, m, tt.args...)
			if tt.wantErr == "" && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}

			balance, _ := m.store.GetBalance(context.Background(), "acct-1")
			if balance != tt.want {
				t.Errorf("balance = %d, want %d", balance, tt.want)
			}
		})
	}
}

func TestCredentialLifecycle(t *testing.T) {
	t.Parallel()

	m := newMemOpener(t)

	out, err := run(t, m, "credential", "issue", "alice", "--json")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	var issued map[string]string
	if err := json.Unmarshal([]byte(out), &issued); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if issued["token"] == "" || issued["id"] == "" {
		t.Fatalf("unexpected issue output: %v", issued)
	}
	if _, err := m.store.GetCredentialByDigest(context.Background(), auth.Digest(issued["token"])); err != nil {
		t.Fatalf("issued credential not stored: %v", err)
	}

	out, err = run(t, m, "cred", "list", "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, issued["id"]) || strings.Contains(out, issued["token"]) {
		t.Errorf("list should show the id but never the secret: %q", out)
	}

	if _, err := run(t, m, "credential", "revoke", issued["id"]); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := run(t, m, "credential", "revoke", issued["id"]); err == nil {
		t.Error("second revoke should fail")
	}
}

func TestMigrate_UnsupportedStore(t *testing.T) {
	t.Parallel()

	if _, err := run(t, newMemOpener(t), "migrate"); err == nil {
		t.Error("expected an error without a migrating store")
	}
}

func TestEvents(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	m := newMemOpener(t)
	if _, err := run(t, m, "events"); err == nil || !strings.Contains(err.Error(), "redis") {
		t.Fatalf("expected redis required error, got %v", err)
	}

	m.redis = client
	if _, err := run(t, m, "balance", "adjust", "alice", "25", "--reason", "goodwill"); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	out, err := run(t, m, "events", "-n", "5")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if !strings.Contains(out, "adjust") || !strings.Contains(out, "goodwill") {
		t.Errorf("adjust event missing from output: %q", out)
	}
}
