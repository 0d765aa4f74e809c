// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/chatmeter/chatmeter/internal/model"
	"github.com/chatmeter/chatmeter/migrations"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420421

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema runs every embedded down migration in reverse order, then every
// up migration, leaving empty tables. schema_migrations is dropped too.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	downs, ups, err := migrationFiles()
	if err != nil {
		return err
	}

	for i := len(downs) - 1; i >= 0; i-- {
		if err := execFile(ctx, pool, downs[i]); err != nil {
			return err
		}
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS schema_migrations"); err != nil {
		return fmt.Errorf("drop schema_migrations: %w", err)
	}
	for _, name := range ups {
		if err := execFile(ctx, pool, name); err != nil {
			return err
		}
	}
	return nil
}

func migrationFiles() (downs, ups []string, err error) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return nil, nil, fmt.Errorf("list migrations: %w", err)
	}
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs = append(downs, e.Name())
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(downs)
	sort.Strings(ups)
	return downs, ups, nil
}

func execFile(ctx context.Context, pool *pgxpool.Pool, name string) error {
	sql, err := migrations.FS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply %s: %w", name, err)
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ============================================================================
// Test Data Factories
// ============================================================================

var seq atomic.Int64

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

// UniqueUsername returns a username that fits the 50 char column.
func UniqueUsername(prefix string) string {
	name := UniqueID(prefix)
	if len(name) > 50 {
		name = name[len(name)-50:]
	}
	return name
}

// NewTestAccount creates an account with sensible defaults.
func NewTestAccount(t testing.TB, balance int64) *model.Account {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.Account{
		ID:           UniqueID("acct"),
		Username:     UniqueUsername("user"),
		PasswordHash: "$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2g",
		Balance:      balance,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestCredential creates a credential row for accountID.
func NewTestCredential(t testing.TB, accountID string) *model.Credential {
	t.Helper()
	id := UniqueID("cred")
	digest := fmt.Sprintf("%064x", seq.Add(1)+time.Now().UnixNano())
	return &model.Credential{
		ID:        id,
		AccountID: accountID,
		Digest:    digest,
		Prefix:    digest[:8],
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}
