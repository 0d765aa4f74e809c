//go:build integration

package repository

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/lib/pq"

	"github.com/chatmeter/chatmeter/internal/testutil"
	"github.com/chatmeter/chatmeter/migrations"
)

// ============================================================================
// Migration Integration Tests
// ============================================================================

func TestIntegrationMigration_ApplyAllTables(t *testing.T) {
	ctx, repo, db := newMigrationTestEnv(t)

	if _, err := repo.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	for _, table := range []string{"accounts", "credentials", "chat_records", "schema_migrations"} {
		t.Run(table, func(t *testing.T) {
			exists, err := tableExists(ctx, db, table)
			if err != nil {
				t.Fatalf("tableExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Table %q should exist after migrations", table)
			}
		})
	}
}

func TestIntegrationMigration_Idempotent(t *testing.T) {
	ctx, repo, _ := newMigrationTestEnv(t)

	if _, err := repo.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("first Migrate failed: %v", err)
	}

	applied, err := repo.Migrate(ctx, migrations.FS)
	if err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("second run should apply nothing, applied %v", applied)
	}
}

func TestIntegrationMigration_AccountsSchema(t *testing.T) {
	ctx, repo, db := newMigrationTestEnv(t)

	if _, err := repo.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	for _, col := range []string{"id", "username", "password_hash", "balance", "created_at", "updated_at"} {
		exists, err := columnExists(ctx, db, "accounts", col)
		if err != nil {
			t.Fatalf("columnExists failed: %v", err)
		}
		if !exists {
			t.Errorf("Column %q should exist in accounts table", col)
		}
	}
}

func TestIntegrationMigration_BalanceConstraint(t *testing.T) {
	ctx, repo, db := newMigrationTestEnv(t)

	if _, err := repo.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, password_hash, balance)
		VALUES ('neg', 'negative', 'x', -1)
	`)
	if err == nil {
		t.Error("Expected check constraint violation for negative balance")
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, password_hash, balance)
		VALUES ('long', repeat('a', 51), 'x', 0)
	`)
	if err == nil {
		t.Error("Expected violation for username > 50 chars")
	}
}

func TestIntegrationMigration_CascadeDelete(t *testing.T) {
	ctx, repo, db := newMigrationTestEnv(t)

	if _, err := repo.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	account := testutil.NewTestAccount(t, 100)
	if err := repo.CreateAccount(ctx, account); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	cred := testutil.NewTestCredential(t, account.ID)
	if err := repo.CreateCredential(ctx, cred); err != nil {
		t.Fatalf("CreateCredential failed: %v", err)
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, account.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM credentials WHERE account_id = $1`, account.ID).Scan(&n); err != nil {
		t.Fatalf("count credentials: %v", err)
	}
	if n != 0 {
		t.Errorf("credentials should cascade, %d left", n)
	}
}

// ============================================================================
// Helper Functions
// ============================================================================

func tableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`, tableName).Scan(&exists)
	return exists, err
}

func columnExists(ctx context.Context, db *sql.DB, tableName, columnName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		)
	`, tableName, columnName).Scan(&exists)
	return exists, err
}

// ============================================================================
// Test Environment Setup
// ============================================================================

// newMigrationTestEnv drops the schema so Migrate starts from scratch.
// Schema inspection goes through database/sql with the lib/pq driver.
func newMigrationTestEnv(t *testing.T) (context.Context, *Repository, *sql.DB) {
	t.Helper()
	ctx, repo := newRepositoryTestEnv(t)

	dbURL := testutil.RequireEnv(t, "DATABASE_URL")
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("open database/sql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, `
		DROP TABLE IF EXISTS chat_records, credentials, accounts, schema_migrations CASCADE
	`)
	if err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	return ctx, repo, db
}
