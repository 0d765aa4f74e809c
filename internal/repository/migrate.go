package repository

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

const upSuffix = ".up.sql"

// Migrate applies every pending *.up.sql file from fsys in lexical order.
// Applied versions are tracked in schema_migrations; each file runs in its
// own transaction. It returns the versions applied by this call.
func (r *Repository) Migrate(ctx context.Context, fsys fs.FS) ([]string, error) {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	versions, err := upMigrations(fsys)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, version := range versions {
		sql, err := fs.ReadFile(fsys, version+upSuffix)
		if err != nil {
			return applied, fmt.Errorf("failed to read migration %s: %w", version, err)
		}

		ok, err := r.applyMigration(ctx, version, string(sql))
		if err != nil {
			return applied, err
		}
		if ok {
			applied = append(applied, version)
		}
	}

	return applied, nil
}

func (r *Repository) applyMigration(ctx context.Context, version, sql string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin migration %s: %w", version, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var inserted bool
	err = tx.QueryRow(ctx,
		`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING RETURNING true`,
		version,
	).Scan(&inserted)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record migration %s: %w", version, err)
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return false, fmt.Errorf("failed to apply migration %s: %w", version, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit migration %s: %w", version, err)
	}
	return true, nil
}

func upMigrations(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	var versions []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, upSuffix) {
			continue
		}
		versions = append(versions, strings.TrimSuffix(name, upSuffix))
	}
	sort.Strings(versions)
	return versions, nil
}
