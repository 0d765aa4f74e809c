package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/chatmeter/chatmeter/internal/model"
	"github.com/chatmeter/chatmeter/internal/store"
)

// CreateCredential stores a credential digest for an account.
func (r *Repository) CreateCredential(ctx context.Context, cred *model.Credential) error {
	query := `
		INSERT INTO credentials (id, account_id, digest, prefix, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		cred.ID,
		cred.AccountID,
		cred.Digest,
		cred.Prefix,
		cred.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

// GetCredentialByDigest looks up a credential by exact digest match.
func (r *Repository) GetCredentialByDigest(ctx context.Context, digest string) (*model.Credential, error) {
	query := `
		SELECT id, account_id, digest, prefix, created_at
		FROM credentials
		WHERE digest = $1
	`

	var c model.Credential
	err := r.pool.QueryRow(ctx, query, digest).Scan(&c.ID, &c.AccountID, &c.Digest, &c.Prefix, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &c, nil
}

// ListCredentialsByAccount returns every credential of an account, newest first.
func (r *Repository) ListCredentialsByAccount(ctx context.Context, accountID string) ([]*model.Credential, error) {
	query := `
		SELECT id, account_id, digest, prefix, created_at
		FROM credentials
		WHERE account_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*model.Credential
	for rows.Next() {
		var c model.Credential
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Digest, &c.Prefix, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credentials: %w", err)
	}

	return creds, nil
}

// DeleteCredential removes a credential and returns what was deleted.
func (r *Repository) DeleteCredential(ctx context.Context, id string) (*model.Credential, error) {
	query := `
		DELETE FROM credentials
		WHERE id = $1
		RETURNING id, account_id, digest, prefix, created_at
	`

	var c model.Credential
	err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.AccountID, &c.Digest, &c.Prefix, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to delete credential: %w", err)
	}
	return &c, nil
}
