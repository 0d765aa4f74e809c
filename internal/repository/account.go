package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/chatmeter/chatmeter/internal/model"
	"github.com/chatmeter/chatmeter/internal/store"
)

const accountColumns = `id, username, password_hash, balance, created_at, updated_at`

// CreateAccount inserts a new account.
func (r *Repository) CreateAccount(ctx context.Context, account *model.Account) error {
	query := `
		INSERT INTO accounts (id, username, password_hash, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		account.ID,
		account.Username,
		account.PasswordHash,
		account.Balance,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrUsernameTaken
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetAccountByID retrieves an account by its ID.
func (r *Repository) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

// GetAccountByUsername retrieves an account by its unique username.
func (r *Repository) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, username))
}

// GetBalance returns the current balance of an account.
func (r *Repository) GetBalance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, store.ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// ApplyDelta adds delta to the balance in a single conditional UPDATE.
// The row is left untouched when the result would be negative.
func (r *Repository) ApplyDelta(ctx context.Context, accountID string, delta int64) (int64, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $2, updated_at = now()
		WHERE id = $1 AND balance + $2 >= 0
		RETURNING balance
	`

	var balance int64
	err := r.pool.QueryRow(ctx, query, accountID, delta).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to apply balance delta: %w", err)
	}

	// No row updated: either the account is gone or the guard rejected it.
	var exists bool
	err = r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("failed to check account: %w", err)
	}
	if !exists {
		return 0, store.ErrAccountNotFound
	}
	return 0, store.ErrWouldGoNegative
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.PasswordHash,
		&a.Balance,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}
