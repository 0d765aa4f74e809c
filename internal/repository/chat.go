package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/chatmeter/chatmeter/internal/model"
	"github.com/chatmeter/chatmeter/internal/store"
)

// AppendChatRecord inserts a chat record. Records are never updated.
func (r *Repository) AppendChatRecord(ctx context.Context, record *model.ChatRecord) error {
	query := `
		INSERT INTO chat_records (id, account_id, message, response, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		record.ID,
		record.AccountID,
		record.Message,
		record.Response,
		record.CreatedAt,
	)
	if err != nil {
		return appendError(err)
	}
	return nil
}

// appendError marks err with store.ErrNotStored when the INSERT provably did
// not commit: the server rejected the statement, or the request never left
// the client. A timeout or broken connection after sending may still have
// committed, so those stay unmarked.
func appendError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("failed to append chat record: %w: %w", store.ErrNotStored, err)
	}
	return fmt.Errorf("failed to append chat record: %w", err)
}

// CountChatRecords returns how many records an account has.
func (r *Repository) CountChatRecords(ctx context.Context, accountID string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM chat_records WHERE account_id = $1`, accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chat records: %w", err)
	}
	return n, nil
}
