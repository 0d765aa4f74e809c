// Package store defines the persistence contracts shared by the Postgres
// repository and the in-memory store.
package store

import (
	"context"
	"errors"

	"github.com/chatmeter/chatmeter/internal/model"
)

// Store errors. Implementations return these unwrapped so callers can match
// them with errors.Is.
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrWouldGoNegative    = errors.New("balance would go negative")
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrNotStored wraps an AppendChatRecord error when the record is known
	// not to have been written. Any other append error leaves the outcome
	// unknown.
	ErrNotStored = errors.New("chat record not stored")
)

// AccountStore owns identities and their balances.
//
// ApplyDelta is the only way a balance changes. It adds delta atomically and
// returns the new balance, or ErrWouldGoNegative without mutating anything if
// the result would drop below zero.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)
	GetBalance(ctx context.Context, accountID string) (int64, error)
	ApplyDelta(ctx context.Context, accountID string, delta int64) (int64, error)
}

// CredentialStore maps credential digests to accounts.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred *model.Credential) error
	GetCredentialByDigest(ctx context.Context, digest string) (*model.Credential, error)
	ListCredentialsByAccount(ctx context.Context, accountID string) ([]*model.Credential, error)
	// DeleteCredential removes a credential and returns the deleted row.
	DeleteCredential(ctx context.Context, id string) (*model.Credential, error)
}

// ChatLog is the append-only chat history. AppendChatRecord wraps
// ErrNotStored only when nothing was written.
type ChatLog interface {
	AppendChatRecord(ctx context.Context, record *model.ChatRecord) error
}

// Store bundles every contract plus a health check.
type Store interface {
	AccountStore
	CredentialStore
	ChatLog
	Ping(ctx context.Context) error
	Close()
}
