// Package memstore is an in-memory implementation of the store contracts,
// used for single-process deployments and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/chatmeter/chatmeter/internal/model"
	"github.com/chatmeter/chatmeter/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps accounts, credentials and chat records in maps behind one mutex.
type Store struct {
	mu          sync.RWMutex
	accounts    map[string]*model.Account // by ID
	usernames   map[string]string         // username -> account ID
	credentials map[string]*model.Credential
	digests     map[string]string // digest -> credential ID
	chats       map[string][]*model.ChatRecord

	// failAppend, when set, is returned by AppendChatRecord. With
	// failAfterWrite the record is stored first.
	failAppend     error
	failAfterWrite bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts:    make(map[string]*model.Account),
		usernames:   make(map[string]string),
		credentials: make(map[string]*model.Credential),
		digests:     make(map[string]string),
		chats:       make(map[string][]*model.ChatRecord),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// CreateAccount stores a copy of account.
func (s *Store) CreateAccount(_ context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usernames[account.Username]; taken {
		return store.ErrUsernameTaken
	}
	cp := *account
	s.accounts[cp.ID] = &cp
	s.usernames[cp.Username] = cp.ID
	return nil
}

// GetAccountByID returns a copy of the account.
func (s *Store) GetAccountByID(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

// GetAccountByUsername returns a copy of the account.
func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	s.mu.RLock()
	id, ok := s.usernames[username]
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return s.GetAccountByID(ctx, id)
}

// GetBalance returns the current balance.
func (s *Store) GetBalance(_ context.Context, accountID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return 0, store.ErrAccountNotFound
	}
	return a.Balance, nil
}

// ApplyDelta adds delta unless the result would be negative.
func (s *Store) ApplyDelta(_ context.Context, accountID string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return 0, store.ErrAccountNotFound
	}
	if a.Balance+delta < 0 {
		return 0, store.ErrWouldGoNegative
	}
	a.Balance += delta
	return a.Balance, nil
}

// CreateCredential stores a copy of cred.
func (s *Store) CreateCredential(_ context.Context, cred *model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[cred.AccountID]; !ok {
		return store.ErrAccountNotFound
	}
	cp := *cred
	s.credentials[cp.ID] = &cp
	s.digests[cp.Digest] = cp.ID
	return nil
}

// GetCredentialByDigest looks up a credential by exact digest.
func (s *Store) GetCredentialByDigest(_ context.Context, digest string) (*model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.digests[digest]
	if !ok {
		return nil, store.ErrCredentialNotFound
	}
	cp := *s.credentials[id]
	return &cp, nil
}

// ListCredentialsByAccount returns the account's credentials, newest first.
func (s *Store) ListCredentialsByAccount(_ context.Context, accountID string) ([]*model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Credential
	for _, c := range s.credentials {
		if c.AccountID == accountID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteCredential removes a credential and returns it.
func (s *Store) DeleteCredential(_ context.Context, id string) (*model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[id]
	if !ok {
		return nil, store.ErrCredentialNotFound
	}
	delete(s.credentials, id)
	delete(s.digests, c.Digest)
	return c, nil
}

// AppendChatRecord appends a copy of record.
func (s *Store) AppendChatRecord(_ context.Context, record *model.ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAppend != nil && !s.failAfterWrite {
		return s.failAppend
	}
	if _, ok := s.accounts[record.AccountID]; !ok {
		return fmt.Errorf("%w: %w", store.ErrNotStored, store.ErrAccountNotFound)
	}
	cp := *record
	s.chats[cp.AccountID] = append(s.chats[cp.AccountID], &cp)
	return s.failAppend
}

// ChatRecords returns copies of an account's records in append order.
func (s *Store) ChatRecords(accountID string) []*model.ChatRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.ChatRecord, 0, len(s.chats[accountID]))
	for _, r := range s.chats[accountID] {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

// FailAppends makes every later AppendChatRecord return err without storing
// the record. Pass nil to reset.
func (s *Store) FailAppends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAppend = err
	s.failAfterWrite = false
}

// FailAppendsAfterWrite makes every later AppendChatRecord store the record
// and then return err, like a commit whose acknowledgement was lost.
func (s *Store) FailAppendsAfterWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAppend = err
	s.failAfterWrite = err != nil
}
