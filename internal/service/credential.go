// Package service implements account, credential and metering logic on top
// of the store contracts.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/chatmeter/chatmeter/internal/auth"
	"github.com/chatmeter/chatmeter/internal/metrics"
	"github.com/chatmeter/chatmeter/internal/model"
	"github.com/chatmeter/chatmeter/internal/store"
)

// AuthCache caches resolved identities by credential digest.
type AuthCache interface {
	GetAuthContext(ctx context.Context, digest string) (*model.AuthContext, error)
	SetAuthContext(ctx context.Context, digest string, auth *model.AuthContext) error
	DeleteAuthContext(ctx context.Context, digest string) error
}

// CredentialService maps opaque secrets to identities.
type CredentialService struct {
	creds    store.CredentialStore
	accounts store.AccountStore
	cache    AuthCache
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// NewCredentialService creates a CredentialService. cache may be nil.
func NewCredentialService(
	creds store.CredentialStore,
	accounts store.AccountStore,
	cache AuthCache,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *CredentialService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{
		creds:    creds,
		accounts: accounts,
		cache:    cache,
		logger:   logger.With("component", "credentials"),
		metrics:  recorder,
	}
}

// Resolve returns the identity bound to secret.
// A blank secret yields ErrNoCredentials; an unknown one ErrInvalidCredentials.
func (s *CredentialService) Resolve(ctx context.Context, secret string) (*model.AuthContext, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrNoCredentials
	}
	digest := auth.Digest(secret)

	if s.cache != nil {
		cached, err := s.cache.GetAuthContext(ctx, digest)
		if err != nil {
			s.logger.Warn("auth cache read failed", "error", err)
		}
		if cached != nil {
			s.metrics.IncAuthCacheHit()
			return cached, nil
		}
		s.metrics.IncAuthCacheMiss()
	}

	cred, err := s.creds.GetCredentialByDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, store.ErrCredentialNotFound) {
			s.metrics.IncAuthFailure()
			s.logger.Debug("unknown credential", "prefix", auth.SecretPrefix(secret))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup credential: %w", err)
	}
	if !auth.DigestsEqual(cred.Digest, digest) {
		s.metrics.IncAuthFailure()
		return nil, ErrInvalidCredentials
	}

	account, err := s.accounts.GetAccountByID(ctx, cred.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			s.metrics.IncAuthFailure()
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	ac := &model.AuthContext{
		AccountID:        account.ID,
		Username:         account.Username,
		CredentialID:     cred.ID,
		CredentialPrefix: cred.Prefix,
	}

	if s.cache != nil {
		if err := s.cache.SetAuthContext(ctx, digest, ac); err != nil {
			s.logger.Warn("auth cache write failed", "error", err)
		}
	}

	return ac, nil
}

// Issue mints a new credential for accountID. Existing credentials stay
// valid. The plaintext secret is only available in the returned value.
func (s *CredentialService) Issue(ctx context.Context, accountID string) (*model.IssuedCredential, error) {
	gen, err := auth.GenerateSecret()
	if err != nil {
		return nil, err
	}

	cred := &model.Credential{
		ID:        ulid.Make().String(),
		AccountID: accountID,
		Digest:    gen.Digest,
		Prefix:    gen.Prefix,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.creds.CreateCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}

	s.logger.Info("credential issued", "account_id", accountID, "credential_id", cred.ID, "prefix", cred.Prefix)

	return &model.IssuedCredential{Credential: cred, Secret: gen.Plaintext}, nil
}

// Revoke deletes a credential and evicts its cached identity.
func (s *CredentialService) Revoke(ctx context.Context, credentialID string) error {
	cred, err := s.creds.DeleteCredential(ctx, credentialID)
	if err != nil {
		if errors.Is(err, store.ErrCredentialNotFound) {
			return ErrCredentialNotFound
		}
		return fmt.Errorf("delete credential: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.DeleteAuthContext(ctx, cred.Digest); err != nil {
			// The entry expires on its own within the cache TTL.
			s.logger.Warn("auth cache eviction failed", "credential_id", cred.ID, "error", err)
		}
	}

	s.logger.Info("credential revoked", "account_id", cred.AccountID, "credential_id", cred.ID)
	return nil
}

// List returns an account's credentials, newest first.
func (s *CredentialService) List(ctx context.Context, accountID string) ([]*model.Credential, error) {
	creds, err := s.creds.ListCredentialsByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}
