package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/chatmeter/chatmeter/internal/auth"
	"github.com/chatmeter/chatmeter/internal/metrics"
	"github.com/chatmeter/chatmeter/internal/model"
	"github.com/chatmeter/chatmeter/internal/store"
)

const (
	// MaxUsernameLength is counted in characters.
	MaxUsernameLength = 50
	// MinPasswordLength is counted in characters.
	MinPasswordLength = 6
	// DefaultStartingBalance is credited to new accounts.
	DefaultStartingBalance int64 = 4000
)

// Field validation messages.
const (
	MsgRequired      = "This field is required."
	MsgBlank         = "This field may not be blank."
	MsgUsernameTaken = "Username already taken."
	MsgNullCharacter = "Null characters are not allowed."
	MsgInvalidUTF8   = "Enter valid UTF-8 text."
)

// textError returns the validation message for text the stores cannot hold,
// or "" when s is acceptable. Postgres text columns reject NUL.
func textError(s string) string {
	switch {
	case strings.IndexByte(s, 0) >= 0:
		return MsgNullCharacter
	case !utf8.ValidString(s):
		return MsgInvalidUTF8
	}
	return ""
}

// AccountService handles registration and login.
type AccountService struct {
	accounts        store.AccountStore
	credentials     *CredentialService
	hasher          *auth.Hasher
	startingBalance int64
	logger          *slog.Logger
	metrics         metrics.Recorder
}

// AccountConfig configures AccountService.
type AccountConfig struct {
	StartingBalance int64
	Hasher          *auth.Hasher
}

// NewAccountService creates a new AccountService.
func NewAccountService(
	accounts store.AccountStore,
	credentials *CredentialService,
	cfg AccountConfig,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *AccountService {
	if cfg.Hasher == nil {
		cfg.Hasher = auth.NewHasher(auth.DefaultParams)
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		accounts:        accounts,
		credentials:     credentials,
		hasher:          cfg.Hasher,
		startingBalance: cfg.StartingBalance,
		logger:          logger.With("component", "accounts"),
		metrics:         recorder,
	}
}

// Register creates an account with the starting balance.
// Surrounding whitespace in the username is ignored.
func (s *AccountService) Register(ctx context.Context, username, password string) (*model.Account, error) {
	username = strings.TrimSpace(username)

	verr := &ValidationError{}
	switch {
	case username == "":
		verr.Add("username", MsgBlank)
	case textError(username) != "":
		verr.Add("username", textError(username))
	case utf8.RuneCountInString(username) > MaxUsernameLength:
		verr.Add("username", fmt.Sprintf("Ensure this field has no more than %d characters.", MaxUsernameLength))
	}
	switch {
	case password == "":
		verr.Add("password", MsgBlank)
	case textError(password) != "":
		verr.Add("password", textError(password))
	case utf8.RuneCountInString(password) < MinPasswordLength:
		verr.Add("password", fmt.Sprintf("Ensure this field has at least %d characters.", MinPasswordLength))
	}
	if !verr.Empty() {
		return nil, verr
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	account := &model.Account{
		ID:           ulid.Make().String(),
		Username:     username,
		PasswordHash: hash,
		Balance:      s.startingBalance,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return nil, NewValidationError("username", MsgUsernameTaken)
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.metrics.IncRegistration()
	s.logger.Info("account registered", "account_id", account.ID, "balance", account.Balance)

	return account, nil
}

// Login checks the password and issues a fresh credential.
// Unknown usernames and wrong passwords both yield ErrInvalidLogin.
func (s *AccountService) Login(ctx context.Context, username, password string) (*model.IssuedCredential, *model.Account, error) {
	username = strings.TrimSpace(username)

	verr := &ValidationError{}
	if username == "" {
		verr.Add("username", MsgBlank)
	}
	if password == "" {
		verr.Add("password", MsgBlank)
	}
	if !verr.Empty() {
		return nil, nil, verr
	}

	// No account can hold an unstorable username.
	if textError(username) != "" {
		s.hasher.VerifyDummy(password)
		s.metrics.IncLogin(false)
		return nil, nil, ErrInvalidLogin
	}

	account, err := s.accounts.GetAccountByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, store.ErrAccountNotFound) {
			return nil, nil, fmt.Errorf("lookup account: %w", err)
		}
		s.hasher.VerifyDummy(password)
		s.metrics.IncLogin(false)
		return nil, nil, ErrInvalidLogin
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", "account_id", account.ID, "error", err)
	}
	if !ok {
		s.metrics.IncLogin(false)
		return nil, nil, ErrInvalidLogin
	}

	issued, err := s.credentials.Issue(ctx, account.ID)
	if err != nil {
		return nil, nil, err
	}

	s.metrics.IncLogin(true)
	return issued, account, nil
}

// GetByUsername looks up an account for operator tooling.
func (s *AccountService) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	account, err := s.accounts.GetAccountByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	return account, nil
}
