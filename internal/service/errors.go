package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors returned by the services.
var (
	// ErrNoCredentials means the request carried no credential at all.
	ErrNoCredentials = errors.New("credentials required")
	// ErrInvalidCredentials means a credential was presented but matched nothing.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidLogin covers both unknown usernames and wrong passwords.
	ErrInvalidLogin = errors.New("invalid username or password")
	// ErrAccountNotFound is returned by operator lookups.
	ErrAccountNotFound = errors.New("account not found")
	// ErrCredentialNotFound is returned when revoking an unknown credential.
	ErrCredentialNotFound = errors.New("credential not found")
)

// ValidationError carries per-field messages.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError builds a ValidationError with one message.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string][]string{field: {msg}}}
}

// Add appends a message for field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Empty reports whether no field has a message.
func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// InsufficientBalanceError is returned when the balance cannot cover a request.
type InsufficientBalanceError struct {
	Current int64
	Cost    int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d, need %d", e.Current, e.Cost)
}

// GatewayError reports a failed generation after the debit was refunded.
// Cause is a *gateway.TimeoutError or *gateway.ServiceError.
type GatewayError struct {
	Cause error
}

func (e *GatewayError) Error() string { return "generation failed: " + e.Cause.Error() }

func (e *GatewayError) Unwrap() error { return e.Cause }

// RollbackFailedError means a debit could not be refunded. The balance needs
// manual reconciliation for AccountID by Amount.
type RollbackFailedError struct {
	Cause       error // why the refund was needed
	RollbackErr error // why the refund failed
	AccountID   string
	Amount      int64
	TxID        string
}

func (e *RollbackFailedError) Error() string {
	return fmt.Sprintf("refund of %d for account %s failed (%v) after: %v",
		e.Amount, e.AccountID, e.RollbackErr, e.Cause)
}

// Unwrap exposes both the original cause and the refund failure.
func (e *RollbackFailedError) Unwrap() []error { return []error{e.Cause, e.RollbackErr} }

// PersistError means generation succeeded but storing the chat record
// failed. When Refunded is false the write may have landed, so the debit of
// Amount was kept and TxID needs reconciling against the chat history.
type PersistError struct {
	Err      error
	Refunded bool
	Amount   int64
	TxID     string
}

func (e *PersistError) Error() string {
	if e.Refunded {
		return "failed to store chat record (refunded): " + e.Err.Error()
	}
	return fmt.Sprintf("chat record outcome unknown, %d tokens kept: %v", e.Amount, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
