package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/chatmeter/chatmeter/internal/events"
	"github.com/chatmeter/chatmeter/internal/gateway"
	"github.com/chatmeter/chatmeter/internal/lock"
	"github.com/chatmeter/chatmeter/internal/metrics"
	"github.com/chatmeter/chatmeter/internal/model"
	"github.com/chatmeter/chatmeter/internal/store"
)

// DefaultChatCost is the price of one chat request in tokens.
const DefaultChatCost int64 = 100

// TxState is a step of a metered chat transaction.
type TxState int

// Transaction states. Rejected, Committed, RolledBack, RollbackFailed and
// PersistUnknown are terminal.
const (
	StateIdle TxState = iota
	StateChecking
	StateRejected
	StateDebited
	StateGenerating
	StateCommitted
	StateFailed
	StateRolledBack
	StateRollbackFailed
	StatePersistUnknown
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateChecking:       "checking",
	StateRejected:       "rejected",
	StateDebited:        "debited",
	StateGenerating:     "generating",
	StateCommitted:      "committed",
	StateFailed:         "failed",
	StateRolledBack:     "rolled_back",
	StateRollbackFailed: "rollback_failed",
	StatePersistUnknown: "persist_unknown",
}

func (s TxState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("TxState(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s TxState) Terminal() bool {
	switch s {
	case StateRejected, StateCommitted, StateRolledBack, StateRollbackFailed, StatePersistUnknown:
		return true
	}
	return false
}

// MeteringConfig configures MeteringService.
type MeteringConfig struct {
	// Cost is debited per chat request.
	Cost int64
	// LockTimeout bounds waiting for the per-account lock.
	LockTimeout time.Duration
	// RollbackTimeout bounds a refund, which runs detached from the request.
	RollbackTimeout time.Duration
	// OnTransition, when set, is called on every state change.
	OnTransition func(txID string, from, to TxState)
}

// ChatResult is the outcome of a committed chat. TokensRemaining is the
// balance right after this request's debit.
type ChatResult struct {
	Response        string
	TokensRemaining int64
	Record          *model.ChatRecord
}

// MeteringService debits, generates and persists as one unit of work.
//
// The per-account lock covers the balance check and debit, and separately
// the refund. It is never held while the generator runs.
type MeteringService struct {
	accounts  store.AccountStore
	chats     store.ChatLog
	generator gateway.Generator
	locker    lock.Locker
	events    events.Sink
	cfg       MeteringConfig
	logger    *slog.Logger
	metrics   metrics.Recorder
}

// NewMeteringService creates a MeteringService. sink and recorder may be nil.
func NewMeteringService(
	accounts store.AccountStore,
	chats store.ChatLog,
	generator gateway.Generator,
	locker lock.Locker,
	sink events.Sink,
	cfg MeteringConfig,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *MeteringService {
	if cfg.Cost <= 0 {
		cfg.Cost = DefaultChatCost
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 10 * time.Second
	}
	if cfg.RollbackTimeout <= 0 {
		cfg.RollbackTimeout = 5 * time.Second
	}
	if sink == nil {
		sink = events.Noop{}
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MeteringService{
		accounts:  accounts,
		chats:     chats,
		generator: generator,
		locker:    locker,
		events:    sink,
		cfg:       cfg,
		logger:    logger.With("component", "metering"),
		metrics:   recorder,
	}
}

// Cost returns the per-request price.
func (s *MeteringService) Cost() int64 { return s.cfg.Cost }

// chatTx tracks one transaction through its states.
type chatTx struct {
	id        string
	accountID string
	state     TxState
	logger    *slog.Logger
	hook      func(txID string, from, to TxState)
}

func (tx *chatTx) to(next TxState) {
	prev := tx.state
	tx.state = next
	tx.logger.Debug("chat transaction", "from", prev.String(), "state", next.String())
	if tx.hook != nil {
		tx.hook(tx.id, prev, next)
	}
}

func balanceLockKey(accountID string) string { return "balance:" + accountID }

// Chat runs one metered generation for accountID.
//
// Surrounding whitespace in message is dropped before it is sent or stored.
//
// Errors: *ValidationError for a blank or unstorable message,
// *InsufficientBalanceError, *GatewayError after a successful refund,
// *PersistError, *RollbackFailedError when a refund fails, or
// ErrAccountNotFound.
//
// Once generation succeeds the debit stands unless the chat log reports
// store.ErrNotStored; a record must never exist without its debit.
func (s *MeteringService) Chat(ctx context.Context, accountID, message string) (*ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, NewValidationError("message", MsgBlank)
	}
	if msg := textError(message); msg != "" {
		return nil, NewValidationError("message", msg)
	}

	id := ulid.Make().String()
	tx := &chatTx{
		id:        id,
		accountID: accountID,
		logger:    s.logger.With("tx", id, "account_id", accountID),
		hook:      s.cfg.OnTransition,
	}

	tx.to(StateChecking)
	balance, err := s.debit(ctx, tx)
	if err != nil {
		return nil, err
	}

	tx.to(StateGenerating)
	start := time.Now()
	text, genErr := s.generator.Generate(ctx, message)
	s.metrics.ObserveGatewayDuration(time.Since(start), genErr == nil)
	if genErr != nil {
		tx.to(StateFailed)
		tx.logger.Warn("generation failed", "error", genErr)
		return nil, s.rollback(ctx, tx, &GatewayError{Cause: genErr}, genErr)
	}
	if strings.TrimSpace(text) == "" {
		text = gateway.FallbackResponse
	}

	record := &model.ChatRecord{
		ID:        ulid.Make().String(),
		AccountID: accountID,
		Message:   message,
		Response:  text,
		CreatedAt: time.Now().UTC(),
	}

	// Generation already happened, so a client disconnect must not stop
	// the record from being written.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RollbackTimeout)
	err = s.chats.AppendChatRecord(persistCtx, record)
	cancel()
	if err != nil {
		s.metrics.IncPersistFailed()
		if errors.Is(err, store.ErrNotStored) {
			tx.to(StateFailed)
			tx.logger.Error("chat record not stored", "error", err)
			return nil, s.rollback(ctx, tx, &PersistError{Err: err, Refunded: true, Amount: s.cfg.Cost, TxID: tx.id}, err)
		}
		return nil, s.keepDebit(tx, balance, err)
	}

	tx.to(StateCommitted)
	s.metrics.IncChatCommitted()
	s.events.Emit(events.Event{
		Type:      events.TypeCommit,
		TxID:      tx.id,
		AccountID: accountID,
		Balance:   balance,
	})

	return &ChatResult{
		Response:        text,
		TokensRemaining: balance,
		Record:          record,
	}, nil
}

// debit runs Checking → Debited or Checking → Rejected under the lock.
func (s *MeteringService) debit(ctx context.Context, tx *chatTx) (int64, error) {
	unlock, err := s.lock(ctx, tx.accountID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	balance, err := s.accounts.GetBalance(ctx, tx.accountID)
	if err != nil {
		return 0, s.storeErr("read balance", err)
	}
	if balance < s.cfg.Cost {
		return 0, s.reject(tx, balance)
	}

	balance, err = s.accounts.ApplyDelta(ctx, tx.accountID, -s.cfg.Cost)
	if err != nil {
		if errors.Is(err, store.ErrWouldGoNegative) {
			// Another writer outside this lock got there first.
			current, rerr := s.accounts.GetBalance(ctx, tx.accountID)
			if rerr != nil {
				return 0, s.storeErr("read balance", rerr)
			}
			return 0, s.reject(tx, current)
		}
		return 0, s.storeErr("debit balance", err)
	}

	tx.to(StateDebited)
	s.events.Emit(events.Event{
		Type:      events.TypeDebit,
		TxID:      tx.id,
		AccountID: tx.accountID,
		Amount:    -s.cfg.Cost,
		Balance:   balance,
	})
	return balance, nil
}

func (s *MeteringService) reject(tx *chatTx, balance int64) error {
	tx.to(StateRejected)
	s.metrics.IncChatRejected()
	s.events.Emit(events.Event{
		Type:      events.TypeRejected,
		TxID:      tx.id,
		AccountID: tx.accountID,
		Balance:   balance,
	})
	return &InsufficientBalanceError{Current: balance, Cost: s.cfg.Cost}
}

// keepDebit ends a transaction whose chat record may or may not have been
// written. The debit is kept and the transaction is flagged for
// reconciliation.
func (s *MeteringService) keepDebit(tx *chatTx, balance int64, err error) error {
	tx.to(StatePersistUnknown)
	tx.logger.Error("chat record outcome unknown, debit kept",
		"reconcile", true,
		"amount", s.cfg.Cost,
		"error", err,
	)
	s.events.Emit(events.Event{
		Type:      events.TypePersistUnknown,
		TxID:      tx.id,
		AccountID: tx.accountID,
		Amount:    -s.cfg.Cost,
		Balance:   balance,
		Detail:    err.Error(),
	})
	return &PersistError{Err: err, Amount: s.cfg.Cost, TxID: tx.id}
}

// rollback refunds the debit and returns failure, or a *RollbackFailedError
// if the refund itself fails. It runs on a context detached from the
// caller's cancellation.
func (s *MeteringService) rollback(parent context.Context, tx *chatTx, failure, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cfg.RollbackTimeout)
	defer cancel()

	balance, err := s.refund(ctx, tx.accountID)
	if err != nil {
		tx.to(StateRollbackFailed)
		s.metrics.IncRollbackFailed()
		tx.logger.Error("balance refund failed",
			"reconcile", true,
			"amount", s.cfg.Cost,
			"cause", cause,
			"error", err,
		)
		s.events.Emit(events.Event{
			Type:      events.TypeRollbackFailed,
			TxID:      tx.id,
			AccountID: tx.accountID,
			Amount:    s.cfg.Cost,
			Detail:    err.Error(),
		})
		return &RollbackFailedError{
			Cause:       cause,
			RollbackErr: err,
			AccountID:   tx.accountID,
			Amount:      s.cfg.Cost,
			TxID:        tx.id,
		}
	}

	tx.to(StateRolledBack)
	s.metrics.IncChatRolledBack()
	s.events.Emit(events.Event{
		Type:      events.TypeRefund,
		TxID:      tx.id,
		AccountID: tx.accountID,
		Amount:    s.cfg.Cost,
		Balance:   balance,
		Detail:    cause.Error(),
	})
	return failure
}

func (s *MeteringService) refund(ctx context.Context, accountID string) (int64, error) {
	unlock, err := s.lock(ctx, accountID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return s.accounts.ApplyDelta(ctx, accountID, s.cfg.Cost)
}

func (s *MeteringService) lock(ctx context.Context, accountID string) (lock.Unlock, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	defer cancel()

	unlock, err := s.locker.Lock(lockCtx, balanceLockKey(accountID))
	if err != nil {
		return nil, fmt.Errorf("acquire balance lock: %w", err)
	}
	return unlock, nil
}

func (s *MeteringService) storeErr(op string, err error) error {
	if errors.Is(err, store.ErrAccountNotFound) {
		return ErrAccountNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Balance returns the current balance without mutating anything.
func (s *MeteringService) Balance(ctx context.Context, accountID string) (int64, error) {
	balance, err := s.accounts.GetBalance(ctx, accountID)
	if err != nil {
		return 0, s.storeErr("read balance", err)
	}
	return balance, nil
}

// Adjust applies an operator correction under the same lock as chats.
// A correction that would make the balance negative is refused.
func (s *MeteringService) Adjust(ctx context.Context, accountID string, delta int64, reason string) (int64, error) {
	unlock, err := s.lock(ctx, accountID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	balance, err := s.accounts.ApplyDelta(ctx, accountID, delta)
	if err != nil {
		if errors.Is(err, store.ErrWouldGoNegative) {
			current, rerr := s.accounts.GetBalance(ctx, accountID)
			if rerr != nil {
				return 0, s.storeErr("read balance", rerr)
			}
			return 0, &InsufficientBalanceError{Current: current, Cost: -delta}
		}
		return 0, s.storeErr("adjust balance", err)
	}

	s.logger.Info("balance adjusted", "account_id", accountID, "delta", delta, "balance", balance, "reason", reason)
	s.events.Emit(events.Event{
		Type:      events.TypeAdjust,
		AccountID: accountID,
		Amount:    delta,
		Balance:   balance,
		Detail:    reason,
	})
	return balance, nil
}
