package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"reward-engine/internal/calendar"
	"reward-engine/internal/config"
	"reward-engine/internal/model"
	"reward-engine/internal/pkg/expiry"
	"reward-engine/internal/pkg/lock"
	"reward-engine/internal/rail"
	"reward-engine/internal/repository"
)

// callbackDedupTTL bounds how long an applied rail callback shields the
// record from redeliveries of the same result.
const callbackDedupTTL = 10 * time.Minute

// WithdrawalService runs the withdrawal workflow: admission checks, the
// rail-dependent debit timing, the saga-style reversal when the external
// rail fails after a local debit, and the admin status transitions.
type WithdrawalService struct {
	pool        *pgxpool.Pool
	accounts    *repository.AccountRepository
	withdrawals *repository.WithdrawalRepository
	ledger      *repository.TransactionRepository
	gate        *calendar.Gate
	rail        rail.Rail
	cfg         config.WithdrawalConfig
	userLock    *lock.UserLock
	callbacks   expiry.Store
}

// NewWithdrawalService creates a new WithdrawalService instance.
func NewWithdrawalService(
	pool *pgxpool.Pool,
	accounts *repository.AccountRepository,
	withdrawals *repository.WithdrawalRepository,
	ledger *repository.TransactionRepository,
	gate *calendar.Gate,
	r rail.Rail,
	cfg config.WithdrawalConfig,
	userLock *lock.UserLock,
	callbacks expiry.Store,
) *WithdrawalService {
	return &WithdrawalService{
		pool:        pool,
		accounts:    accounts,
		withdrawals: withdrawals,
		ledger:      ledger,
		gate:        gate,
		rail:        r,
		cfg:         cfg,
		userLock:    userLock,
		callbacks:   callbacks,
	}
}

// Request admits and processes a withdrawal. Admission checks run in order,
// each a hard fail with its own reason. For instant rails the wallet is
// debited in the same transaction that moves the record to processing; the
// external rail is called only after that commit, and a rail failure
// triggers the mandatory compensating credit.
func (s *WithdrawalService) Request(ctx context.Context, userID, amount int64, railType model.Rail, accountRef string) (*model.Withdrawal, error) {
	if !railType.Valid() {
		return nil, ErrInvalidRail
	}
	if amount <= 0 || accountRef == "" {
		return nil, ErrValidation
	}

	now := timeNow()
	if restriction := s.gate.Check(now); restriction.Restricted {
		return nil, fmt.Errorf("%w: %s", ErrRestricted, restriction.Reason)
	}
	if now.Hour() < s.cfg.OpenHour || now.Hour() >= s.cfg.CloseHour {
		return nil, ErrOutsideWindow
	}

	// The in-process lock serializes the debit / rail-call / reversal
	// sequence per user; the row lock inside the transaction remains the
	// cross-process authority.
	s.userLock.Lock(userID)
	defer s.userLock.Unlock(userID)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	account, err := s.accounts.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	// The already-requested-today read shares the transaction with the
	// insert below; two simultaneous requests serialize on the row lock.
	count, err := s.withdrawals.CountRequestedOnDay(ctx, tx, userID, now)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrWithdrawalLimit
	}
	if amount < s.cfg.MinAmount {
		return nil, ErrBelowMinimum
	}
	if account.WalletBalance < amount {
		return nil, ErrInsufficientFunds
	}

	reference := uuid.NewString()
	w, err := s.withdrawals.Insert(ctx, tx, userID, amount, railType, accountRef, reference)
	if err != nil {
		return nil, err
	}

	if railType.Instant() {
		if _, err := s.accounts.DebitWallet(ctx, tx, userID, amount); err != nil {
			if errors.Is(err, repository.ErrInsufficientFunds) {
				return nil, ErrInsufficientFunds
			}
			return nil, err
		}
		desc := fmt.Sprintf("withdrawal %s to %s", reference, accountRef)
		if _, err := s.ledger.Append(ctx, tx, userID, -amount, model.CategoryWithdrawal, model.TxCompleted, desc); err != nil {
			return nil, err
		}
		w, err = s.withdrawals.UpdateStatus(ctx, tx, w.ID, model.WithdrawalProcessing, "")
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit withdrawal request: %w", err)
	}

	// Manual rails stop here: no debit until an administrator completes
	// the request.
	if !railType.Instant() {
		return w, nil
	}

	railRef, railErr := s.disburse(ctx, accountRef, amount, reference)
	if railErr != nil {
		log.Error().Err(railErr).
			Int64("withdrawal_id", w.ID).
			Int64("user_id", userID).
			Msg("rail disbursement failed, reversing debit")
		if revErr := s.reverse(ctx, w.ID, "rail failure"); revErr != nil {
			return nil, fmt.Errorf("rail failed and reversal failed: %w", revErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrRailFailure, railErr)
	}

	tx2, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx2.Rollback(ctx)

	w, err = s.withdrawals.UpdateStatus(ctx, tx2, w.ID, model.WithdrawalCompleted, "rail ref "+railRef)
	if err != nil {
		return nil, err
	}
	if err := tx2.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit withdrawal completion: %w", err)
	}

	return w, nil
}

// disburse calls the external rail, converting a panic into an error so a
// misbehaving gateway client still gets the compensating reversal.
func (s *WithdrawalService) disburse(ctx context.Context, accountRef string, amount int64, remarks string) (ref string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rail panic: %v", r)
		}
	}()
	return s.rail.Disburse(ctx, accountRef, amount, remarks)
}

// reverse credits the wallet back by the withdrawal amount and moves the
// record to rejected, in one transaction. The debit-then-refund pair must
// stay symmetric: a debit without a matching refund on failure loses funds.
func (s *WithdrawalService) reverse(ctx context.Context, withdrawalID int64, note string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	w, err := s.withdrawals.GetForUpdate(ctx, tx, withdrawalID)
	if err != nil {
		return err
	}
	if !w.Status.CanTransition(model.WithdrawalRejected) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.Status, model.WithdrawalRejected)
	}

	if _, err := s.accounts.GetForUpdate(ctx, tx, w.UserID); err != nil {
		return err
	}
	if _, err := s.accounts.CreditWallet(ctx, tx, w.UserID, w.Amount); err != nil {
		return err
	}
	desc := fmt.Sprintf("withdrawal %s reversal", w.Reference)
	if _, err := s.ledger.Append(ctx, tx, w.UserID, w.Amount, model.CategoryWithdrawal, model.TxCompleted, desc); err != nil {
		return err
	}
	if _, err := s.withdrawals.UpdateStatus(ctx, tx, w.ID, model.WithdrawalRejected, note); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ApplyTransition is the admin surface: it moves a withdrawal to a new
// status and applies the balance rules that go with the move. A manual-rail
// pending -> completed debits at that moment, since bank funds were never
// pre-deducted. Any move to failed/rejected from a funds-deducted state
// credits the wallet back exactly once; terminal states are never
// re-entered, so the reversal cannot double-fire.
func (s *WithdrawalService) ApplyTransition(ctx context.Context, withdrawalID int64, newStatus model.WithdrawalStatus, note string) (*model.Withdrawal, error) {
	if !newStatus.Valid() {
		return nil, ErrValidation
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	w, err := s.withdrawals.GetForUpdate(ctx, tx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if !w.Status.CanTransition(newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.Status, newStatus)
	}

	if _, err := s.accounts.GetForUpdate(ctx, tx, w.UserID); err != nil {
		return nil, err
	}

	deducted := model.FundsDeducted(w.Rail, w.Status)

	switch {
	case newStatus == model.WithdrawalCompleted && !deducted:
		// Deferred-debit rail reaching completion: the money moves now.
		if _, err := s.accounts.DebitWallet(ctx, tx, w.UserID, w.Amount); err != nil {
			if errors.Is(err, repository.ErrInsufficientFunds) {
				return nil, ErrInsufficientFunds
			}
			return nil, err
		}
		desc := fmt.Sprintf("withdrawal %s completed", w.Reference)
		if _, err := s.ledger.Append(ctx, tx, w.UserID, -w.Amount, model.CategoryWithdrawal, model.TxCompleted, desc); err != nil {
			return nil, err
		}

	case (newStatus == model.WithdrawalFailed || newStatus == model.WithdrawalRejected) && deducted:
		if _, err := s.accounts.CreditWallet(ctx, tx, w.UserID, w.Amount); err != nil {
			return nil, err
		}
		desc := fmt.Sprintf("withdrawal %s reversal", w.Reference)
		if _, err := s.ledger.Append(ctx, tx, w.UserID, w.Amount, model.CategoryWithdrawal, model.TxCompleted, desc); err != nil {
			return nil, err
		}
	}

	updated, err := s.withdrawals.UpdateStatus(ctx, tx, w.ID, newStatus, note)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit status transition: %w", err)
	}

	return updated, nil
}

// ApplyRailCallback applies an asynchronous rail result to the matching
// withdrawal. A callback that matches the record's current state is a
// no-op, so redelivered callbacks are harmless; recently applied results
// are additionally absorbed by the dedup cache before any row lock is
// taken, since gateways retry aggressively.
func (s *WithdrawalService) ApplyRailCallback(ctx context.Context, reference string, success bool, note string) (*model.Withdrawal, error) {
	dedupKey := fmt.Sprintf("railcb:%s:%t", reference, success)
	if _, seen := s.callbacks.Get(dedupKey); seen {
		return s.withdrawals.GetByReference(ctx, reference)
	}

	w, err := s.withdrawals.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	target := model.WithdrawalCompleted
	if !success {
		target = model.WithdrawalRejected
	}
	if w.Status == target {
		s.callbacks.Set(dedupKey, string(target), callbackDedupTTL)
		return w, nil
	}

	updated, err := s.ApplyTransition(ctx, w.ID, target, note)
	if err != nil {
		return nil, err
	}
	s.callbacks.Set(dedupKey, string(target), callbackDedupTTL)
	return updated, nil
}

// Get returns a withdrawal request by id.
func (s *WithdrawalService) Get(ctx context.Context, id int64) (*model.Withdrawal, error) {
	return s.withdrawals.GetByID(ctx, id)
}
