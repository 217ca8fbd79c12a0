package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"reward-engine/internal/calendar"
	"reward-engine/internal/model"
	"reward-engine/internal/policy"
	"reward-engine/internal/repository"
)

// TaskResult is the outcome of a recorded task attempt.
type TaskResult struct {
	Correct             bool
	Reward              int64 // cents actually credited; zero for incorrect answers
	TasksCompletedToday int
	WalletBalance       int64
	TotalEarnings       int64
}

// TaskService is the task completion engine. It validates one attempt per
// (user, task, day), computes the reward server-side from the policy table,
// and applies it to the ledger atomically with the attempt record.
type TaskService struct {
	pool      *pgxpool.Pool
	accounts  *repository.AccountRepository
	attempts  *repository.TaskAttemptRepository
	ledger    *repository.TransactionRepository
	gate      *calendar.Gate
	policy    *policy.Policy
	trialDays int
}

// NewTaskService creates a new TaskService instance.
func NewTaskService(
	pool *pgxpool.Pool,
	accounts *repository.AccountRepository,
	attempts *repository.TaskAttemptRepository,
	ledger *repository.TransactionRepository,
	gate *calendar.Gate,
	pol *policy.Policy,
	trialDays int,
) *TaskService {
	return &TaskService{
		pool:      pool,
		accounts:  accounts,
		attempts:  attempts,
		ledger:    ledger,
		gate:      gate,
		policy:    pol,
		trialDays: trialDays,
	}
}

// RecordAttempt records one task attempt for the user. The client's claimed
// reward is never trusted: the credited amount is recomputed from the
// user's current level, and a mismatch only produces a warning log. The
// quota check, attempt insert, and reward credit share one transaction
// under the account row lock, and the unique (user, task, day) index makes
// concurrent duplicates fail at write time regardless of any earlier read.
func (s *TaskService) RecordAttempt(ctx context.Context, userID, taskID int64, answer string, correct bool, claimedReward int64) (*TaskResult, error) {
	if taskID <= 0 || answer == "" {
		return nil, ErrValidation
	}

	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	now := timeNow()

	// Trial workers get a fixed number of days from registration; after
	// that, tasks require a paid tier. Checked before any ledger access.
	if account.Trial && account.Level == 0 && s.trialDays > 0 {
		if now.After(account.CreatedAt.AddDate(0, 0, s.trialDays)) {
			return nil, ErrUpgradeRequired
		}
	}

	if restriction := s.gate.Check(now); restriction.Restricted {
		return nil, fmt.Errorf("%w: %s", ErrRestricted, restriction.Reason)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Quota and level are read under the row lock: two concurrent attempts
	// on different tasks serialize here instead of both passing a stale
	// counter check.
	account, err = s.accounts.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	quota, ok := s.policy.DailyQuota(account.Level)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLevel, account.Level)
	}
	if account.TasksCompletedToday >= quota {
		return nil, ErrQuotaExhausted
	}

	reward, ok := s.policy.TaskReward(account.Level)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLevel, account.Level)
	}
	if claimedReward != reward {
		log.Warn().
			Int64("user_id", userID).
			Int64("task_id", taskID).
			Int64("claimed", claimedReward).
			Int64("computed", reward).
			Msg("client-claimed reward disagrees with policy, using policy value")
	}

	credited := int64(0)
	if correct {
		credited = reward
	}

	if _, err := s.attempts.Insert(ctx, tx, userID, taskID, now, correct, credited); err != nil {
		if errors.Is(err, repository.ErrDuplicateAttempt) {
			return nil, ErrAlreadyCompleted
		}
		return nil, err
	}

	var updated *model.Account
	if correct {
		updated, err = s.accounts.ApplyTaskReward(ctx, tx, userID, reward)
		if err != nil {
			return nil, err
		}
		desc := fmt.Sprintf("task %d reward at level %d", taskID, account.Level)
		if _, err := s.ledger.Append(ctx, tx, userID, reward, model.CategoryTask, model.TxCompleted, desc); err != nil {
			return nil, err
		}
	} else {
		updated, err = s.accounts.IncrementTaskCounter(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit task attempt: %w", err)
	}

	return &TaskResult{
		Correct:             correct,
		Reward:              credited,
		TasksCompletedToday: updated.TasksCompletedToday,
		WalletBalance:       updated.WalletBalance,
		TotalEarnings:       updated.TotalEarnings,
	}, nil
}
