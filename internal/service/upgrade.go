package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"reward-engine/internal/model"
	"reward-engine/internal/policy"
	"reward-engine/internal/repository"
)

// UpgradeResult is the outcome of a successful level upgrade.
type UpgradeResult struct {
	Level         int
	Cost          int64
	WalletBalance int64
}

// UpgradeService is the level upgrade engine: it validates affordability
// and monotonic progression, debits the ledger, and then triggers the
// referral cascade as a best-effort follow-up.
type UpgradeService struct {
	pool      *pgxpool.Pool
	accounts  *repository.AccountRepository
	ledger    *repository.TransactionRepository
	referrals *ReferralService
	policy    *policy.Policy
}

// NewUpgradeService creates a new UpgradeService instance.
func NewUpgradeService(
	pool *pgxpool.Pool,
	accounts *repository.AccountRepository,
	ledger *repository.TransactionRepository,
	referrals *ReferralService,
	pol *policy.Policy,
) *UpgradeService {
	return &UpgradeService{
		pool:      pool,
		accounts:  accounts,
		ledger:    ledger,
		referrals: referrals,
		policy:    pol,
	}
}

// Upgrade moves the user to targetLevel. The claimed cost must equal the
// recomputed tier cost, blocking client-side tampering. Debit, level set,
// and ledger entry share one transaction; the referral cascade runs after
// commit in its own transaction and its failure never rolls the upgrade
// back, only logs.
func (s *UpgradeService) Upgrade(ctx context.Context, userID int64, targetLevel int, claimedCost int64) (*UpgradeResult, error) {
	cost, ok := s.policy.UpgradeCost(targetLevel)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLevel, targetLevel)
	}
	if cost != claimedCost {
		return nil, ErrCostMismatch
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	account, err := s.accounts.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	// Levels only ever move up: no downgrade, no same-level re-purchase.
	if targetLevel <= account.Level {
		return nil, ErrNotAnUpgrade
	}
	if !s.policy.JumpAllowed(account.Level, targetLevel) {
		return nil, ErrLevelJumpNotAllowed
	}
	if account.WalletBalance < cost {
		return nil, ErrInsufficientFunds
	}

	if _, err := s.accounts.DebitWallet(ctx, tx, userID, cost); err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	updated, err := s.accounts.SetLevel(ctx, tx, userID, targetLevel)
	if err != nil {
		return nil, err
	}

	desc := fmt.Sprintf("level upgrade %d -> %d", account.Level, targetLevel)
	if _, err := s.ledger.Append(ctx, tx, userID, -cost, model.CategoryUpgrade, model.TxCompleted, desc); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit upgrade: %w", err)
	}

	// Best-effort side effect: a missed bonus is correctable later, while
	// rolling back a paid upgrade is not.
	if err := s.referrals.AwardBonus(ctx, userID, targetLevel); err != nil {
		log.Error().Err(err).
			Int64("user_id", userID).
			Int("level", targetLevel).
			Msg("referral cascade failed after upgrade")
	}

	return &UpgradeResult{
		Level:         updated.Level,
		Cost:          cost,
		WalletBalance: updated.WalletBalance,
	}, nil
}
