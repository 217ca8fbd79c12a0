package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"reward-engine/internal/model"
	"reward-engine/internal/repository"
)

// AccountService handles registration, recharges, and account reads.
// Credential checks live in the authentication collaborator; this service
// only mints the account record and applies confirmed top-ups.
type AccountService struct {
	pool     *pgxpool.Pool
	accounts *repository.AccountRepository
	ledger   *repository.TransactionRepository
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	pool *pgxpool.Pool,
	accounts *repository.AccountRepository,
	ledger *repository.TransactionRepository,
) *AccountService {
	return &AccountService{pool: pool, accounts: accounts, ledger: ledger}
}

// Register creates an account at level 0 with zero balances and a minted
// referral code. inviterCode, when non-empty, must resolve to an existing
// account; the back-reference is set once here and never mutated.
func (s *AccountService) Register(ctx context.Context, phone, name, inviterCode string, trial bool) (*model.Account, error) {
	if phone == "" || name == "" {
		return nil, ErrValidation
	}

	var invitedBy *int64
	if inviterCode != "" {
		inviter, err := s.accounts.GetByReferralCode(ctx, inviterCode)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return nil, ErrReferralCodeNotFound
			}
			return nil, fmt.Errorf("failed to resolve inviter: %w", err)
		}
		invitedBy = &inviter.ID
	}

	account, err := s.accounts.Create(ctx, phone, name, invitedBy, trial)
	if err != nil {
		return nil, fmt.Errorf("failed to register account: %w", err)
	}
	return account, nil
}

// ApplyRecharge lands a confirmed top-up in the personal wallet and records
// it in the log. Recharges never touch wallet_balance, so they stay out of
// the earnings reconciliation.
func (s *AccountService) ApplyRecharge(ctx context.Context, userID, amount int64, reference string) (*model.Account, error) {
	if amount <= 0 || reference == "" {
		return nil, ErrValidation
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.accounts.GetForUpdate(ctx, tx, userID); err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	account, err := s.accounts.CreditPersonalWallet(ctx, tx, userID, amount)
	if err != nil {
		return nil, err
	}
	desc := fmt.Sprintf("recharge %s", reference)
	if _, err := s.ledger.Append(ctx, tx, userID, amount, model.CategoryRecharge, model.TxCompleted, desc); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit recharge: %w", err)
	}
	return account, nil
}

// Get returns an account by id.
func (s *AccountService) Get(ctx context.Context, id int64) (*model.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

// Statement returns a user's recent ledger entries.
func (s *AccountService) Statement(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	return s.ledger.GetByUserID(ctx, userID, limit)
}

// DailyEarnings returns a user's earnings for the current day, aggregated
// from the ledger log.
func (s *AccountService) DailyEarnings(ctx context.Context, userID int64) (int64, error) {
	return s.ledger.DailyEarnings(ctx, userID, timeNow())
}
