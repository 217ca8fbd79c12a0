package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"reward-engine/internal/model"
	"reward-engine/internal/repository"
)

// InvestmentService manages fixed-term investment plans: principal debit at
// creation, daily return accrual, completion at term, and cancellation.
type InvestmentService struct {
	pool        *pgxpool.Pool
	accounts    *repository.AccountRepository
	investments *repository.InvestmentRepository
	ledger      *repository.TransactionRepository
}

// NewInvestmentService creates a new InvestmentService instance.
func NewInvestmentService(
	pool *pgxpool.Pool,
	accounts *repository.AccountRepository,
	investments *repository.InvestmentRepository,
	ledger *repository.TransactionRepository,
) *InvestmentService {
	return &InvestmentService{
		pool:        pool,
		accounts:    accounts,
		investments: investments,
		ledger:      ledger,
	}
}

// Create debits the principal from the wallet and opens an active plan,
// atomically. The end date is derived from creation time and duration,
// never stored.
func (s *InvestmentService) Create(ctx context.Context, userID, amount, dailyRateBps int64, durationDays int) (*model.Investment, error) {
	if amount <= 0 || dailyRateBps <= 0 || durationDays <= 0 {
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
	if _, err := s.accounts.DebitWallet(ctx, tx, userID, amount); err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	inv, err := s.investments.Insert(ctx, tx, userID, amount, dailyRateBps, durationDays)
	if err != nil {
		return nil, err
	}

	desc := fmt.Sprintf("investment %d opened, %d days at %d bps/day", inv.ID, durationDays, dailyRateBps)
	if _, err := s.ledger.Append(ctx, tx, userID, -amount, model.CategoryInvestment, model.TxCompleted, desc); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit investment: %w", err)
	}
	return inv, nil
}

// AccrueReturns pays one day's return on every active plan that has not yet
// accrued today. Each plan accrues in its own transaction; one failure is
// logged and does not block the rest. Plans reaching their full duration
// are completed.
func (s *InvestmentService) AccrueReturns(ctx context.Context) (int, error) {
	now := timeNow()
	due, err := s.investments.ListDueForAccrual(ctx, now)
	if err != nil {
		return 0, err
	}

	accrued := 0
	for _, inv := range due {
		if err := s.accrueOne(ctx, inv.ID); err != nil {
			log.Error().Err(err).
				Int64("investment_id", inv.ID).
				Msg("investment accrual failed")
			continue
		}
		accrued++
	}
	return accrued, nil
}

func (s *InvestmentService) accrueOne(ctx context.Context, investmentID int64) error {
	now := timeNow()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := s.investments.GetForUpdate(ctx, tx, investmentID)
	if err != nil {
		return err
	}
	// Re-check under the lock: another run may have accrued already.
	if inv.Status != model.InvestmentActive {
		return nil
	}
	if inv.LastAccruedAt != nil {
		last := *inv.LastAccruedAt
		if last.Year() == now.Year() && last.YearDay() == now.YearDay() {
			return nil
		}
	}

	payout := inv.DailyReturn()
	if _, err := s.accounts.GetForUpdate(ctx, tx, inv.UserID); err != nil {
		return err
	}
	if _, err := s.accounts.CreditEarnings(ctx, tx, inv.UserID, payout); err != nil {
		return err
	}
	desc := fmt.Sprintf("investment %d daily return %d/%d", inv.ID, inv.DaysAccrued+1, inv.DurationDays)
	if _, err := s.ledger.Append(ctx, tx, inv.UserID, payout, model.CategoryInvestment, model.TxCompleted, desc); err != nil {
		return err
	}

	inv, err = s.investments.MarkAccrued(ctx, tx, inv.ID, payout, now)
	if err != nil {
		return err
	}
	if inv.DaysAccrued >= inv.DurationDays {
		if _, err := s.investments.UpdateStatus(ctx, tx, inv.ID, model.InvestmentCompleted); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Get returns an investment plan by id.
func (s *InvestmentService) Get(ctx context.Context, id int64) (*model.Investment, error) {
	return s.investments.GetByID(ctx, id)
}

// ListByUser returns a user's investment plans, newest first.
func (s *InvestmentService) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Investment, error) {
	return s.investments.GetByUserID(ctx, userID, limit)
}

// Cancel closes an active plan. The principal is refunded only if nothing
// has accrued yet; after the first payout the plan keeps its returns and
// forfeits the refund.
func (s *InvestmentService) Cancel(ctx context.Context, investmentID int64) (*model.Investment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := s.investments.GetForUpdate(ctx, tx, investmentID)
	if err != nil {
		return nil, err
	}
	if inv.Status != model.InvestmentActive {
		return nil, ErrInvestmentNotActive
	}

	if inv.DaysAccrued == 0 {
		if _, err := s.accounts.GetForUpdate(ctx, tx, inv.UserID); err != nil {
			return nil, err
		}
		if _, err := s.accounts.CreditWallet(ctx, tx, inv.UserID, inv.Amount); err != nil {
			return nil, err
		}
		desc := fmt.Sprintf("investment %d cancelled, principal refunded", inv.ID)
		if _, err := s.ledger.Append(ctx, tx, inv.UserID, inv.Amount, model.CategoryInvestment, model.TxCompleted, desc); err != nil {
			return nil, err
		}
	}

	updated, err := s.investments.UpdateStatus(ctx, tx, inv.ID, model.InvestmentCancelled)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return updated, nil
}
