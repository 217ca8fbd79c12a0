package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reward-engine/internal/model"
)

const investmentColumns = `id, user_id, amount, daily_rate_bps, duration_days,
	days_accrued, total_returned, status, last_accrued_at, created_at, updated_at`

// InvestmentRepository handles investment plan persistence.
type InvestmentRepository struct {
	pool *pgxpool.Pool
}

// NewInvestmentRepository creates a new InvestmentRepository instance.
func NewInvestmentRepository(pool *pgxpool.Pool) *InvestmentRepository {
	return &InvestmentRepository{pool: pool}
}

func scanInvestment(row pgx.Row) (*model.Investment, error) {
	var inv model.Investment
	err := row.Scan(
		&inv.ID,
		&inv.UserID,
		&inv.Amount,
		&inv.DailyRateBps,
		&inv.DurationDays,
		&inv.DaysAccrued,
		&inv.TotalReturned,
		&inv.Status,
		&inv.LastAccruedAt,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvestmentNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// Insert creates an active investment inside the caller's transaction,
// sharing atomicity with the principal debit.
func (r *InvestmentRepository) Insert(ctx context.Context, tx pgx.Tx, userID, amount, dailyRateBps int64, durationDays int) (*model.Investment, error) {
	query := `
		INSERT INTO investments (user_id, amount, daily_rate_bps, duration_days,
			days_accrued, total_returned, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, $5, NOW(), NOW())
		RETURNING ` + investmentColumns

	inv, err := scanInvestment(tx.QueryRow(ctx, query, userID, amount, dailyRateBps, durationDays, model.InvestmentActive))
	if err != nil {
		return nil, fmt.Errorf("failed to insert investment: %w", err)
	}
	return inv, nil
}

// GetByID retrieves an investment plan.
func (r *InvestmentRepository) GetByID(ctx context.Context, id int64) (*model.Investment, error) {
	query := `SELECT ` + investmentColumns + ` FROM investments WHERE id = $1`

	inv, err := scanInvestment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrInvestmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get investment: %w", err)
	}
	return inv, nil
}

// GetForUpdate retrieves an investment with a row lock inside the caller's
// transaction.
func (r *InvestmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Investment, error) {
	query := `SELECT ` + investmentColumns + ` FROM investments WHERE id = $1 FOR UPDATE`

	inv, err := scanInvestment(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrInvestmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to lock investment: %w", err)
	}
	return inv, nil
}

// ListDueForAccrual returns active plans that have not yet accrued for the
// given day.
func (r *InvestmentRepository) ListDueForAccrual(ctx context.Context, day time.Time) ([]*model.Investment, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())

	query := `
		SELECT ` + investmentColumns + `
		FROM investments
		WHERE status = $1
		  AND (last_accrued_at IS NULL OR last_accrued_at < $2)
		ORDER BY id ASC
	`

	rows, err := r.pool.Query(ctx, query, model.InvestmentActive, start)
	if err != nil {
		return nil, fmt.Errorf("failed to list investments due for accrual: %w", err)
	}
	defer rows.Close()

	var due []*model.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		due = append(due, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating investments: %w", err)
	}

	return due, nil
}

// MarkAccrued records one day's payout against the plan inside the
// caller's transaction.
func (r *InvestmentRepository) MarkAccrued(ctx context.Context, tx pgx.Tx, id int64, payout int64, at time.Time) (*model.Investment, error) {
	query := `
		UPDATE investments
		SET days_accrued = days_accrued + 1,
			total_returned = total_returned + $2,
			last_accrued_at = $3,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + investmentColumns

	inv, err := scanInvestment(tx.QueryRow(ctx, query, id, payout, at))
	if err != nil {
		if errors.Is(err, ErrInvestmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to mark investment accrued: %w", err)
	}
	return inv, nil
}

// UpdateStatus moves a plan to a new lifecycle status inside the caller's
// transaction.
func (r *InvestmentRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status model.InvestmentStatus) (*model.Investment, error) {
	query := `
		UPDATE investments
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + investmentColumns

	inv, err := scanInvestment(tx.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, ErrInvestmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update investment status: %w", err)
	}
	return inv, nil
}

// GetByUserID lists a user's investments, newest first.
func (r *InvestmentRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*model.Investment, error) {
	query := `
		SELECT ` + investmentColumns + `
		FROM investments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get investments: %w", err)
	}
	defer rows.Close()

	var investments []*model.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		investments = append(investments, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating investments: %w", err)
	}

	return investments, nil
}
