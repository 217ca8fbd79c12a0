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

const withdrawalColumns = `id, user_id, amount, rail, account_ref, status,
	reference, notes, requested_at, processed_at`

// WithdrawalRepository handles withdrawal request persistence.
type WithdrawalRepository struct {
	pool *pgxpool.Pool
}

// NewWithdrawalRepository creates a new WithdrawalRepository instance.
func NewWithdrawalRepository(pool *pgxpool.Pool) *WithdrawalRepository {
	return &WithdrawalRepository{pool: pool}
}

func scanWithdrawal(row pgx.Row) (*model.Withdrawal, error) {
	var w model.Withdrawal
	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.Amount,
		&w.Rail,
		&w.AccountRef,
		&w.Status,
		&w.Reference,
		&w.Notes,
		&w.RequestedAt,
		&w.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &w, nil
}

// Insert creates a pending withdrawal request inside the caller's
// transaction, so it shares atomicity with the once-per-day check.
func (r *WithdrawalRepository) Insert(ctx context.Context, tx pgx.Tx, userID, amount int64, rail model.Rail, accountRef, reference string) (*model.Withdrawal, error) {
	query := `
		INSERT INTO withdrawals (user_id, amount, rail, account_ref, status,
			reference, notes, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', NOW())
		RETURNING ` + withdrawalColumns

	w, err := scanWithdrawal(tx.QueryRow(ctx, query, userID, amount, rail, accountRef, model.WithdrawalPending, reference))
	if err != nil {
		return nil, fmt.Errorf("failed to insert withdrawal: %w", err)
	}
	return w, nil
}

// CountRequestedOnDay counts the user's withdrawal requests made on the
// given calendar day. Must run in the same transaction as the insert of a
// new request, with the account row locked, so two simultaneous requests
// cannot both see a zero count.
func (r *WithdrawalRepository) CountRequestedOnDay(ctx context.Context, tx pgx.Tx, userID int64, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())

	const query = `
		SELECT COUNT(*) FROM withdrawals
		WHERE user_id = $1 AND requested_at >= $2 AND requested_at < $3
	`

	var count int
	err := tx.QueryRow(ctx, query, userID, start, start.Add(24*time.Hour)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count withdrawals: %w", err)
	}
	return count, nil
}

// GetByID retrieves a withdrawal request.
func (r *WithdrawalRepository) GetByID(ctx context.Context, id int64) (*model.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`

	w, err := scanWithdrawal(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrWithdrawalNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return w, nil
}

// GetForUpdate retrieves a withdrawal request with a row lock inside the
// caller's transaction, serializing status transitions.
func (r *WithdrawalRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1 FOR UPDATE`

	w, err := scanWithdrawal(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrWithdrawalNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to lock withdrawal: %w", err)
	}
	return w, nil
}

// GetByReference resolves a withdrawal from the rail's conversation id,
// used when an asynchronous rail callback lands.
func (r *WithdrawalRepository) GetByReference(ctx context.Context, reference string) (*model.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE reference = $1`

	w, err := scanWithdrawal(r.pool.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, ErrWithdrawalNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get withdrawal by reference: %w", err)
	}
	return w, nil
}

// UpdateStatus moves a withdrawal to a new status, appending a note and
// stamping processed_at. Runs inside the caller's transaction alongside any
// balance change the transition requires.
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status model.WithdrawalStatus, note string) (*model.Withdrawal, error) {
	query := `
		UPDATE withdrawals
		SET status = $2,
			notes = CASE WHEN $3 = '' THEN notes ELSE TRIM(notes || ' ' || $3) END,
			processed_at = NOW()
		WHERE id = $1
		RETURNING ` + withdrawalColumns

	w, err := scanWithdrawal(tx.QueryRow(ctx, query, id, status, note))
	if err != nil {
		if errors.Is(err, ErrWithdrawalNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update withdrawal status: %w", err)
	}
	return w, nil
}

// GetByUserID lists a user's withdrawal requests, newest first.
func (r *WithdrawalRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*model.Withdrawal, error) {
	query := `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE user_id = $1
		ORDER BY requested_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []*model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawals: %w", err)
	}

	return withdrawals, nil
}
