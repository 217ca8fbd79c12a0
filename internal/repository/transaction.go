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

const txColumns = `id, user_id, amount, category, status, description, created_at, updated_at`

// TransactionRepository handles the append-only ledger log. Entries are
// never deleted; only a small set of categories allows status updates.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Amount,
		&t.Category,
		&t.Status,
		&t.Description,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Append writes a new ledger log entry. It takes a Querier so the entry can
// land in the same transaction as the balance change it records.
func (r *TransactionRepository) Append(ctx context.Context, q Querier, userID, amount int64, category model.TxCategory, status model.TxStatus, description string) (*model.Transaction, error) {
	query := `
		INSERT INTO transactions (user_id, amount, category, status, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING ` + txColumns

	entry, err := scanTransaction(q.QueryRow(ctx, query, userID, amount, category, status, description))
	if err != nil {
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}
	return entry, nil
}

// GetByID retrieves a single log entry.
func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*model.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE id = $1`

	entry, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return entry, nil
}

// UpdateStatus performs a status-only transition on an existing entry.
// Only categories whose StatusMutable is true accept it; everything else
// is immutable and returns ErrImmutableEntry.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id int64, status model.TxStatus) (*model.Transaction, error) {
	entry, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entry.Category.StatusMutable() {
		return nil, ErrImmutableEntry
	}

	query := `
		UPDATE transactions
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + txColumns

	updated, err := scanTransaction(r.pool.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}
	return updated, nil
}

// GetByUserID retrieves a user's log entries, newest first.
func (r *TransactionRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var entries []*model.Transaction
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return entries, nil
}

// ExistsReferralBonus reports whether a referral bonus entry with the given
// description key already exists for the inviter. Called inside the same
// transaction as the credit, with the inviter row locked, so two concurrent
// cascade triggers cannot both pass the check.
func (r *TransactionRepository) ExistsReferralBonus(ctx context.Context, tx pgx.Tx, inviterID int64, key string) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM transactions
			WHERE user_id = $1 AND category = $2 AND description = $3
		)
	`

	var exists bool
	err := tx.QueryRow(ctx, query, inviterID, model.CategoryReferral, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check referral bonus: %w", err)
	}
	return exists, nil
}

// SumWalletDeltas returns the sum of every wallet-affecting log amount for
// a user. Recharges land in the personal wallet and are excluded. The
// result must always equal the account's current wallet_balance.
func (r *TransactionRepository) SumWalletDeltas(ctx context.Context, userID int64) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = $1 AND category <> $2
	`

	var sum int64
	err := r.pool.QueryRow(ctx, query, userID, model.CategoryRecharge).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum wallet deltas: %w", err)
	}
	return sum, nil
}

// EarningsBetween sums positive earning entries (task rewards, referral
// bonuses, investment returns, other bonuses) in [from, to).
func (r *TransactionRepository) EarningsBetween(ctx context.Context, userID int64, from, to time.Time) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = $1
		  AND amount > 0
		  AND category = ANY($2)
		  AND created_at >= $3
		  AND created_at < $4
	`

	categories := []string{
		string(model.CategoryTask),
		string(model.CategoryReferral),
		string(model.CategoryBonus),
		string(model.CategoryInvestment),
	}

	var sum int64
	err := r.pool.QueryRow(ctx, query, userID, categories, from, to).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum earnings: %w", err)
	}
	return sum, nil
}

// DailyEarnings sums a user's earnings for one calendar day.
func (r *TransactionRepository) DailyEarnings(ctx context.Context, userID int64, date time.Time) (int64, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return r.EarningsBetween(ctx, userID, start, start.Add(24*time.Hour))
}
