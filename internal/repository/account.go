package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reward-engine/internal/model"
)

const accountColumns = `id, phone, name, level, wallet_balance, personal_wallet,
	income_wallet, total_earnings, tasks_completed_today, last_task_reset,
	invited_by, referral_code, trial, created_at, updated_at`

// AccountRepository handles account persistence, including the monetary
// sub-balances that only ever change inside a transaction.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository instance.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.Phone,
		&a.Name,
		&a.Level,
		&a.WalletBalance,
		&a.PersonalWallet,
		&a.IncomeWallet,
		&a.TotalEarnings,
		&a.TasksCompletedToday,
		&a.LastTaskReset,
		&a.InvitedBy,
		&a.ReferralCode,
		&a.Trial,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Create creates a new account at level 0 with all balances zero and a
// freshly minted referral code.
func (r *AccountRepository) Create(ctx context.Context, phone, name string, invitedBy *int64, trial bool) (*model.Account, error) {
	query := `
		INSERT INTO accounts (phone, name, level, wallet_balance, personal_wallet,
			income_wallet, total_earnings, tasks_completed_today, invited_by,
			referral_code, trial, created_at, updated_at)
		VALUES ($1, $2, 0, 0, 0, 0, 0, 0, $3, $4, $5, NOW(), NOW())
		RETURNING ` + accountColumns

	code := mintReferralCode()
	account, err := scanAccount(r.pool.QueryRow(ctx, query, phone, name, invitedBy, code, trial))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// mintReferralCode returns a short unique invite code.
func mintReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// GetByID retrieves an account by id.
// Returns ErrAccountNotFound if the account does not exist.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetByReferralCode resolves an inviter from an invite code.
func (r *AccountRepository) GetByReferralCode(ctx context.Context, code string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE referral_code = $1`

	account, err := scanAccount(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get account by referral code: %w", err)
	}
	return account, nil
}

// GetForUpdate retrieves an account inside the caller's transaction with a
// row lock, serializing concurrent balance mutations for the same user.
func (r *AccountRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	account, err := scanAccount(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return account, nil
}

// ApplyTaskReward credits income_wallet, wallet_balance, and total_earnings
// by reward and bumps the daily counter, all in one statement inside the
// caller's transaction.
func (r *AccountRepository) ApplyTaskReward(ctx context.Context, tx pgx.Tx, id int64, reward int64) (*model.Account, error) {
	query := `
		UPDATE accounts
		SET income_wallet = income_wallet + $2,
			wallet_balance = wallet_balance + $2,
			total_earnings = total_earnings + $2,
			tasks_completed_today = tasks_completed_today + 1,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(tx.QueryRow(ctx, query, id, reward))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to apply task reward: %w", err)
	}
	return account, nil
}

// IncrementTaskCounter bumps tasks_completed_today without touching any
// balance. Used for incorrect answers, which earn nothing.
func (r *AccountRepository) IncrementTaskCounter(ctx context.Context, tx pgx.Tx, id int64) (*model.Account, error) {
	query := `
		UPDATE accounts
		SET tasks_completed_today = tasks_completed_today + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to increment task counter: %w", err)
	}
	return account, nil
}

// CreditWallet adds amount to wallet_balance.
func (r *AccountRepository) CreditWallet(ctx context.Context, tx pgx.Tx, id int64, amount int64) (*model.Account, error) {
	query := `
		UPDATE accounts
		SET wallet_balance = wallet_balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(tx.QueryRow(ctx, query, id, amount))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}
	return account, nil
}

// CreditEarnings adds amount to both wallet_balance and total_earnings.
// Used for referral bonuses and investment returns.
func (r *AccountRepository) CreditEarnings(ctx context.Context, tx pgx.Tx, id int64, amount int64) (*model.Account, error) {
	query := `
		UPDATE accounts
		SET wallet_balance = wallet_balance + $2,
			total_earnings = total_earnings + $2,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(tx.QueryRow(ctx, query, id, amount))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to credit earnings: %w", err)
	}
	return account, nil
}

// DebitWallet subtracts amount from wallet_balance. The WHERE clause keeps
// the balance non-negative; zero rows affected means the funds were not
// there, reported as ErrInsufficientFunds. Callers should hold the row lock
// so the check and the write cannot interleave with another writer.
func (r *AccountRepository) DebitWallet(ctx context.Context, tx pgx.Tx, id int64, amount int64) (*model.Account, error) {
	query := `
		UPDATE accounts
		SET wallet_balance = wallet_balance - $2, updated_at = NOW()
		WHERE id = $1 AND wallet_balance >= $2
		RETURNING ` + accountColumns

	account, err := scanAccount(tx.QueryRow(ctx, query, id, amount))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInsufficientFunds
		}
		return nil, fmt.Errorf("failed to debit wallet: %w", err)
	}
	return account, nil
}

// CreditPersonalWallet adds amount to personal_wallet. Used when a recharge
// confirmation callback lands.
func (r *AccountRepository) CreditPersonalWallet(ctx context.Context, tx pgx.Tx, id int64, amount int64) (*model.Account, error) {
	query := `
		UPDATE accounts
		SET personal_wallet = personal_wallet + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(tx.QueryRow(ctx, query, id, amount))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to credit personal wallet: %w", err)
	}
	return account, nil
}

// SetLevel moves the account to a new tier inside the caller's transaction.
func (r *AccountRepository) SetLevel(ctx context.Context, tx pgx.Tx, id int64, level int) (*model.Account, error) {
	query := `
		UPDATE accounts
		SET level = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(tx.QueryRow(ctx, query, id, level))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to set level: %w", err)
	}
	return account, nil
}

// ResetDailyCounters zeroes tasks_completed_today for every account that has
// worked today and has not yet been reset for the given day. Running it
// twice on the same day touches no rows the second time.
func (r *AccountRepository) ResetDailyCounters(ctx context.Context, today time.Time) (int64, error) {
	const query = `
		UPDATE accounts
		SET tasks_completed_today = 0, last_task_reset = $1, updated_at = NOW()
		WHERE tasks_completed_today > 0
		  AND (last_task_reset IS NULL OR last_task_reset < $1)
	`

	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	tag, err := r.pool.Exec(ctx, query, day)
	if err != nil {
		return 0, fmt.Errorf("failed to reset daily counters: %w", err)
	}
	return tag.RowsAffected(), nil
}
