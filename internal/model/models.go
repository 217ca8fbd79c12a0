// Package model defines the data records for the wallet ledger and reward engine.
package model

import "time"

// Account represents a user account with its monetary sub-balances.
// All amounts are in cents.
type Account struct {
	ID                  int64      `db:"id"`
	Phone               string     `db:"phone"`
	Name                string     `db:"name"`
	Level               int        `db:"level"`
	WalletBalance       int64      `db:"wallet_balance"`
	PersonalWallet      int64      `db:"personal_wallet"`
	IncomeWallet        int64      `db:"income_wallet"`
	TotalEarnings       int64      `db:"total_earnings"`
	TasksCompletedToday int        `db:"tasks_completed_today"`
	LastTaskReset       *time.Time `db:"last_task_reset"`
	InvitedBy           *int64     `db:"invited_by"`
	ReferralCode        string     `db:"referral_code"`
	Trial               bool       `db:"trial"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// TaskAttempt records a single task submission. The (user, task, day) tuple
// is unique and the row is immutable once written.
type TaskAttempt struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	TaskID     int64     `db:"task_id"`
	AttemptDay time.Time `db:"attempt_day"`
	Correct    bool      `db:"correct"`
	Reward     int64     `db:"reward"`
	CreatedAt  time.Time `db:"created_at"`
}

// Transaction is an append-only ledger log entry. Amount is signed: credits
// are positive, debits negative. Only Status may change after insert, and
// only for a small set of categories (payment confirmation).
type Transaction struct {
	ID          int64      `db:"id"`
	UserID      int64      `db:"user_id"`
	Amount      int64      `db:"amount"`
	Category    TxCategory `db:"category"`
	Status      TxStatus   `db:"status"`
	Description string     `db:"description"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// Withdrawal is a payout request with rail-dependent debit timing.
type Withdrawal struct {
	ID          int64            `db:"id"`
	UserID      int64            `db:"user_id"`
	Amount      int64            `db:"amount"`
	Rail        Rail             `db:"rail"`
	AccountRef  string           `db:"account_ref"`
	Status      WithdrawalStatus `db:"status"`
	Reference   string           `db:"reference"`
	Notes       string           `db:"notes"`
	RequestedAt time.Time        `db:"requested_at"`
	ProcessedAt *time.Time       `db:"processed_at"`
}

// Investment is a fixed-term plan. EndDate is derived from CreatedAt and
// DurationDays, never stored, so the two cannot drift apart.
type Investment struct {
	ID            int64            `db:"id"`
	UserID        int64            `db:"user_id"`
	Amount        int64            `db:"amount"`
	DailyRateBps  int64            `db:"daily_rate_bps"`
	DurationDays  int              `db:"duration_days"`
	DaysAccrued   int              `db:"days_accrued"`
	TotalReturned int64            `db:"total_returned"`
	Status        InvestmentStatus `db:"status"`
	LastAccruedAt *time.Time       `db:"last_accrued_at"`
	CreatedAt     time.Time        `db:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at"`
}

// EndDate returns the day the plan matures.
func (i *Investment) EndDate() time.Time {
	return i.CreatedAt.AddDate(0, 0, i.DurationDays)
}

// DailyReturn returns the per-day payout in cents, rounded down.
func (i *Investment) DailyReturn() int64 {
	return i.Amount * i.DailyRateBps / 10000
}
