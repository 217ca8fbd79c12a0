// Package service tests run the full engine stack against a PostgreSQL
// container: repositories, transactions, and row locks are real, only the
// clock and the payout rail are faked.
package service

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"reward-engine/internal/calendar"
	"reward-engine/internal/config"
	"reward-engine/internal/model"
	"reward-engine/internal/pkg/expiry"
	"reward-engine/internal/pkg/lock"
	"reward-engine/internal/policy"
	"reward-engine/internal/repository"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = applySchema(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// applySchema creates the tables the engines operate on
func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGSERIAL PRIMARY KEY,
			phone VARCHAR(32) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL,
			level INT NOT NULL DEFAULT 0,
			wallet_balance BIGINT NOT NULL DEFAULT 0 CHECK (wallet_balance >= 0),
			personal_wallet BIGINT NOT NULL DEFAULT 0,
			income_wallet BIGINT NOT NULL DEFAULT 0,
			total_earnings BIGINT NOT NULL DEFAULT 0,
			tasks_completed_today INT NOT NULL DEFAULT 0,
			last_task_reset DATE,
			invited_by BIGINT REFERENCES accounts(id),
			referral_code VARCHAR(20) NOT NULL UNIQUE,
			trial BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			category VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS task_attempts (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			task_id BIGINT NOT NULL,
			attempt_day DATE NOT NULL,
			correct BOOLEAN NOT NULL,
			reward BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT uq_task_attempt UNIQUE (user_id, task_id, attempt_day)
		)`,
		`CREATE TABLE IF NOT EXISTS withdrawals (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			rail VARCHAR(20) NOT NULL,
			account_ref VARCHAR(64) NOT NULL,
			status VARCHAR(20) NOT NULL,
			reference VARCHAR(64) NOT NULL UNIQUE,
			notes TEXT NOT NULL DEFAULT '',
			requested_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS investments (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			daily_rate_bps BIGINT NOT NULL,
			duration_days INT NOT NULL,
			days_accrued INT NOT NULL DEFAULT 0,
			total_returned BIGINT NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL,
			last_accrued_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// fakeRail records disbursement calls and fails on demand.
type fakeRail struct {
	failWith error
	calls    int
}

func (f *fakeRail) Disburse(_ context.Context, _ string, _ int64, _ string) (string, error) {
	f.calls++
	if f.failWith != nil {
		return "", f.failWith
	}
	return fmt.Sprintf("rail-%d", f.calls), nil
}

// fixture wires every engine over one pool, with a fixed clock.
type fixture struct {
	pool        *pgxpool.Pool
	accounts    *repository.AccountRepository
	ledger      *repository.TransactionRepository
	rail        *fakeRail
	accountSvc  *AccountService
	tasks       *TaskService
	upgrades    *UpgradeService
	referrals   *ReferralService
	withdrawals *WithdrawalService
	investments *InvestmentService
	resets      *ResetService
}

func newFixture(t *testing.T, pool *pgxpool.Pool) *fixture {
	t.Helper()

	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	pol, err := policy.FromConfig(cfg.Levels)
	require.NoError(t, err)
	gate, err := calendar.New(config.CalendarConfig{
		RestWeekday: int(time.Sunday),
		Holidays: map[string][]config.Holiday{
			"2026": {{Date: "2026-12-25", Name: "Christmas"}},
		},
	})
	require.NoError(t, err)

	accounts := repository.NewAccountRepository(pool)
	ledger := repository.NewTransactionRepository(pool)
	attempts := repository.NewTaskAttemptRepository(pool)
	wdRepo := repository.NewWithdrawalRepository(pool)
	invRepo := repository.NewInvestmentRepository(pool)

	fr := &fakeRail{}
	referrals := NewReferralService(pool, accounts, ledger, pol)
	callbacks := expiry.NewMemoryStore(time.Minute)
	t.Cleanup(callbacks.Close)

	return &fixture{
		pool:       pool,
		accounts:   accounts,
		ledger:     ledger,
		rail:       fr,
		accountSvc: NewAccountService(pool, accounts, ledger),
		tasks:      NewTaskService(pool, accounts, attempts, ledger, gate, pol, cfg.Trial.Days),
		upgrades:   NewUpgradeService(pool, accounts, ledger, referrals, pol),
		referrals:  referrals,
		withdrawals: NewWithdrawalService(
			pool, accounts, wdRepo, ledger, gate, fr, cfg.Withdrawal, lock.NewUserLock(), callbacks),
		investments: NewInvestmentService(pool, accounts, invRepo, ledger),
		resets:      NewResetService(accounts),
	}
}

// setClock pins the service clock and restores it when the test ends.
func setClock(t *testing.T, at time.Time) {
	t.Helper()
	timeNow = func() time.Time { return at }
	t.Cleanup(func() { timeNow = time.Now })
}

// workday is a Tuesday at noon, inside the withdrawal window.
var workday = time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

// fund credits the wallet directly, outside any engine.
func (f *fixture) fund(t *testing.T, userID, amount int64) {
	t.Helper()
	ctx := context.Background()
	tx, err := f.pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	_, err = f.accounts.CreditWallet(ctx, tx, userID, amount)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
}

func (f *fixture) setLevel(t *testing.T, userID int64, level int) {
	t.Helper()
	ctx := context.Background()
	tx, err := f.pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	_, err = f.accounts.SetLevel(ctx, tx, userID, level)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
}

func (f *fixture) balance(t *testing.T, userID int64) *model.Account {
	t.Helper()
	account, err := f.accounts.GetByID(context.Background(), userID)
	require.NoError(t, err)
	return account
}

// ============================================================================
// Task engine
// ============================================================================

func TestTaskService_CorrectAnswerPaysPolicyReward(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)

	// Level 0 pays 700 regardless of what the client claims.
	res, err := f.tasks.RecordAttempt(ctx, account.ID, 3, "B", true, 999999)
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.Equal(t, int64(700), res.Reward)
	assert.Equal(t, 1, res.TasksCompletedToday)
	assert.Equal(t, int64(700), res.WalletBalance)
	assert.Equal(t, int64(700), res.TotalEarnings)

	updated := f.balance(t, account.ID)
	assert.Equal(t, int64(700), updated.WalletBalance)
	assert.Equal(t, int64(700), updated.IncomeWallet)
	assert.Equal(t, int64(700), updated.TotalEarnings)

	entries, err := f.ledger.GetByUserID(ctx, account.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.CategoryTask, entries[0].Category)
	assert.Equal(t, int64(700), entries[0].Amount)
}

func TestTaskService_RepeatAttemptRejected(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)

	_, err = f.tasks.RecordAttempt(ctx, account.ID, 3, "B", true, 0)
	require.NoError(t, err)

	// Same task, same day: refused with no balance change.
	_, err = f.tasks.RecordAttempt(ctx, account.ID, 3, "B", true, 0)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	updated := f.balance(t, account.ID)
	assert.Equal(t, int64(700), updated.WalletBalance)
	assert.Equal(t, 1, updated.TasksCompletedToday)
}

func TestTaskService_WrongAnswerBurnsAttempt(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)

	res, err := f.tasks.RecordAttempt(ctx, account.ID, 3, "C", false, 0)
	require.NoError(t, err)
	assert.False(t, res.Correct)
	assert.Equal(t, int64(0), res.Reward)
	assert.Equal(t, 1, res.TasksCompletedToday)
	assert.Equal(t, int64(0), res.WalletBalance)

	// The burned attempt still blocks a retry on the same task.
	_, err = f.tasks.RecordAttempt(ctx, account.ID, 3, "B", true, 0)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestTaskService_QuotaExhausted(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)

	// Level 0 quota is 3 tasks per day.
	for task := int64(1); task <= 3; task++ {
		_, err := f.tasks.RecordAttempt(ctx, account.ID, task, "B", true, 0)
		require.NoError(t, err)
	}
	_, err = f.tasks.RecordAttempt(ctx, account.ID, 4, "B", true, 0)
	assert.ErrorIs(t, err, ErrQuotaExhausted)

	// A reset clears the counter and reopens the quota for a new task.
	n, err := f.resets.ResetAll(ctx, workday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.tasks.RecordAttempt(ctx, account.ID, 4, "B", true, 0)
	require.NoError(t, err)
}

func TestTaskService_ConcurrentAttemptsRespectQuota(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)

	// Level 0 quota is 3; six distinct tasks race for it. The counter is
	// checked under the account row lock, so only three can win.
	var wg sync.WaitGroup
	var succeeded int64
	for task := int64(1); task <= 6; task++ {
		wg.Add(1)
		go func(taskID int64) {
			defer wg.Done()
			if _, err := f.tasks.RecordAttempt(ctx, account.ID, taskID, "B", true, 700); err == nil {
				atomic.AddInt64(&succeeded, 1)
			}
		}(task)
	}
	wg.Wait()

	assert.Equal(t, int64(3), succeeded)
	updated := f.balance(t, account.ID)
	assert.Equal(t, 3, updated.TasksCompletedToday)
	assert.Equal(t, int64(3*700), updated.WalletBalance)
}

func TestTaskService_RestDayBlocksMutation(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	// 2026-03-01 is a Sunday.
	setClock(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)

	_, err = f.tasks.RecordAttempt(ctx, account.ID, 3, "B", true, 0)
	assert.ErrorIs(t, err, ErrRestricted)

	updated := f.balance(t, account.ID)
	assert.Equal(t, int64(0), updated.WalletBalance)
	assert.Equal(t, 0, updated.TasksCompletedToday)

	entries, err := f.ledger.GetByUserID(ctx, account.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTaskService_ExpiredTrialRequiresUpgrade(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", true)
	require.NoError(t, err)

	// Six days after registration, past the five-day trial. Wednesday.
	setClock(t, account.CreatedAt.AddDate(0, 0, 6))
	_, err = f.tasks.RecordAttempt(ctx, account.ID, 3, "B", true, 0)
	assert.ErrorIs(t, err, ErrUpgradeRequired)
}

// ============================================================================
// Recharges
// ============================================================================

func TestAccountService_ApplyRecharge(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)

	updated, err := f.accountSvc.ApplyRecharge(ctx, account.ID, 10000, "mpesa-QX12")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), updated.PersonalWallet)
	assert.Equal(t, int64(0), updated.WalletBalance)

	// The recharge entry is logged but excluded from the wallet sum.
	entries, err := f.ledger.GetByUserID(ctx, account.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.CategoryRecharge, entries[0].Category)
	assert.Equal(t, model.TxCompleted, entries[0].Status)

	sum, err := f.ledger.SumWalletDeltas(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum)

	_, err = f.accountSvc.ApplyRecharge(ctx, account.ID, 0, "mpesa-QX13")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.accountSvc.ApplyRecharge(ctx, account.ID, 100, "")
	assert.ErrorIs(t, err, ErrValidation)
}

// ============================================================================
// Upgrade engine and referral cascade
// ============================================================================

func TestUpgradeService_UpgradeAndCascade(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	inviter, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)
	f.setLevel(t, inviter.ID, 1)

	invitee, err := f.accountSvc.Register(ctx, "254700000002", "bob", inviter.ReferralCode, false)
	require.NoError(t, err)
	f.fund(t, invitee.ID, 280000)

	res, err := f.upgrades.Upgrade(ctx, invitee.ID, 1, 280000)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Level)
	assert.Equal(t, int64(0), res.WalletBalance)

	// The inviter got exactly the level-1 bonus.
	inviterNow := f.balance(t, inviter.ID)
	assert.Equal(t, int64(28000), inviterNow.WalletBalance)
	assert.Equal(t, int64(28000), inviterNow.TotalEarnings)

	// Re-firing the cascade for the same upgrade pays nothing more.
	require.NoError(t, f.referrals.AwardBonus(ctx, invitee.ID, 1))
	inviterNow = f.balance(t, inviter.ID)
	assert.Equal(t, int64(28000), inviterNow.WalletBalance)
}

func TestUpgradeService_UnpaidInviterEarnsNothing(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	inviter, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)

	invitee, err := f.accountSvc.Register(ctx, "254700000002", "bob", inviter.ReferralCode, false)
	require.NoError(t, err)
	f.fund(t, invitee.ID, 280000)

	_, err = f.upgrades.Upgrade(ctx, invitee.ID, 1, 280000)
	require.NoError(t, err)

	// Inviter still at level 0: no cascade payout.
	inviterNow := f.balance(t, inviter.ID)
	assert.Equal(t, int64(0), inviterNow.WalletBalance)
	assert.Equal(t, int64(0), inviterNow.TotalEarnings)
}

func TestUpgradeService_Rejections(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)
	f.fund(t, account.ID, 100000000)

	_, err = f.upgrades.Upgrade(ctx, account.ID, 1, 279999)
	assert.ErrorIs(t, err, ErrCostMismatch)

	_, err = f.upgrades.Upgrade(ctx, account.ID, 42, 1)
	assert.ErrorIs(t, err, ErrUnknownLevel)

	_, err = f.upgrades.Upgrade(ctx, account.ID, 0, 0)
	assert.ErrorIs(t, err, ErrNotAnUpgrade)

	// The one forbidden jump: already at 7, buying 8 directly.
	f.setLevel(t, account.ID, 7)
	cost, ok := policyCost(t, 8)
	require.True(t, ok)
	_, err = f.upgrades.Upgrade(ctx, account.ID, 8, cost)
	assert.ErrorIs(t, err, ErrLevelJumpNotAllowed)
}

func policyCost(t *testing.T, level int) (int64, bool) {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	pol, err := policy.FromConfig(cfg.Levels)
	require.NoError(t, err)
	return pol.UpgradeCost(level)
}

func TestUpgradeService_InsufficientFundsRollsBack(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)
	f.fund(t, account.ID, 1000)

	_, err = f.upgrades.Upgrade(ctx, account.ID, 1, 280000)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	updated := f.balance(t, account.ID)
	assert.Equal(t, int64(1000), updated.WalletBalance)
	assert.Equal(t, 0, updated.Level)
}

// ============================================================================
// Withdrawal workflow
// ============================================================================

func TestWithdrawalService_InstantRailHappyPath(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)
	f.fund(t, account.ID, 100000)

	w, err := f.withdrawals.Request(ctx, account.ID, 60000, model.RailMobileMoney, "254700000001")
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalCompleted, w.Status)
	assert.Equal(t, 1, f.rail.calls)

	updated := f.balance(t, account.ID)
	assert.Equal(t, int64(40000), updated.WalletBalance)
}

func TestWithdrawalService_RailFailureReversesDebit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	f.rail.failWith = errors.New("gateway timeout")
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)
	f.fund(t, account.ID, 100000)

	_, err = f.withdrawals.Request(ctx, account.ID, 60000, model.RailMobileMoney, "254700000001")
	assert.ErrorIs(t, err, ErrRailFailure)

	// The debit was compensated: balance back to the starting amount, and
	// the ledger carries the debit/reversal pair.
	updated := f.balance(t, account.ID)
	assert.Equal(t, int64(100000), updated.WalletBalance)

	entries, err := f.ledger.GetByUserID(ctx, account.ID, 10)
	require.NoError(t, err)
	var withdrawalEntries []*model.Transaction
	for _, e := range entries {
		if e.Category == model.CategoryWithdrawal {
			withdrawalEntries = append(withdrawalEntries, e)
		}
	}
	require.Len(t, withdrawalEntries, 2)
	assert.Equal(t, int64(0), withdrawalEntries[0].Amount+withdrawalEntries[1].Amount)
}

func TestWithdrawalService_AdmissionChecks(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)
	f.fund(t, account.ID, 100000)

	_, err = f.withdrawals.Request(ctx, account.ID, 1000, model.Rail("cheque"), "x")
	assert.ErrorIs(t, err, ErrInvalidRail)

	_, err = f.withdrawals.Request(ctx, account.ID, 100, model.RailMobileMoney, "254700000001")
	assert.ErrorIs(t, err, ErrBelowMinimum)

	_, err = f.withdrawals.Request(ctx, account.ID, 200000, model.RailMobileMoney, "254700000001")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// One request per day, counting the successful one below.
	_, err = f.withdrawals.Request(ctx, account.ID, 1000, model.RailMobileMoney, "254700000001")
	require.NoError(t, err)
	_, err = f.withdrawals.Request(ctx, account.ID, 1000, model.RailMobileMoney, "254700000001")
	assert.ErrorIs(t, err, ErrWithdrawalLimit)
}

func TestWithdrawalService_WindowAndCalendar(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	ctx := context.Background()

	setClock(t, workday)
	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)
	f.fund(t, account.ID, 100000)

	// 08:00, before the window opens.
	setClock(t, time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC))
	_, err = f.withdrawals.Request(ctx, account.ID, 1000, model.RailMobileMoney, "254700000001")
	assert.ErrorIs(t, err, ErrOutsideWindow)

	// 17:00 is already closed.
	setClock(t, time.Date(2026, 3, 3, 17, 0, 0, 0, time.UTC))
	_, err = f.withdrawals.Request(ctx, account.ID, 1000, model.RailMobileMoney, "254700000001")
	assert.ErrorIs(t, err, ErrOutsideWindow)

	// Sunday is blocked before the window check even runs.
	setClock(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	_, err = f.withdrawals.Request(ctx, account.ID, 1000, model.RailMobileMoney, "254700000001")
	assert.ErrorIs(t, err, ErrRestricted)
}

func TestWithdrawalService_BankRailDebitsOnCompletion(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)
	f.fund(t, account.ID, 100000)

	w, err := f.withdrawals.Request(ctx, account.ID, 60000, model.RailBank, "DE89370400440532013000")
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalPending, w.Status)
	assert.Equal(t, 0, f.rail.calls)

	// Nothing deducted while the request sits pending.
	updated := f.balance(t, account.ID)
	assert.Equal(t, int64(100000), updated.WalletBalance)

	// Admin completes it: the debit happens now.
	w, err = f.withdrawals.ApplyTransition(ctx, w.ID, model.WithdrawalCompleted, "paid")
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalCompleted, w.Status)

	updated = f.balance(t, account.ID)
	assert.Equal(t, int64(40000), updated.WalletBalance)
}

func TestWithdrawalService_CompletedTransferBounces(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)
	f.fund(t, account.ID, 100000)

	w, err := f.withdrawals.Request(ctx, account.ID, 60000, model.RailBank, "DE89370400440532013000")
	require.NoError(t, err)
	w, err = f.withdrawals.ApplyTransition(ctx, w.ID, model.WithdrawalCompleted, "paid")
	require.NoError(t, err)
	assert.Equal(t, int64(40000), f.balance(t, account.ID).WalletBalance)

	// The transfer bounces downstream: the admin fails the completed
	// request and the deducted funds come back exactly once.
	w, err = f.withdrawals.ApplyTransition(ctx, w.ID, model.WithdrawalFailed, "bounced")
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalFailed, w.Status)
	assert.Equal(t, int64(100000), f.balance(t, account.ID).WalletBalance)

	// Failed is terminal: no re-completion, no second refund.
	_, err = f.withdrawals.ApplyTransition(ctx, w.ID, model.WithdrawalRejected, "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.withdrawals.ApplyTransition(ctx, w.ID, model.WithdrawalCompleted, "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, int64(100000), f.balance(t, account.ID).WalletBalance)
}

func TestWithdrawalService_RejectPendingBankIsNoRefund(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)
	f.fund(t, account.ID, 100000)

	w, err := f.withdrawals.Request(ctx, account.ID, 60000, model.RailBank, "DE89370400440532013000")
	require.NoError(t, err)

	// Bank funds were never deducted, so rejection credits nothing.
	_, err = f.withdrawals.ApplyTransition(ctx, w.ID, model.WithdrawalRejected, "kyc failed")
	require.NoError(t, err)

	updated := f.balance(t, account.ID)
	assert.Equal(t, int64(100000), updated.WalletBalance)

	entries, err := f.ledger.GetByUserID(ctx, account.ID, 10)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, model.CategoryWithdrawal, e.Category)
	}
}

func TestWithdrawalService_RailCallbackIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)
	f.fund(t, account.ID, 100000)

	w, err := f.withdrawals.Request(ctx, account.ID, 60000, model.RailMobileMoney, "254700000001")
	require.NoError(t, err)

	// Redelivered success callback matches the current state: no-op.
	cb, err := f.withdrawals.ApplyRailCallback(ctx, w.Reference, true, "redelivery")
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalCompleted, cb.Status)

	updated := f.balance(t, account.ID)
	assert.Equal(t, int64(40000), updated.WalletBalance)
}

// ============================================================================
// Investments
// ============================================================================

func TestInvestmentService_FullTerm(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)
	f.fund(t, account.ID, 100000)

	// 100000 at 150 bps/day over 2 days: 1500 per accrual.
	inv, err := f.investments.Create(ctx, account.ID, 100000, 150, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.balance(t, account.ID).WalletBalance)

	n, err := f.investments.AccrueReturns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(1500), f.balance(t, account.ID).WalletBalance)

	// Same day again: nothing due.
	n, err = f.investments.AccrueReturns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Next day completes the term.
	setClock(t, workday.AddDate(0, 0, 1))
	n, err = f.investments.AccrueReturns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	done, err := f.investments.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvestmentCompleted, done.Status)
	assert.Equal(t, int64(3000), done.TotalReturned)
	assert.Equal(t, int64(3000), f.balance(t, account.ID).WalletBalance)
}

func TestInvestmentService_CancelBeforeAccrualRefunds(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)
	f.fund(t, account.ID, 100000)

	inv, err := f.investments.Create(ctx, account.ID, 100000, 150, 30)
	require.NoError(t, err)

	cancelled, err := f.investments.Cancel(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvestmentCancelled, cancelled.Status)
	assert.Equal(t, int64(100000), f.balance(t, account.ID).WalletBalance)

	_, err = f.investments.Cancel(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrInvestmentNotActive)
}

// ============================================================================
// Ledger reconciliation
// ============================================================================

// Every engine writes the ledger in the transaction that moves the money,
// so the sum of non-recharge entries always equals the wallet movement.
func TestLedgerReconciles(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	f := newFixture(t, pool)
	setClock(t, workday)
	ctx := context.Background()

	account, err := f.accountSvc.Register(ctx, "254700000001", "alice", "", false)
	require.NoError(t, err)

	_, err = f.tasks.RecordAttempt(ctx, account.ID, 1, "B", true, 0)
	require.NoError(t, err)
	_, err = f.tasks.RecordAttempt(ctx, account.ID, 2, "B", true, 0)
	require.NoError(t, err)
	_, err = f.withdrawals.Request(ctx, account.ID, 500, model.RailMobileMoney, "254700000001")
	require.NoError(t, err)

	sum, err := f.ledger.SumWalletDeltas(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700+700-500), sum)
	assert.Equal(t, sum, f.balance(t, account.ID).WalletBalance)
}
