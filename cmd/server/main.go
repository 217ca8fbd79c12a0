// Package main is the entry point for the reward engine worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"reward-engine/internal/calendar"
	"reward-engine/internal/config"
	"reward-engine/internal/pkg/db"
	"reward-engine/internal/pkg/expiry"
	"reward-engine/internal/pkg/lock"
	"reward-engine/internal/policy"
	"reward-engine/internal/rail"
	"reward-engine/internal/repository"
	"reward-engine/internal/scheduler"
	"reward-engine/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log.Info().Msg("Configuration loaded successfully")

	pol, err := policy.FromConfig(cfg.Levels)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build reward policy")
	}
	gate, err := calendar.New(cfg.Calendar)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build calendar gate")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	accountRepo := repository.NewAccountRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	attemptRepo := repository.NewTaskAttemptRepository(dbPool.Pool)
	withdrawalRepo := repository.NewWithdrawalRepository(dbPool.Pool)
	investmentRepo := repository.NewInvestmentRepository(dbPool.Pool)

	userLock := lock.NewUserLock()
	callbackCache := expiry.NewMemoryStore(time.Minute)
	defer callbackCache.Close()

	accountService := service.NewAccountService(dbPool.Pool, accountRepo, txRepo)
	referralService := service.NewReferralService(dbPool.Pool, accountRepo, txRepo, pol)
	taskService := service.NewTaskService(dbPool.Pool, accountRepo, attemptRepo, txRepo, gate, pol, cfg.Trial.Days)
	upgradeService := service.NewUpgradeService(dbPool.Pool, accountRepo, txRepo, referralService, pol)
	withdrawalService := service.NewWithdrawalService(
		dbPool.Pool, accountRepo, withdrawalRepo, txRepo, gate, rail.Noop{},
		cfg.Withdrawal, userLock, callbackCache)
	investmentService := service.NewInvestmentService(dbPool.Pool, accountRepo, investmentRepo, txRepo)
	resetService := service.NewResetService(accountRepo)

	// The engines are consumed by collaborator surfaces (auth middleware,
	// admin tools, rail callbacks); the worker itself only drives the
	// daily schedule.
	engines := &service.Engines{
		Accounts:    accountService,
		Tasks:       taskService,
		Upgrades:    upgradeService,
		Referrals:   referralService,
		Withdrawals: withdrawalService,
		Investments: investmentService,
		Resets:      resetService,
	}

	sched := scheduler.New(engines, cfg.Scheduler.ResetHour)
	go sched.Run(ctx)

	log.Info().
		Int("levels", len(pol.Levels())).
		Int("trial_days", cfg.Trial.Days).
		Msg("Reward engine started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	cancel()
	log.Info().Msg("Reward engine stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: accounts table with the monetary sub-balances
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
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
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: accounts table created")

	// Migration 2: append-only transaction log
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			category VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_category ON transactions(user_id, category, description);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: transactions table created")

	// Migration 3: task attempts, unique per (user, task, day)
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS task_attempts (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			task_id BIGINT NOT NULL,
			attempt_day DATE NOT NULL,
			correct BOOLEAN NOT NULL,
			reward BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT uq_task_attempt UNIQUE (user_id, task_id, attempt_day)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: task_attempts table created")

	// Migration 4: withdrawal requests
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS withdrawals (
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
		);
		CREATE INDEX IF NOT EXISTS idx_withdrawals_user_time ON withdrawals(user_id, requested_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: withdrawals table created")

	// Migration 5: investment plans
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS investments (
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
		);
		CREATE INDEX IF NOT EXISTS idx_investments_status ON investments(status, last_accrued_at);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: investments table created")

	return nil
}
