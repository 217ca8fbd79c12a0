// Package service provides the business engines: task completion, level
// upgrades, referral cascades, withdrawals, investments, and the daily
// reset. Every balance mutation runs inside a single pgx transaction; the
// append-only ledger entry lands in the same transaction as the balance
// change it records.
package service

import (
	"errors"
	"time"
)

// Policy-violation and validation errors. None of these is retryable by
// the same request, and none leaves a partial mutation behind.
var (
	ErrValidation           = errors.New("missing or malformed input")
	ErrRestricted           = errors.New("restricted calendar day")
	ErrAlreadyCompleted     = errors.New("task already completed today")
	ErrUpgradeRequired      = errors.New("trial window elapsed, upgrade required")
	ErrQuotaExhausted       = errors.New("daily task quota exhausted")
	ErrUnknownLevel         = errors.New("unknown level")
	ErrCostMismatch         = errors.New("claimed cost does not match level cost")
	ErrNotAnUpgrade         = errors.New("target level is not an upgrade")
	ErrLevelJumpNotAllowed  = errors.New("direct jump to this level is not allowed")
	ErrInsufficientFunds    = errors.New("insufficient wallet balance")
	ErrInvalidRail          = errors.New("unknown withdrawal rail")
	ErrOutsideWindow        = errors.New("outside the withdrawal time window")
	ErrWithdrawalLimit      = errors.New("withdrawal already requested today")
	ErrBelowMinimum         = errors.New("amount below the withdrawal minimum")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrRailFailure          = errors.New("payment rail failure")
	ErrInvestmentNotActive  = errors.New("investment is not active")
	ErrReferralCodeNotFound = errors.New("referral code not found")
)

// timeNow is swapped out by tests that need a fixed calendar date.
var timeNow = time.Now
