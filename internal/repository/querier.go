// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx. Methods
// that must participate in a caller-owned transaction take a Querier so the
// same code path serves both.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Common errors for repository operations.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrWithdrawalNotFound  = errors.New("withdrawal not found")
	ErrInvestmentNotFound  = errors.New("investment not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateAttempt    = errors.New("task attempt already recorded for this day")
	ErrInsufficientFunds   = errors.New("insufficient wallet balance")
	ErrImmutableEntry      = errors.New("transaction entry does not allow status updates")
)

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
