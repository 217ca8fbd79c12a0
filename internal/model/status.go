package model

// TxCategory classifies a ledger log entry.
type TxCategory string

const (
	CategoryRecharge   TxCategory = "recharge"
	CategoryInvestment TxCategory = "investment"
	CategoryWithdrawal TxCategory = "withdrawal"
	CategoryBonus      TxCategory = "bonus"
	CategoryReferral   TxCategory = "referral"
	CategoryTask       TxCategory = "task"
	CategoryUpgrade    TxCategory = "upgrade"
)

// Valid reports whether c is a known category.
func (c TxCategory) Valid() bool {
	switch c {
	case CategoryRecharge, CategoryInvestment, CategoryWithdrawal,
		CategoryBonus, CategoryReferral, CategoryTask, CategoryUpgrade:
		return true
	}
	return false
}

// StatusMutable reports whether entries of this category may receive
// status-only updates after insert. Everything else is strictly append-only.
func (c TxCategory) StatusMutable() bool {
	return c == CategoryRecharge || c == CategoryWithdrawal
}

// TxStatus is the settlement state of a log entry.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
	TxFailed    TxStatus = "failed"
)

// Rail identifies the external money-movement channel. It is fixed at
// request time; never inferred from free text.
type Rail string

const (
	RailMobileMoney Rail = "mobile_money"
	RailBank        Rail = "bank"
)

// Valid reports whether r is a known rail.
func (r Rail) Valid() bool {
	return r == RailMobileMoney || r == RailBank
}

// Instant reports whether the rail debits the wallet at request time.
// Bank transfers debit only when an administrator completes them.
func (r Rail) Instant() bool {
	return r == RailMobileMoney
}

// WithdrawalStatus is the lifecycle state of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalFailed     WithdrawalStatus = "failed"
	WithdrawalRejected   WithdrawalStatus = "rejected"
)

// Valid reports whether s is a known withdrawal status.
func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalPending, WithdrawalProcessing, WithdrawalCompleted,
		WithdrawalFailed, WithdrawalRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s. Completed is
// not terminal: an administrator may still fail or reject a completed
// request when the transfer bounces downstream, triggering the reversal.
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalFailed || s == WithdrawalRejected
}

// CanTransition reports whether a withdrawal may move from s to next.
// Failed and rejected are never left, which is what makes the reversal
// credit a one-time event.
func (s WithdrawalStatus) CanTransition(next WithdrawalStatus) bool {
	if s.Terminal() || !next.Valid() || next == s {
		return false
	}
	switch s {
	case WithdrawalPending:
		return next == WithdrawalProcessing || next == WithdrawalCompleted ||
			next == WithdrawalFailed || next == WithdrawalRejected
	case WithdrawalProcessing:
		return next == WithdrawalCompleted || next == WithdrawalFailed ||
			next == WithdrawalRejected
	case WithdrawalCompleted:
		return next == WithdrawalFailed || next == WithdrawalRejected
	}
	return false
}

// FundsDeducted reports whether the wallet has already been debited for a
// withdrawal sitting in status s on the given rail. Mobile money debits at
// request time, so the funds are gone in every live state; bank transfers
// debit only on completion. Failed and rejected are the post-reversal
// states, so funds are back in the wallet by then.
func FundsDeducted(rail Rail, s WithdrawalStatus) bool {
	if s == WithdrawalFailed || s == WithdrawalRejected {
		return false
	}
	if rail.Instant() {
		return true
	}
	return s == WithdrawalCompleted
}

// InvestmentStatus is the lifecycle state of an investment plan.
type InvestmentStatus string

const (
	InvestmentActive    InvestmentStatus = "active"
	InvestmentCompleted InvestmentStatus = "completed"
	InvestmentCancelled InvestmentStatus = "cancelled"
)

// Valid reports whether s is a known investment status.
func (s InvestmentStatus) Valid() bool {
	return s == InvestmentActive || s == InvestmentCompleted || s == InvestmentCancelled
}
