package service

// Engines bundles the request-facing engines for a consuming surface.
// The authentication middleware, admin tools, and rail-callback endpoint
// all operate through these; the engine core has no transport of its own.
type Engines struct {
	Accounts    *AccountService
	Tasks       *TaskService
	Upgrades    *UpgradeService
	Referrals   *ReferralService
	Withdrawals *WithdrawalService
	Investments *InvestmentService
	Resets      *ResetService
}
