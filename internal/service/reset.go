package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"reward-engine/internal/repository"
)

// ResetService zeroes the per-user daily task counters at the wall-clock
// boundary. Historical task-attempt records are never touched; only the
// counter clears.
type ResetService struct {
	accounts *repository.AccountRepository
}

// NewResetService creates a new ResetService instance.
func NewResetService(accounts *repository.AccountRepository) *ResetService {
	return &ResetService{accounts: accounts}
}

// ResetAll clears tasks_completed_today for every account still carrying a
// count, stamping the reset date. Idempotent per calendar day: the date
// guard in the update means a second run touches nothing.
func (s *ResetService) ResetAll(ctx context.Context, today time.Time) (int64, error) {
	n, err := s.accounts.ResetDailyCounters(ctx, today)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int64("accounts", n).Str("day", today.Format("2006-01-02")).Msg("daily task counters reset")
	}
	return n, nil
}
