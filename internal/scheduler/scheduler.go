// Package scheduler runs the daily maintenance jobs on a fixed wall-clock
// trigger, independent of any request flow.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"reward-engine/internal/service"
)

// Scheduler fires the daily reset and the investment accrual once per
// calendar day at the configured hour.
type Scheduler struct {
	engines    *service.Engines
	resetHour  int
	lastRunDay string
}

// New creates a Scheduler.
func New(engines *service.Engines, resetHour int) *Scheduler {
	return &Scheduler{
		engines:   engines,
		resetHour: resetHour,
	}
}

// Run blocks until ctx is cancelled, firing the daily jobs at each boundary.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Int("reset_hour", s.resetHour).Msg("scheduler started")
	for {
		next := s.nextFire(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("scheduler stopped")
			return
		case now := <-timer.C:
			s.RunOnce(ctx, now)
		}
	}
}

// RunOnce executes the daily jobs for the given moment. Guarded by the
// last-run day so a duplicate trigger within one day is a no-op; the jobs
// themselves are idempotent per day as well.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) {
	day := now.Format("2006-01-02")
	if s.lastRunDay == day {
		return
	}
	s.lastRunDay = day

	if _, err := s.engines.Resets.ResetAll(ctx, now); err != nil {
		log.Error().Err(err).Msg("daily reset failed")
	}
	if n, err := s.engines.Investments.AccrueReturns(ctx); err != nil {
		log.Error().Err(err).Msg("investment accrual failed")
	} else if n > 0 {
		log.Info().Int("plans", n).Msg("investment returns accrued")
	}
}

// nextFire returns the next wall-clock boundary at the configured hour.
func (s *Scheduler) nextFire(now time.Time) time.Time {
	fire := time.Date(now.Year(), now.Month(), now.Day(), s.resetHour, 0, 0, 0, now.Location())
	if !fire.After(now) {
		fire = fire.AddDate(0, 0, 1)
	}
	return fire
}
