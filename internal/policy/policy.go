// Package policy holds the reward tables: per-level task reward, daily task
// quota, upgrade cost, and the one-time referral bonus paid to an inviter
// when an invitee reaches a level. It is the single source of truth for
// these numbers; engines must never carry their own copies.
package policy

import (
	"fmt"
	"sort"

	"reward-engine/internal/config"
)

// EntryPaidLevel is the lowest paid tier. An inviter must hold at least
// this level to receive referral bonuses.
const EntryPaidLevel = 1

// Tiers that may not be purchased in one direct jump. Keyed by
// (from << 8 | to). Business rule, not a general skip-level block.
var forbiddenJumps = map[int]struct{}{
	7<<8 | 8: {},
}

// Tier describes one progression level. Amounts are in cents.
type Tier struct {
	Level         int
	TaskReward    int64
	DailyQuota    int
	UpgradeCost   int64
	ReferralBonus int64
}

// Policy is an immutable lookup table loaded once at startup and shared by
// the task, upgrade, and referral engines.
type Policy struct {
	tiers map[int]Tier
	max   int
}

// FromConfig builds a Policy from the configured level table.
func FromConfig(levels []config.LevelConfig) (*Policy, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("policy: no levels configured")
	}
	tiers := make(map[int]Tier, len(levels))
	max := 0
	for _, lc := range levels {
		if lc.Level < 0 {
			return nil, fmt.Errorf("policy: negative level %d", lc.Level)
		}
		if _, dup := tiers[lc.Level]; dup {
			return nil, fmt.Errorf("policy: duplicate level %d", lc.Level)
		}
		tiers[lc.Level] = Tier{
			Level:         lc.Level,
			TaskReward:    lc.TaskReward,
			DailyQuota:    lc.DailyQuota,
			UpgradeCost:   lc.UpgradeCost,
			ReferralBonus: lc.ReferralBonus,
		}
		if lc.Level > max {
			max = lc.Level
		}
	}
	return &Policy{tiers: tiers, max: max}, nil
}

// KnownLevel reports whether level is a configured tier.
func (p *Policy) KnownLevel(level int) bool {
	_, ok := p.tiers[level]
	return ok
}

// MaxLevel returns the highest configured tier.
func (p *Policy) MaxLevel() int { return p.max }

// TaskReward returns the per-task reward for a level.
func (p *Policy) TaskReward(level int) (int64, bool) {
	t, ok := p.tiers[level]
	return t.TaskReward, ok
}

// DailyQuota returns the daily task quota for a level.
func (p *Policy) DailyQuota(level int) (int, bool) {
	t, ok := p.tiers[level]
	return t.DailyQuota, ok
}

// UpgradeCost returns the cost to enter a level.
func (p *Policy) UpgradeCost(level int) (int64, bool) {
	t, ok := p.tiers[level]
	return t.UpgradeCost, ok
}

// ReferralBonus returns the one-time inviter bonus for an invitee reaching
// level. ok is false when the tier has no bonus defined.
func (p *Policy) ReferralBonus(level int) (int64, bool) {
	t, ok := p.tiers[level]
	if !ok || t.ReferralBonus <= 0 {
		return 0, false
	}
	return t.ReferralBonus, true
}

// JumpAllowed reports whether a direct upgrade from level from to level to
// is permitted. Monotonicity is checked separately; this only encodes the
// hard-coded forbidden jumps.
func (p *Policy) JumpAllowed(from, to int) bool {
	_, forbidden := forbiddenJumps[from<<8|to]
	return !forbidden
}

// Levels returns the configured tiers in ascending order.
func (p *Policy) Levels() []Tier {
	out := make([]Tier, 0, len(p.tiers))
	for _, t := range p.tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}
