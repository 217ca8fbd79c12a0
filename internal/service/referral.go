package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"reward-engine/internal/model"
	"reward-engine/internal/policy"
	"reward-engine/internal/repository"
)

// ReferralService pays the one-time cascade bonus to a direct inviter when
// their invitee reaches a new tier.
type ReferralService struct {
	pool     *pgxpool.Pool
	accounts *repository.AccountRepository
	ledger   *repository.TransactionRepository
	policy   *policy.Policy
}

// NewReferralService creates a new ReferralService instance.
func NewReferralService(
	pool *pgxpool.Pool,
	accounts *repository.AccountRepository,
	ledger *repository.TransactionRepository,
	pol *policy.Policy,
) *ReferralService {
	return &ReferralService{
		pool:     pool,
		accounts: accounts,
		ledger:   ledger,
		policy:   pol,
	}
}

// bonusKey encodes the (invitee, level) pair into the ledger description.
// The duplicate-award guard looks this key up inside the credit transaction.
func bonusKey(inviteeID int64, newLevel int) string {
	return fmt.Sprintf("referral:invitee=%d level=%d", inviteeID, newLevel)
}

// AwardBonus credits the invitee's inviter with the fixed bonus for the new
// level. No-ops: invitee has no inviter, the tier has no bonus, the inviter
// has not reached the lowest paid tier, or the bonus was already awarded.
// The existence check and the credit run in one transaction with the
// inviter row locked, so two concurrent triggers for the same upgrade
// cannot both pay out.
func (s *ReferralService) AwardBonus(ctx context.Context, inviteeID int64, newLevel int) error {
	invitee, err := s.accounts.GetByID(ctx, inviteeID)
	if err != nil {
		return fmt.Errorf("failed to load invitee: %w", err)
	}
	if invitee.InvitedBy == nil {
		return nil
	}

	bonus, ok := s.policy.ReferralBonus(newLevel)
	if !ok {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inviter, err := s.accounts.GetForUpdate(ctx, tx, *invitee.InvitedBy)
	if err != nil {
		return fmt.Errorf("failed to lock inviter: %w", err)
	}

	// Anti-abuse gate: unpaid accounts earn no cascade bonuses.
	if inviter.Level < policy.EntryPaidLevel {
		return nil
	}

	key := bonusKey(inviteeID, newLevel)
	exists, err := s.ledger.ExistsReferralBonus(ctx, tx, inviter.ID, key)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if _, err := s.accounts.CreditEarnings(ctx, tx, inviter.ID, bonus); err != nil {
		return err
	}
	if _, err := s.ledger.Append(ctx, tx, inviter.ID, bonus, model.CategoryReferral, model.TxCompleted, key); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit referral bonus: %w", err)
	}

	log.Info().
		Int64("inviter_id", inviter.ID).
		Int64("invitee_id", inviteeID).
		Int("level", newLevel).
		Int64("bonus", bonus).
		Msg("referral bonus credited")

	return nil
}
