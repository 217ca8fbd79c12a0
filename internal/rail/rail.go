// Package rail defines the contract with the external money-movement
// channel. The engine treats the rail as an opaque service that either
// confirms a disbursement with a reference id or fails; retries are the
// caller's concern, and the ledger compensates locally when the rail fails
// after a debit.
package rail

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Rail moves money out of the platform. Disburse returns the rail's
// conversation/reference id on success. An error means no money moved and
// the caller must reverse any local debit.
type Rail interface {
	Disburse(ctx context.Context, accountRef string, amountCents int64, remarks string) (reference string, err error)
}

// Noop is a rail that accepts every disbursement without moving money.
// Used for wiring in environments without a gateway, and in tests.
type Noop struct{}

// Disburse logs the request and returns a fresh reference id.
func (Noop) Disburse(ctx context.Context, accountRef string, amountCents int64, remarks string) (string, error) {
	ref := uuid.NewString()
	log.Info().
		Str("account_ref", accountRef).
		Int64("amount", amountCents).
		Str("reference", ref).
		Msg("noop rail disbursement")
	return ref, nil
}
