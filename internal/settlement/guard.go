package settlement

import (
	"context"

	"pollboard/internal/repository"
)

// GuardResult answers "may I pay this player?".
type GuardResult struct {
	CanSettle      bool
	AlreadySettled bool
}

// Guard is the duplicate-settlement check: a tagged payout ledger entry for
// (poll, player) means the player is settled, zero-amount loss entries
// included. The check alone is advisory; the hard guarantee is the unique
// index the ledger service inserts against, so a race between two runs
// resolves there rather than here.
type Guard struct {
	Repo repository.Repository
}

func (g *Guard) Check(ctx context.Context, pollID, playerID string) (GuardResult, error) {
	entry, err := g.Repo.GetPayoutEntry(ctx, pollID, playerID, ReasonTagBettingPayout)
	if err != nil {
		return GuardResult{}, err
	}
	if entry != nil {
		return GuardResult{AlreadySettled: true}, nil
	}
	return GuardResult{CanSettle: true}, nil
}
