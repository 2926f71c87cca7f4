package settlement

import (
	"github.com/shopspring/decimal"

	"pollboard/internal/models"
)

// Calculate turns one player's wagers into a payout, refund, or loss.
// Pure: no I/O, no clock, no side effects.
//
// Priority order:
//  1. empty winning set  -> REFUND of everything the player wagered (void poll)
//  2. player has winning wagers and the winning pool is positive -> PAYOUT,
//     payout = floor(totalPayoutPool * playerWinning / totalWinningPool)
//  3. otherwise -> LOSS (zero movement, still settled)
//
// Per-player flooring means the sum of all payouts can undershoot the pool
// by up to one unit per winner. That residual is never redistributed here;
// Residual exposes it so callers can log and reconcile it.
func Calculate(wagers []models.Wager, winningOptionIDs []string, totalWinningPool, totalPayoutPool int64) CalcResult {
	winning := winningSet(winningOptionIDs)

	var totalBet, winningBet int64
	for _, w := range wagers {
		totalBet += w.Amount
		if _, ok := winning[w.OptionID]; ok {
			winningBet += w.Amount
		}
	}

	if len(winning) == 0 {
		return CalcResult{
			Type:           CalcRefund,
			RefundAmount:   totalBet,
			TotalBetAmount: totalBet,
		}
	}

	if winningBet > 0 && totalWinningPool > 0 {
		if totalPayoutPool < 0 {
			totalPayoutPool = 0
		}
		payout := decimal.NewFromInt(totalPayoutPool).
			Mul(decimal.NewFromInt(winningBet)).
			Div(decimal.NewFromInt(totalWinningPool)).
			Floor().
			IntPart()
		return CalcResult{
			Type:             CalcPayout,
			PayoutAmount:     payout,
			TotalBetAmount:   totalBet,
			WinningBetAmount: winningBet,
		}
	}

	return CalcResult{
		Type:           CalcLoss,
		TotalBetAmount: totalBet,
	}
}

// Residual is the unallocated remainder left in the pool by per-player
// flooring: pool minus the sum of all payouts. Non-negative and bounded by
// the number of distinct winning bettors.
func Residual(totalPayoutPool int64, payouts []int64) int64 {
	var sum int64
	for _, p := range payouts {
		sum += p
	}
	if totalPayoutPool < 0 {
		totalPayoutPool = 0
	}
	return totalPayoutPool - sum
}
