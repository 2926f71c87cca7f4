package settlement

import (
	"testing"

	"pollboard/internal/models"
)

func wager(optionID string, amount int64) models.Wager {
	return models.Wager{OptionID: optionID, Amount: amount}
}

func TestCalculateRefundOnVoidPoll(t *testing.T) {
	wagers := []models.Wager{wager("opt-a", 300), wager("opt-b", 200)}

	result := Calculate(wagers, nil, 0, 500)

	if result.Type != CalcRefund {
		t.Fatalf("type=%s want %s", result.Type, CalcRefund)
	}
	if result.RefundAmount != 500 {
		t.Fatalf("refund=%d want 500", result.RefundAmount)
	}
	if result.PayoutAmount != 0 {
		t.Fatalf("payout=%d want 0", result.PayoutAmount)
	}
	if result.SettledAmount() != 500 {
		t.Fatalf("settled=%d want 500", result.SettledAmount())
	}
}

func TestCalculatePayoutProRata(t *testing.T) {
	// 600 on the winning option out of a 1000 pool, 100 commission.
	wagers := []models.Wager{wager("opt-a", 600), wager("opt-b", 100)}

	result := Calculate(wagers, []string{"opt-a"}, 800, 900)

	if result.Type != CalcPayout {
		t.Fatalf("type=%s want %s", result.Type, CalcPayout)
	}
	// floor(900 * 600 / 800) = 675
	if result.PayoutAmount != 675 {
		t.Fatalf("payout=%d want 675", result.PayoutAmount)
	}
	if result.WinningBetAmount != 600 {
		t.Fatalf("winningBet=%d want 600", result.WinningBetAmount)
	}
	if result.TotalBetAmount != 700 {
		t.Fatalf("totalBet=%d want 700", result.TotalBetAmount)
	}
}

func TestCalculateLoss(t *testing.T) {
	wagers := []models.Wager{wager("opt-b", 250)}

	result := Calculate(wagers, []string{"opt-a"}, 750, 900)

	if result.Type != CalcLoss {
		t.Fatalf("type=%s want %s", result.Type, CalcLoss)
	}
	if result.SettledAmount() != 0 {
		t.Fatalf("settled=%d want 0", result.SettledAmount())
	}
	if result.TotalBetAmount != 250 {
		t.Fatalf("totalBet=%d want 250", result.TotalBetAmount)
	}
}

func TestCalculateExactSplitLeavesNoResidual(t *testing.T) {
	bets := []int64{333_333, 333_333, 333_334}
	const pool = 1_000_000

	var payouts []int64
	for _, bet := range bets {
		result := Calculate([]models.Wager{wager("opt-a", bet)}, []string{"opt-a"}, pool, pool)
		if result.Type != CalcPayout {
			t.Fatalf("type=%s want %s", result.Type, CalcPayout)
		}
		if result.PayoutAmount != bet {
			t.Fatalf("payout=%d want %d", result.PayoutAmount, bet)
		}
		payouts = append(payouts, result.PayoutAmount)
	}
	if residual := Residual(pool, payouts); residual != 0 {
		t.Fatalf("residual=%d want 0", residual)
	}
}

func TestCalculateFloorResidualBound(t *testing.T) {
	// After commission the payout pool undershoots the winning pool, so
	// per-player flooring must leave a small non-negative remainder.
	bets := []int64{333_333, 333_333, 333_334}
	const winningPool = 1_000_000
	const payoutPool = 999_999

	var payouts []int64
	var totalPaid int64
	for _, bet := range bets {
		result := Calculate([]models.Wager{wager("opt-a", bet)}, []string{"opt-a"}, winningPool, payoutPool)
		if result.PayoutAmount > bet {
			t.Fatalf("payout=%d exceeds bet %d", result.PayoutAmount, bet)
		}
		payouts = append(payouts, result.PayoutAmount)
		totalPaid += result.PayoutAmount
	}
	if totalPaid > payoutPool {
		t.Fatalf("totalPaid=%d exceeds pool %d", totalPaid, payoutPool)
	}
	residual := Residual(payoutPool, payouts)
	if residual < 0 || residual >= int64(len(bets)) {
		t.Fatalf("residual=%d want in [0,%d)", residual, len(bets))
	}
}

func TestCalculateMixedWagersCountOnlyWinningSide(t *testing.T) {
	wagers := []models.Wager{wager("opt-a", 100), wager("opt-b", 400)}

	result := Calculate(wagers, []string{"opt-a"}, 200, 1000)

	if result.Type != CalcPayout {
		t.Fatalf("type=%s want %s", result.Type, CalcPayout)
	}
	// floor(1000 * 100 / 200) = 500; the losing 400 plays no part.
	if result.PayoutAmount != 500 {
		t.Fatalf("payout=%d want 500", result.PayoutAmount)
	}
}

func TestCalculateNegativePayoutPoolClampedToZero(t *testing.T) {
	result := Calculate([]models.Wager{wager("opt-a", 100)}, []string{"opt-a"}, 100, -50)

	if result.Type != CalcPayout {
		t.Fatalf("type=%s want %s", result.Type, CalcPayout)
	}
	if result.PayoutAmount != 0 {
		t.Fatalf("payout=%d want 0", result.PayoutAmount)
	}
}
