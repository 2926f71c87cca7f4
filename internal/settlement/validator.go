package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pollboard/internal/models"
)

// ValidationReport is attached to the player outcome. Errors mean the
// numbers do not reconcile; whether that blocks the credit is the
// executor's strictness policy, not the validator's.
type ValidationReport struct {
	IsValid  bool
	Warnings []string
	Errors   []string
	Summary  string
}

// Validator independently recomputes the calculator's figures from the raw
// inputs. It shares no code path with Calculate on purpose.
type Validator struct {
	// Strict makes validation errors block the ledger credit. Default is
	// record-and-pay: the historical behavior prioritized throughput.
	Strict bool
	Logger *zap.Logger
}

func (v *Validator) Validate(wagers []models.Wager, winningOptionIDs []string, totalWinningPool, totalPayoutPool int64, result CalcResult) ValidationReport {
	report := ValidationReport{IsValid: true}
	fail := func(format string, args ...any) {
		report.IsValid = false
		report.Errors = append(report.Errors, fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...any) {
		report.Warnings = append(report.Warnings, fmt.Sprintf(format, args...))
	}

	winning := winningSet(winningOptionIDs)
	var totalBet, winningBet int64
	for _, w := range wagers {
		if w.Amount <= 0 {
			warn("wager %d has non-positive amount %d", w.ID, w.Amount)
		}
		totalBet += w.Amount
		if _, ok := winning[w.OptionID]; ok {
			winningBet += w.Amount
		}
	}

	if result.TotalBetAmount != totalBet {
		fail("total bet mismatch: declared %d, recomputed %d", result.TotalBetAmount, totalBet)
	}

	switch result.Type {
	case CalcRefund:
		if result.RefundAmount != totalBet {
			fail("refund mismatch: declared %d, wagered %d", result.RefundAmount, totalBet)
		}
		if result.PayoutAmount != 0 {
			fail("refund carries payout %d", result.PayoutAmount)
		}
	case CalcPayout:
		if result.WinningBetAmount != winningBet {
			fail("winning bet mismatch: declared %d, recomputed %d", result.WinningBetAmount, winningBet)
		}
		if totalWinningPool <= 0 {
			fail("payout declared with non-positive winning pool %d", totalWinningPool)
			break
		}
		if totalPayoutPool < 0 {
			totalPayoutPool = 0
		}
		expected := decimal.NewFromInt(totalPayoutPool).
			Mul(decimal.NewFromInt(winningBet)).
			Div(decimal.NewFromInt(totalWinningPool)).
			Floor().
			IntPart()
		// One unit of rounding tolerance.
		if diff := result.PayoutAmount - expected; diff > 1 || diff < -1 {
			fail("payout mismatch: declared %d, recomputed %d", result.PayoutAmount, expected)
		} else if diff != 0 {
			warn("payout off by %d from recomputed value within rounding tolerance", diff)
		}
		if result.RefundAmount != 0 {
			fail("payout carries refund %d", result.RefundAmount)
		}
	case CalcLoss:
		if result.PayoutAmount != 0 || result.RefundAmount != 0 {
			fail("loss carries movement: payout %d refund %d", result.PayoutAmount, result.RefundAmount)
		}
		if winningBet > 0 && totalWinningPool > 0 {
			fail("loss declared for player holding %d on winning options", winningBet)
		}
	default:
		fail("unknown calc type %q", result.Type)
	}

	if report.IsValid {
		report.Summary = fmt.Sprintf("%s ok: bet %d, settled %d", result.Type, totalBet, result.SettledAmount())
	} else {
		report.Summary = fmt.Sprintf("%s invalid: %d error(s)", result.Type, len(report.Errors))
	}

	if v != nil && v.Logger != nil && !report.IsValid {
		v.Logger.Warn("settlement validation failed",
			zap.String("calc_type", string(result.Type)),
			zap.Strings("errors", report.Errors),
		)
	}
	return report
}

// Blocks reports whether this report should stop the credit under the
// validator's strictness policy.
func (v *Validator) Blocks(report ValidationReport) bool {
	return v != nil && v.Strict && !report.IsValid
}
