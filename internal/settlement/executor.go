package settlement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pollboard/internal/ledger"
	"pollboard/internal/notify"
)

// Executor settles exactly one player: guard, calculate, validate, credit,
// notify. The credit write doubles as the settled-marker, so a failed
// credit correctly leaves the player eligible for the next resume pass.
type Executor struct {
	Reader    *Reader
	Guard     *Guard
	Validator *Validator
	Ledger    ledger.AssetLedger
	Notifier  notify.Notifier
	Logger    *zap.Logger
}

// SettlePlayer runs the full single-player path. It returns outcome values,
// never panics upward; "already settled" and "no bets" are successes.
func (e *Executor) SettlePlayer(ctx context.Context, run *RunContext, playerID string) PlayerOutcome {
	outcome := PlayerOutcome{PlayerID: playerID}

	guard, err := e.Guard.Check(ctx, run.PollID, playerID)
	if err != nil {
		outcome.Err = fmt.Errorf("duplicate guard: %w", err)
		return outcome
	}
	if guard.AlreadySettled {
		outcome.Success = true
		outcome.Skipped = true
		outcome.Message = "already settled, skipped"
		return outcome
	}

	wagers, err := e.Reader.PlayerWagers(ctx, run.PollID, playerID)
	if err != nil {
		outcome.Err = fmt.Errorf("load wagers: %w", err)
		return outcome
	}
	if len(wagers) == 0 {
		outcome.Success = true
		outcome.Message = "no bets found"
		return outcome
	}

	shared := run.Shared
	result := Calculate(wagers, run.WinningOptionIDs, shared.TotalWinningPool, shared.TotalPayoutPool)
	outcome.CalcType = result.Type
	outcome.PayoutAmount = result.PayoutAmount
	outcome.RefundAmount = result.RefundAmount

	report := e.Validator.Validate(wagers, run.WinningOptionIDs, shared.TotalWinningPool, shared.TotalPayoutPool, result)
	outcome.Validation = &report
	if e.Validator.Blocks(report) {
		outcome.Err = fmt.Errorf("validation blocked payment: %s", report.Summary)
		return outcome
	}

	amount := result.SettledAmount()
	creditResult, err := e.Ledger.Credit(ctx, ledger.CreditRequest{
		PollID:    run.PollID,
		PlayerID:  playerID,
		AssetID:   shared.Poll.AssetID,
		Amount:    amount,
		Reason:    creditReason(shared.Poll.Title, result),
		ReasonTag: ReasonTagBettingPayout,
		Metadata: map[string]any{
			"payoutAmount": result.PayoutAmount,
			"refundAmount": result.RefundAmount,
			"totalBet":     result.TotalBetAmount,
			"calcType":     string(result.Type),
			"settledBy":    run.SettledBy,
		},
	})
	if err != nil {
		// No entry was written; the player stays eligible for retry.
		outcome.Err = fmt.Errorf("ledger credit: %w", err)
		return outcome
	}
	if creditResult.AlreadySettled {
		// Lost the insert race to a concurrent run. Equivalent to the
		// guard skip, just detected one step later.
		outcome.Success = true
		outcome.Skipped = true
		outcome.Message = "already settled, skipped"
		return outcome
	}

	outcome.Success = true
	outcome.SettlementAmount = amount
	outcome.NotificationSent = e.notify(ctx, run, playerID, result)
	return outcome
}

// notify is strictly best-effort; failures are logged and swallowed.
func (e *Executor) notify(ctx context.Context, run *RunContext, playerID string, result CalcResult) bool {
	if e.Notifier == nil {
		return false
	}
	out := notify.Outcome{
		PollID:         run.PollID,
		PollTitle:      run.Shared.Poll.Title,
		PlayerID:       playerID,
		PayoutAmount:   result.PayoutAmount,
		RefundAmount:   result.RefundAmount,
		TotalBetAmount: result.TotalBetAmount,
	}
	var err error
	switch result.Type {
	case CalcRefund:
		err = e.Notifier.NotifyRefund(ctx, out)
	case CalcPayout:
		err = e.Notifier.NotifyWin(ctx, out)
	default:
		err = e.Notifier.NotifyLoss(ctx, out)
	}
	if err != nil {
		if e.Logger != nil {
			e.Logger.Warn("settlement notification failed",
				zap.String("poll_id", run.PollID),
				zap.String("player_id", playerID),
				zap.Error(err),
			)
		}
		return false
	}
	return true
}

func creditReason(pollTitle string, result CalcResult) string {
	if result.SettledAmount() == 0 {
		return fmt.Sprintf("Betting payout for poll %q (Loss - No payout)", pollTitle)
	}
	return fmt.Sprintf("Betting payout for poll %q", pollTitle)
}
