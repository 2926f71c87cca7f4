package settlement

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pollboard/internal/models"
	"pollboard/internal/repository"
)

// Finalizer flips the poll to its terminal settled state once every
// participant holds a ledger entry. Safe to call twice: overlapping resume
// runs may both reach the finish line, and only the first flip wins.
type Finalizer struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Agent  string
}

func (f *Finalizer) Finalize(ctx context.Context, pollID string) (FinalizeResult, error) {
	total, err := f.Repo.CountWagerParticipants(ctx, pollID)
	if err != nil {
		return FinalizeResult{}, err
	}
	settled, err := f.Repo.CountPayoutEntries(ctx, pollID, ReasonTagBettingPayout)
	if err != nil {
		return FinalizeResult{}, err
	}
	result := FinalizeResult{
		TotalPlayers:   total,
		SettledPlayers: settled,
	}
	if settled < total {
		// Precondition not met; nothing to flip yet.
		return result, nil
	}
	result.AllPlayersSettled = true

	totals, err := f.Repo.SumPayoutEntries(ctx, pollID, ReasonTagBettingPayout)
	if err != nil {
		return result, err
	}
	result.TotalPayout = totals.TotalAmount
	result.TotalWinners = totals.WinnerCount

	poll, err := f.Repo.GetPollByID(ctx, pollID)
	if err != nil {
		return result, err
	}
	if poll == nil {
		return result, ErrInvalidPoll
	}

	now := time.Now().UTC()
	activeLog, err := f.Repo.GetActiveSettlementLog(ctx, pollID)
	if err != nil {
		return result, err
	}

	var flipped bool
	err = f.Repo.InTx(ctx, func(tx *gorm.DB) error {
		flipped, err = f.Repo.MarkPollSettledTx(ctx, tx, pollID, now, f.Agent)
		if err != nil {
			return err
		}
		log := activeLog
		if log == nil {
			if !flipped {
				// Already settled previously and no open log: a true
				// repeat call, nothing left to record.
				return nil
			}
			log = &models.SettlementLog{
				PollID:         pollID,
				SettlementType: models.SettlementTypeAuto,
				Status:         models.SettlementStatusPending,
				StartedAt:      now,
			}
			if err := f.Repo.CreateSettlementLog(ctx, log); err != nil {
				return err
			}
		}
		log.Status = models.SettlementStatusSuccess
		log.TotalPayout = totals.TotalAmount
		log.TotalWinners = totals.WinnerCount
		log.TotalPool = poll.TotalWagered
		log.Commission = poll.TotalCommission
		log.CompletedAt = &now
		return f.Repo.UpdateSettlementLogTx(ctx, tx, log)
	})
	if err != nil {
		return result, err
	}
	result.Success = true

	if f.Logger != nil && flipped {
		fields := []zap.Field{
			zap.String("poll_id", pollID),
			zap.Int64("total_players", total),
			zap.Int64("total_payout", totals.TotalAmount),
			zap.Int64("total_winners", totals.WinnerCount),
		}
		// When winners exist, every credited unit is payout, so the
		// floor-rounding residual is directly observable here.
		if len(poll.WinningOptions()) > 0 {
			pool := poll.TotalWagered - poll.TotalCommission
			if pool < 0 {
				pool = 0
			}
			fields = append(fields, zap.Int64("payout_residual", pool-totals.TotalAmount))
		}
		f.Logger.Info("poll settlement finalized", fields...)
	}
	return result, nil
}

func marshalLogMeta(meta models.SettlementLogMeta) datatypes.JSON {
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
