package settlement

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"pollboard/internal/models"
	"pollboard/internal/repository"
)

// Driver is the timeout-bounded resume loop. Each call processes as many
// batches as fit inside the wall-clock budget, checkpoints progress in the
// settlement log, and reports whether another call is needed. The timeout
// is cooperative: a batch in flight always finishes, only the next batch
// is gated, so a ledger credit is never interrupted mid-write.
//
// Two concurrent Resume calls for the same poll are tolerated, not
// prevented: per-player idempotency in the ledger resolves the overlap.
type Driver struct {
	Repo      repository.Repository
	Reader    *Reader
	Batch     *Batch
	Tracker   *Tracker
	Finalizer *Finalizer
	Cache     *Cache
	Logger    *zap.Logger

	// Identifier recorded as the settling agent.
	Agent string

	// Players per batch slice. Zero means DefaultBatchSize.
	BatchSize int
	// Stop margin subtracted from the remaining budget before gating the
	// next batch. Zero means DefaultSafetyMargin.
	SafetyMargin time.Duration
	// Next-batch duration estimate multiplier. Zero means DefaultEstimateFactor.
	EstimateFactor float64
}

type ResumeOptions struct {
	// Wall-clock budget; zero means DefaultBudget.
	Budget time.Duration
	// manual | auto; stamped on the settlement log.
	SettlementType string
}

func (d *Driver) batchSize() int {
	if d.BatchSize > 0 {
		return d.BatchSize
	}
	return DefaultBatchSize
}

func (d *Driver) safetyMargin() time.Duration {
	if d.SafetyMargin > 0 {
		return d.SafetyMargin
	}
	return DefaultSafetyMargin
}

func (d *Driver) estimateFactor() float64 {
	if d.EstimateFactor > 0 {
		return d.EstimateFactor
	}
	return DefaultEstimateFactor
}

// Resume drives one settlement slice. RemainingCount > 0 in the result is
// the continuation signal; callers re-invoke until it reaches zero.
func (d *Driver) Resume(ctx context.Context, pollID string, opts ResumeOptions) (ResumeResult, error) {
	start := time.Now()
	budget := opts.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	deadline := start.Add(budget)

	poll, err := d.Reader.PollForSettlement(ctx, pollID)
	if err != nil {
		return ResumeResult{}, err
	}

	progress, err := d.Tracker.Progress(ctx, pollID)
	if err != nil {
		return ResumeResult{}, err
	}
	if progress.IsFullySettled {
		result := ResumeResult{Success: true, WinningOptionIDs: poll.WinningOptions()}
		if !poll.IsSettled {
			fin, err := d.Finalizer.Finalize(ctx, pollID)
			if err != nil {
				return result, err
			}
			result.Finalized = fin.Success
		}
		return result, nil
	}

	winners, err := d.determineWinners(ctx, poll)
	if err != nil {
		return ResumeResult{}, err
	}

	shared, err := d.Cache.GetOrCompute(ctx, d.Reader, poll, winners)
	if err != nil {
		return ResumeResult{}, err
	}
	run := &RunContext{
		PollID:           pollID,
		WinningOptionIDs: winners,
		SettledBy:        d.Agent,
		Shared:           shared,
	}

	remaining, err := d.remainingPlayers(ctx, pollID)
	if err != nil {
		return ResumeResult{}, err
	}

	log, meta, err := d.openSettlementLog(ctx, pollID, opts.SettlementType, shared, progress)
	if err != nil {
		return ResumeResult{}, err
	}

	result := ResumeResult{WinningOptionIDs: winners}
	size := d.batchSize()
	var lastBatchDuration time.Duration

	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if lastBatchDuration > 0 {
			projected := time.Duration(float64(lastBatchDuration) * d.estimateFactor())
			if time.Until(deadline)-d.safetyMargin() < projected {
				result.TimedOut = true
				break
			}
		}

		end := size
		if end > len(remaining) {
			end = len(remaining)
		}
		slice := remaining[:end]

		batchStart := time.Now()
		batch := d.Batch.Run(ctx, run, slice)
		lastBatchDuration = time.Since(batchStart)

		result.ProcessedCount += batch.Summary.TotalProcessed
		remaining = remaining[end:]

		meta.ProcessedPlayerCount += int64(batch.Summary.TotalProcessed)
		meta.LastProcessedPlayerID = slice[len(slice)-1]
		meta.TotalPayoutAmount += batch.Summary.TotalPayoutAmount
		meta.TotalRefundAmount += batch.Summary.TotalRefundAmount
		log.Status = models.SettlementStatusPartial
		log.TotalPayout = meta.TotalPayoutAmount
		log.Metadata = marshalLogMeta(meta)
		if err := d.Repo.UpdateSettlementLog(ctx, log); err != nil && d.Logger != nil {
			d.Logger.Warn("settlement checkpoint update failed",
				zap.String("poll_id", pollID), zap.Error(err))
		}

		if batch.Summary.TotalFailed > 0 {
			// Failed players stay in the ledger-less state and will be
			// picked up by the next resume call; they are no longer part
			// of this run's remaining slice.
			if d.Logger != nil {
				d.Logger.Warn("settlement batch had failures",
					zap.String("poll_id", pollID),
					zap.Int("failed", batch.Summary.TotalFailed),
				)
			}
		}
	}

	result.RemainingCount = len(remaining)
	if result.RemainingCount == 0 {
		// Recompute from the ledger: players that failed in this run must
		// block finalization even though the slice is drained.
		progress, err = d.Tracker.Progress(ctx, pollID)
		if err != nil {
			return result, err
		}
		result.RemainingCount = int(progress.UnsettledPlayers)
		if progress.IsFullySettled {
			fin, err := d.Finalizer.Finalize(ctx, pollID)
			if err != nil {
				return result, err
			}
			result.Finalized = fin.Success
			d.Cache.Invalidate(pollID)
		}
	}

	result.Success = true
	if d.Logger != nil {
		d.Logger.Info("settlement resume slice done",
			zap.String("poll_id", pollID),
			zap.Int("processed", result.ProcessedCount),
			zap.Int("remaining", result.RemainingCount),
			zap.Bool("timed_out", result.TimedOut),
			zap.Bool("finalized", result.Finalized),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return result, nil
}

// determineWinners returns the poll's stored winning option set, falling
// back to the option with the most distinct bettors when none was drawn.
// The fallback is deterministic: participant count desc, option id asc.
func (d *Driver) determineWinners(ctx context.Context, poll *models.Poll) ([]string, error) {
	if ids := poll.WinningOptions(); len(ids) > 0 {
		return ids, nil
	}
	aggregates, err := d.Reader.OptionAggregates(ctx, poll.ID)
	if err != nil {
		return nil, err
	}
	var best *repository.OptionAggregate
	for i := range aggregates {
		agg := &aggregates[i]
		if best == nil ||
			agg.ParticipantCount > best.ParticipantCount ||
			(agg.ParticipantCount == best.ParticipantCount && agg.OptionID < best.OptionID) {
			best = agg
		}
	}
	if best == nil {
		// No wagers at all; settle as void.
		return nil, nil
	}
	winners := []string{best.OptionID}
	if err := d.Repo.SetPollWinningOptions(ctx, poll.ID, winners); err != nil {
		return nil, err
	}
	if d.Logger != nil {
		d.Logger.Info("auto-detected winning option",
			zap.String("poll_id", poll.ID),
			zap.String("option_id", best.OptionID),
			zap.Int64("participants", best.ParticipantCount),
		)
	}
	return winners, nil
}

// remainingPlayers diffs all participants against players already holding
// a tagged payout entry, preserving participant order.
func (d *Driver) remainingPlayers(ctx context.Context, pollID string) ([]string, error) {
	participants, err := d.Reader.ParticipantIDs(ctx, pollID)
	if err != nil {
		return nil, err
	}
	settledIDs, err := d.Repo.ListSettledPlayerIDs(ctx, pollID, ReasonTagBettingPayout)
	if err != nil {
		return nil, err
	}
	settled := make(map[string]struct{}, len(settledIDs))
	for _, id := range settledIDs {
		settled[id] = struct{}{}
	}
	remaining := make([]string, 0, len(participants))
	for _, id := range participants {
		if _, ok := settled[id]; !ok {
			remaining = append(remaining, id)
		}
	}
	return remaining, nil
}

// openSettlementLog reuses the active PENDING/PARTIAL log or creates one.
func (d *Driver) openSettlementLog(ctx context.Context, pollID, settlementType string, shared *SharedData, progress Progress) (*models.SettlementLog, models.SettlementLogMeta, error) {
	if settlementType != models.SettlementTypeManual {
		settlementType = models.SettlementTypeAuto
	}
	log, err := d.Repo.GetActiveSettlementLog(ctx, pollID)
	if err != nil {
		return nil, models.SettlementLogMeta{}, err
	}
	var meta models.SettlementLogMeta
	if log != nil {
		if len(log.Metadata) > 0 {
			_ = json.Unmarshal(log.Metadata, &meta)
		}
		meta.TotalPlayerCount = progress.TotalPlayers
		return log, meta, nil
	}
	meta = models.SettlementLogMeta{TotalPlayerCount: progress.TotalPlayers}
	log = &models.SettlementLog{
		PollID:         pollID,
		SettlementType: settlementType,
		Status:         models.SettlementStatusPending,
		TotalPool:      shared.TotalPool,
		Commission:     shared.Commission,
		Metadata:       marshalLogMeta(meta),
		StartedAt:      time.Now().UTC(),
	}
	if err := d.Repo.CreateSettlementLog(ctx, log); err != nil {
		return nil, meta, err
	}
	return log, meta, nil
}
