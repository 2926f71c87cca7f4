package settlement

import (
	"context"
	"encoding/json"
	"time"

	"pollboard/internal/repository"
)

// Tracker reports how far a poll's settlement has come. The settled count
// is the tagged ledger-entry count: it equals the settled-player count only
// because the one-entry-per-player invariant holds, which the unique index
// enforces on the write side.
type Tracker struct {
	Repo repository.Repository
}

func (t *Tracker) Progress(ctx context.Context, pollID string) (Progress, error) {
	total, err := t.Repo.CountWagerParticipants(ctx, pollID)
	if err != nil {
		return Progress{}, err
	}
	settled, err := t.Repo.CountPayoutEntries(ctx, pollID, ReasonTagBettingPayout)
	if err != nil {
		return Progress{}, err
	}

	if settled > total {
		// Count-based approximation drifted (e.g. wagers purged); clamp.
		settled = total
	}
	progress := Progress{
		TotalPlayers:   total,
		SettledPlayers: settled,
	}
	progress.UnsettledPlayers = total - settled
	if total > 0 {
		progress.SettlementProgress = float64(settled) / float64(total) * 100
	} else {
		progress.SettlementProgress = 100
	}
	progress.IsFullySettled = progress.UnsettledPlayers == 0

	if eta := t.estimate(ctx, pollID, progress.UnsettledPlayers); eta != nil {
		progress.EstimatedTimeRemaining = eta
	}
	return progress, nil
}

// estimate extrapolates linearly from the active settlement log:
// (elapsed / processed) x remaining. Nil until the current run has
// processed at least one player.
func (t *Tracker) estimate(ctx context.Context, pollID string, remaining int64) *time.Duration {
	if remaining <= 0 {
		return nil
	}
	log, err := t.Repo.GetActiveSettlementLog(ctx, pollID)
	if err != nil || log == nil || len(log.Metadata) == 0 {
		return nil
	}
	var meta struct {
		ProcessedPlayerCount int64 `json:"processedPlayerCount"`
	}
	if err := json.Unmarshal(log.Metadata, &meta); err != nil || meta.ProcessedPlayerCount <= 0 {
		return nil
	}
	elapsed := time.Since(log.StartedAt)
	if elapsed <= 0 {
		return nil
	}
	eta := time.Duration(int64(elapsed) / meta.ProcessedPlayerCount * remaining)
	return &eta
}
