package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Batch partitions a player list into fixed-size chunks and settles every
// player in a chunk concurrently. All outcomes are collected regardless of
// individual failure; one player can never abort the chunk, the batch, or
// a later chunk. That isolation is the whole point of this component.
type Batch struct {
	Executor *Executor
	// Players settled concurrently per chunk.
	ChunkSize int
	// Pause between chunks to throttle downstream load.
	ChunkDelay time.Duration
	Logger     *zap.Logger
}

func (b *Batch) chunkSize() int {
	if b.ChunkSize > 0 {
		return b.ChunkSize
	}
	return DefaultChunkSize
}

// Run settles playerIDs in chunk order. The only early exit is context
// cancellation between chunks; per-player errors become outcome values.
func (b *Batch) Run(ctx context.Context, run *RunContext, playerIDs []string) BatchResult {
	size := b.chunkSize()
	results := make([]PlayerOutcome, 0, len(playerIDs))

	for start := 0; start < len(playerIDs); start += size {
		if start > 0 {
			if err := ctx.Err(); err != nil {
				// Remaining players stay unsettled and eligible; mark
				// them failed for this run's accounting.
				for _, id := range playerIDs[start:] {
					results = append(results, PlayerOutcome{PlayerID: id, Err: err})
				}
				break
			}
			if b.ChunkDelay > 0 {
				time.Sleep(b.ChunkDelay)
			}
		}
		end := start + size
		if end > len(playerIDs) {
			end = len(playerIDs)
		}
		results = append(results, b.runChunk(ctx, run, playerIDs[start:end])...)
	}

	summary := summarize(results)
	if b.Logger != nil {
		b.Logger.Info("settlement batch complete",
			zap.String("poll_id", run.PollID),
			zap.Int("processed", summary.TotalProcessed),
			zap.Int("success", summary.TotalSuccess),
			zap.Int("skipped", summary.TotalSkipped),
			zap.Int("failed", summary.TotalFailed),
			zap.Int64("settled_amount", summary.TotalSettlementAmount),
		)
	}
	return BatchResult{
		Success: summary.TotalFailed == 0,
		Results: results,
		Summary: summary,
	}
}

// runChunk waits for every player in the chunk, never short-circuiting on
// the first failure. A panic in one player's path is converted to a failed
// outcome so the rest of the chunk still lands.
func (b *Batch) runChunk(ctx context.Context, run *RunContext, playerIDs []string) []PlayerOutcome {
	outcomes := make([]PlayerOutcome, len(playerIDs))
	var wg sync.WaitGroup
	for i, playerID := range playerIDs {
		wg.Add(1)
		go func(idx int, id string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[idx] = PlayerOutcome{
						PlayerID: id,
						Err:      fmt.Errorf("settlement panic: %v", r),
					}
				}
			}()
			outcomes[idx] = b.Executor.SettlePlayer(ctx, run, id)
		}(i, playerID)
	}
	wg.Wait()
	return outcomes
}

func summarize(results []PlayerOutcome) BatchSummary {
	var summary BatchSummary
	summary.TotalProcessed = len(results)
	for _, out := range results {
		switch {
		case out.Skipped:
			summary.TotalSuccess++
			summary.TotalSkipped++
		case out.Success:
			summary.TotalSuccess++
			summary.TotalSettlementAmount += out.SettlementAmount
			summary.TotalPayoutAmount += out.PayoutAmount
			summary.TotalRefundAmount += out.RefundAmount
		default:
			summary.TotalFailed++
		}
	}
	return summary
}
