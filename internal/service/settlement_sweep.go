package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pollboard/internal/config"
	"pollboard/internal/models"
	"pollboard/internal/repository"
	"pollboard/internal/settlement"
)

// SettlementSweepService is the cron job body: it finds betting polls past
// their close time that are not yet settled and drives one resume slice
// for each. Safe to re-run every few minutes until every poll drains;
// overlap with a manual settle is absorbed by per-player idempotency.
type SettlementSweepService struct {
	Repo   repository.Repository
	Driver *settlement.Driver
	Config config.SettlementConfig
	Logger *zap.Logger
	Flags  *SystemSettingsService
}

func (s *SettlementSweepService) RunOnceIfEnabled(ctx context.Context) error {
	if s != nil && s.Flags != nil && !s.Flags.IsEnabled(ctx, FeatureAutoSettlement, true) {
		return nil
	}
	return s.RunOnce(ctx)
}

func (s *SettlementSweepService) RunOnce(ctx context.Context) error {
	if s == nil || s.Repo == nil || s.Driver == nil {
		return nil
	}
	limit := s.Config.SweepPollLimit
	if limit <= 0 {
		limit = 20
	}
	polls, err := s.Repo.ListSettleablePolls(ctx, time.Now().UTC(), limit)
	if err != nil {
		s.logWarn("sweep list polls failed", err)
		return err
	}

	for _, poll := range polls {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := s.Driver.Resume(ctx, poll.ID, settlement.ResumeOptions{
			Budget:         s.Config.Budget,
			SettlementType: models.SettlementTypeAuto,
		})
		if err != nil {
			// One broken poll must not starve the rest of the sweep.
			s.logWarn("sweep resume failed", err, zap.String("poll_id", poll.ID))
			continue
		}
		if s.Logger != nil {
			s.Logger.Info("sweep resume slice",
				zap.String("poll_id", poll.ID),
				zap.Int("processed", result.ProcessedCount),
				zap.Int("remaining", result.RemainingCount),
				zap.Bool("timed_out", result.TimedOut),
				zap.Bool("finalized", result.Finalized),
			)
		}
	}
	return nil
}

func (s *SettlementSweepService) logWarn(msg string, err error, fields ...zap.Field) {
	if s == nil || s.Logger == nil {
		return
	}
	s.Logger.Warn(msg, append(fields, zap.Error(err))...)
}
