package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pollboard/internal/models"
	"pollboard/internal/repository"
)

// CreditRequest asks for a player balance adjustment plus an immutable
// ledger entry. Amount may be zero: a zero credit still writes the entry,
// which is what marks a losing player as settled.
type CreditRequest struct {
	PollID    string
	PlayerID  string
	AssetID   string
	Amount    int64
	Reason    string
	ReasonTag string
	Metadata  map[string]any
}

type CreditResult struct {
	Credited bool
	// True when an entry with the same (poll, player, reason tag) already
	// existed; the balance is untouched in that case.
	AlreadySettled bool
}

// AssetLedger is the player balance collaborator the settlement engine
// depends on. Credit must be atomic: balance update and ledger row land
// in one transaction or not at all.
type AssetLedger interface {
	Credit(ctx context.Context, req CreditRequest) (CreditResult, error)
}

// Service is the gorm-backed AssetLedger. The conditional insert on the
// (poll_id, player_id, reason_tag) unique index collapses the classic
// check-then-credit race into a single atomic operation: whichever of two
// concurrent settlement runs inserts first wins, the other sees
// AlreadySettled and adjusts nothing.
type Service struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (s *Service) Credit(ctx context.Context, req CreditRequest) (CreditResult, error) {
	if s == nil || s.Repo == nil {
		return CreditResult{}, errors.New("ledger: repository unavailable")
	}
	if strings.TrimSpace(req.PollID) == "" || strings.TrimSpace(req.PlayerID) == "" {
		return CreditResult{}, errors.New("ledger: poll id and player id required")
	}
	if req.Amount < 0 {
		return CreditResult{}, errors.New("ledger: negative credit amount")
	}
	if strings.TrimSpace(req.ReasonTag) == "" {
		return CreditResult{}, errors.New("ledger: reason tag required")
	}

	var meta datatypes.JSON
	if req.Metadata != nil {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return CreditResult{}, err
		}
		meta = datatypes.JSON(raw)
	}

	var result CreditResult
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		inserted, err := s.Repo.InsertPayoutEntryTx(ctx, tx, &models.PayoutLedgerEntry{
			PollID:    req.PollID,
			PlayerID:  req.PlayerID,
			AssetID:   req.AssetID,
			Amount:    req.Amount,
			Reason:    req.Reason,
			ReasonTag: req.ReasonTag,
			Metadata:  meta,
		})
		if err != nil {
			return err
		}
		if !inserted {
			result.AlreadySettled = true
			return nil
		}
		if req.Amount > 0 {
			if err := s.Repo.AdjustPlayerAssetTx(ctx, tx, req.PlayerID, req.AssetID, req.Amount); err != nil {
				return err
			}
		}
		result.Credited = true
		return nil
	})
	if err != nil {
		return CreditResult{}, err
	}
	if s.Logger != nil && result.Credited {
		s.Logger.Debug("ledger credit",
			zap.String("poll_id", req.PollID),
			zap.String("player_id", req.PlayerID),
			zap.Int64("amount", req.Amount),
			zap.String("reason_tag", req.ReasonTag),
		)
	}
	return result, nil
}
