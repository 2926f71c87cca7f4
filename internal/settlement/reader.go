package settlement

import (
	"context"

	"pollboard/internal/models"
	"pollboard/internal/repository"
)

// Reader is the read-only aggregation surface over raw wager rows. It never
// caches: every call reflects the store at call time. Poll-wide memoization
// for bulk runs is the cache's job, not the reader's.
type Reader struct {
	Repo repository.Repository
}

// PollForSettlement loads the poll and rejects anything the engine cannot
// settle: missing polls and non-betting modes come back as typed errors.
func (r *Reader) PollForSettlement(ctx context.Context, pollID string) (*models.Poll, error) {
	poll, err := r.Repo.GetPollByID(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if poll == nil {
		return nil, ErrInvalidPoll
	}
	if poll.Mode != models.PollModeBetting {
		return nil, ErrNotBettingMode
	}
	return poll, nil
}

func (r *Reader) OptionAggregates(ctx context.Context, pollID string) ([]repository.OptionAggregate, error) {
	return r.Repo.AggregateWagersByOption(ctx, pollID)
}

func (r *Reader) PlayerAggregates(ctx context.Context, pollID string, params repository.ListPlayerAggregatesParams) ([]repository.PlayerAggregate, error) {
	return r.Repo.AggregateWagersByPlayer(ctx, pollID, params)
}

func (r *Reader) ParticipantIDs(ctx context.Context, pollID string) ([]string, error) {
	return r.Repo.ListWagerParticipantIDs(ctx, pollID)
}

func (r *Reader) ParticipantCount(ctx context.Context, pollID string) (int64, error) {
	return r.Repo.CountWagerParticipants(ctx, pollID)
}

func (r *Reader) PlayerWagers(ctx context.Context, pollID, playerID string) ([]models.Wager, error) {
	return r.Repo.ListWagersByPollAndPlayer(ctx, pollID, playerID)
}

func (r *Reader) TotalPool(ctx context.Context, pollID string) (int64, error) {
	return r.Repo.SumWagers(ctx, pollID)
}

func (r *Reader) WinningPool(ctx context.Context, pollID string, winningOptionIDs []string) (int64, error) {
	return r.Repo.SumWagersForOptions(ctx, pollID, winningOptionIDs)
}
