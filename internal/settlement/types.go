package settlement

import (
	"errors"
	"time"

	"pollboard/internal/models"
)

// ReasonTagBettingPayout tags every ledger entry this engine writes. The
// existence of a tagged entry is the per-player idempotency marker.
const ReasonTagBettingPayout = "betting_payout"

const (
	DefaultChunkSize      = 30
	DefaultBatchSize      = 100
	DefaultBudget         = 30 * time.Second
	DefaultSafetyMargin   = 3 * time.Second
	DefaultEstimateFactor = 1.2
)

var (
	// ErrInvalidPoll: the poll does not exist. Terminal, no retry.
	ErrInvalidPoll = errors.New("settlement: poll not found")
	// ErrNotBettingMode: the poll exists but takes no wagers.
	ErrNotBettingMode = errors.New("settlement: poll is not betting mode")
)

// CalcType classifies a player's settlement.
type CalcType string

const (
	CalcPayout CalcType = "PAYOUT"
	CalcRefund CalcType = "REFUND"
	CalcLoss   CalcType = "LOSS"
)

// CalcResult is the calculator's verdict for one player.
type CalcResult struct {
	Type             CalcType
	PayoutAmount     int64
	RefundAmount     int64
	TotalBetAmount   int64
	WinningBetAmount int64
}

// SettledAmount is what actually moves to the player.
func (r CalcResult) SettledAmount() int64 {
	return r.PayoutAmount + r.RefundAmount
}

// PlayerOutcome is one player's settlement result inside a batch. Failures
// are carried as values so one player can never abort the batch.
type PlayerOutcome struct {
	PlayerID         string
	Success          bool
	Skipped          bool
	Message          string
	Err              error
	CalcType         CalcType
	SettlementAmount int64
	PayoutAmount     int64
	RefundAmount     int64
	NotificationSent bool
	Validation       *ValidationReport
}

// BatchSummary aggregates outcomes across one orchestrator run.
type BatchSummary struct {
	TotalProcessed        int
	TotalSuccess          int
	TotalSkipped          int
	TotalFailed           int
	TotalSettlementAmount int64
	TotalPayoutAmount     int64
	TotalRefundAmount     int64
}

type BatchResult struct {
	Success bool
	Results []PlayerOutcome
	Summary BatchSummary
}

// SharedData holds the poll-wide aggregates computed once per bulk run.
type SharedData struct {
	Poll             *models.Poll
	WinningOptionIDs []string
	TotalPool        int64
	TotalWinningPool int64
	Commission       int64
	// TotalPool minus Commission, floored at zero.
	TotalPayoutPool int64
}

// RunContext threads one settlement run's state through every call; there
// is deliberately no package-level equivalent.
type RunContext struct {
	PollID           string
	WinningOptionIDs []string
	SettledBy        string
	Shared           *SharedData
}

// Progress is the tracker's view of how far a poll's settlement has come.
type Progress struct {
	TotalPlayers       int64
	SettledPlayers     int64
	UnsettledPlayers   int64
	SettlementProgress float64
	IsFullySettled     bool
	// Linear extrapolation from the active settlement log; nil until at
	// least one player has been processed in the current run.
	EstimatedTimeRemaining *time.Duration
}

// ResumeResult reports one timeout-bounded resume slice.
type ResumeResult struct {
	Success          bool
	ProcessedCount   int
	RemainingCount   int
	WinningOptionIDs []string
	TimedOut         bool
	Finalized        bool
}

// FinalizeResult reports the terminal settlement flip.
type FinalizeResult struct {
	Success           bool
	AllPlayersSettled bool
	TotalPlayers      int64
	SettledPlayers    int64
	TotalPayout       int64
	TotalWinners      int64
}

func winningSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}
