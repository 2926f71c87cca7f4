package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"pollboard/internal/models"
)

// OptionAggregate is the per-option wager rollup for one poll.
type OptionAggregate struct {
	OptionID         string
	TotalAmount      int64
	ParticipantCount int64
}

// PlayerAggregate is the per-player wager rollup for one poll.
type PlayerAggregate struct {
	PlayerID    string
	TotalAmount int64
	BetCount    int64
	FirstBetAt  time.Time
	LastBetAt   time.Time
}

type ListPlayerAggregatesParams struct {
	Limit  int
	Offset int
	// amount | count | time
	OrderBy string
	Asc     *bool
}

type ListSettlementLogsParams struct {
	Limit  int
	Offset int
	Status *string
}

// PayoutTotals is the rollup of payout ledger entries for one poll+tag.
type PayoutTotals struct {
	TotalAmount int64
	// Entries with amount > 0.
	WinnerCount int64
	EntryCount  int64
}

// Repository is the persistence surface the settlement engine depends on.
// The gorm implementation lives in repository/gorm; tests use an in-memory stub.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Polls.
	GetPollByID(ctx context.Context, id string) (*models.Poll, error)
	ListPollOptions(ctx context.Context, pollID string) ([]models.PollOption, error)
	ListSettleablePolls(ctx context.Context, now time.Time, limit int) ([]models.Poll, error)
	SetPollWinningOptions(ctx context.Context, pollID string, optionIDs []string) error
	// MarkPollSettledTx flips is_settled only when still false and reports
	// whether this call performed the flip.
	MarkPollSettledTx(ctx context.Context, tx *gorm.DB, pollID string, settledAt time.Time, settledBy string) (bool, error)

	// Wagers (read-only aggregation).
	AggregateWagersByOption(ctx context.Context, pollID string) ([]OptionAggregate, error)
	AggregateWagersByPlayer(ctx context.Context, pollID string, params ListPlayerAggregatesParams) ([]PlayerAggregate, error)
	ListWagerParticipantIDs(ctx context.Context, pollID string) ([]string, error)
	CountWagerParticipants(ctx context.Context, pollID string) (int64, error)
	ListWagersByPollAndPlayer(ctx context.Context, pollID, playerID string) ([]models.Wager, error)
	SumWagers(ctx context.Context, pollID string) (int64, error)
	SumWagersForOptions(ctx context.Context, pollID string, optionIDs []string) (int64, error)

	// Payout ledger (reads; writes go through the ledger service).
	GetPayoutEntry(ctx context.Context, pollID, playerID, reasonTag string) (*models.PayoutLedgerEntry, error)
	ListSettledPlayerIDs(ctx context.Context, pollID, reasonTag string) ([]string, error)
	CountPayoutEntries(ctx context.Context, pollID, reasonTag string) (int64, error)
	SumPayoutEntries(ctx context.Context, pollID, reasonTag string) (PayoutTotals, error)
	// InsertPayoutEntryTx is a conditional insert: the unique index on
	// (poll_id, player_id, reason_tag) makes it a no-op when an entry
	// already exists. Reports whether a row was written.
	InsertPayoutEntryTx(ctx context.Context, tx *gorm.DB, item *models.PayoutLedgerEntry) (bool, error)
	AdjustPlayerAssetTx(ctx context.Context, tx *gorm.DB, playerID, assetID string, delta int64) error

	// Settlement logs.
	GetActiveSettlementLog(ctx context.Context, pollID string) (*models.SettlementLog, error)
	CreateSettlementLog(ctx context.Context, item *models.SettlementLog) error
	UpdateSettlementLog(ctx context.Context, item *models.SettlementLog) error
	UpdateSettlementLogTx(ctx context.Context, tx *gorm.DB, item *models.SettlementLog) error
	ListSettlementLogs(ctx context.Context, pollID string, params ListSettlementLogsParams) ([]models.SettlementLog, error)

	// System settings.
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
}
