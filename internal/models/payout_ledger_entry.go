package models

import (
	"time"

	"gorm.io/datatypes"
)

// PayoutLedgerEntry is an immutable ledger row written by the asset ledger
// service when a player's balance is adjusted. The settlement engine reads
// these rows as its idempotency markers: the composite unique index on
// (poll_id, player_id, reason_tag) guarantees at most one settlement entry
// per player per poll, even under concurrent resume runs. A zero-amount
// entry for a losing player still counts as settled.
type PayoutLedgerEntry struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	PollID   string `gorm:"type:varchar(100);not null;uniqueIndex:idx_payout_poll_player_tag"`
	PlayerID string `gorm:"type:varchar(100);not null;uniqueIndex:idx_payout_poll_player_tag"`
	AssetID  string `gorm:"type:varchar(100);not null"`

	// May be zero (loss marker). Never negative.
	Amount int64 `gorm:"not null"`

	// Human-readable reason, e.g. `Betting payout for poll "Derby"`.
	Reason string `gorm:"type:text;not null"`

	// Machine discriminator, e.g. "betting_payout".
	ReasonTag string `gorm:"type:varchar(60);not null;uniqueIndex:idx_payout_poll_player_tag;index"`

	// Structured split: payout vs refund amounts, calculation type.
	Metadata datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (PayoutLedgerEntry) TableName() string {
	return "payout_ledger_entries"
}

// PlayerAsset is the balance row mutated by the asset ledger service.
// Balance changes and ledger entries are written in one transaction.
type PlayerAsset struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	PlayerID string `gorm:"type:varchar(100);not null;uniqueIndex:idx_player_asset"`
	AssetID  string `gorm:"type:varchar(100);not null;uniqueIndex:idx_player_asset"`

	Balance int64 `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (PlayerAsset) TableName() string {
	return "player_assets"
}
