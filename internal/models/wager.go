package models

import "time"

// Wager is a single recorded stake by a player on one poll option.
// Append-only: rows are never updated once created. A player may hold many
// rows per poll (multiple bets, possibly on different options).
type Wager struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	PollID   string `gorm:"type:varchar(100);not null;index:idx_wagers_poll_player;index:idx_wagers_poll_option"`
	PlayerID string `gorm:"type:varchar(100);not null;index:idx_wagers_poll_player"`
	OptionID string `gorm:"type:varchar(100);not null;index:idx_wagers_poll_option"`

	// Positive integer minor units.
	Amount int64 `gorm:"not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (Wager) TableName() string {
	return "wagers"
}
