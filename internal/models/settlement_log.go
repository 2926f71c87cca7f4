package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SettlementTypeManual = "manual"
	SettlementTypeAuto   = "auto"

	SettlementStatusPending = "PENDING"
	SettlementStatusPartial = "PARTIAL"
	SettlementStatusSuccess = "SUCCESS"
)

// SettlementLog is the resumability checkpoint for one settlement run.
// Normally one PENDING/PARTIAL row is active per poll at a time; the
// finalization step transitions it to SUCCESS exactly once.
type SettlementLog struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	PollID string `gorm:"type:varchar(100);not null;index"`

	SettlementType string `gorm:"type:varchar(20);not null"`
	Status         string `gorm:"type:varchar(20);not null;index"`

	TotalPayout  int64 `gorm:"not null;default:0"`
	TotalWinners int64 `gorm:"not null;default:0"`
	TotalPool    int64 `gorm:"not null;default:0"`
	Commission   int64 `gorm:"not null;default:0"`

	// Free-form progress metadata: processedPlayerCount, totalPlayerCount,
	// lastProcessedPlayerId, running payout/refund sums.
	Metadata datatypes.JSON `gorm:"type:jsonb"`

	StartedAt   time.Time  `gorm:"type:timestamptz;not null"`
	CompletedAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (SettlementLog) TableName() string {
	return "settlement_logs"
}

// SettlementLogMeta is the decoded shape of SettlementLog.Metadata.
type SettlementLogMeta struct {
	ProcessedPlayerCount  int64  `json:"processedPlayerCount"`
	TotalPlayerCount      int64  `json:"totalPlayerCount"`
	LastProcessedPlayerID string `json:"lastProcessedPlayerId,omitempty"`
	TotalPayoutAmount     int64  `json:"totalPayoutAmount"`
	TotalRefundAmount     int64  `json:"totalRefundAmount"`
}
