package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const PollModeBetting = "betting"

// Poll is a betting-mode poll. Wagers are placed on mutually exclusive options;
// once the winning option set is drawn the settlement engine distributes the pool.
type Poll struct {
	ID    string `gorm:"primaryKey;type:varchar(100)"`
	Title string `gorm:"type:text;not null"`
	Mode  string `gorm:"type:varchar(20);not null;index"`

	// Asset used for both wagers and payouts.
	AssetID string `gorm:"type:varchar(100);not null"`

	CommissionRate decimal.Decimal `gorm:"type:numeric(10,6);not null;default:0"`
	MinWager       int64           `gorm:"not null;default:0"`
	MaxWager       int64           `gorm:"not null;default:0"`

	// Denormalized running totals, maintained at wager time.
	TotalWagered    int64 `gorm:"not null;default:0"`
	TotalCommission int64 `gorm:"not null;default:0"`

	// JSON list of option ids; empty until draw. An empty set at settlement
	// time means void: every player is refunded.
	WinningOptionIDs datatypes.JSON `gorm:"type:jsonb"`

	// Flips exactly once, by the finalization step, after full player coverage.
	IsSettled bool       `gorm:"not null;default:false;index"`
	SettledAt *time.Time `gorm:"type:timestamptz"`
	SettledBy string     `gorm:"type:varchar(100)"`

	ClosesAt  *time.Time `gorm:"type:timestamptz;index"`
	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime"`

	Options []PollOption `gorm:"foreignKey:PollID"`
}

func (Poll) TableName() string {
	return "polls"
}

// WinningOptions decodes the stored winning option id list. A missing or
// malformed value decodes as empty, which the engine treats as "not drawn".
func (p *Poll) WinningOptions() []string {
	if p == nil || len(p.WinningOptionIDs) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(p.WinningOptionIDs, &ids); err != nil {
		return nil
	}
	return ids
}

type PollOption struct {
	ID     string `gorm:"primaryKey;type:varchar(100)"`
	PollID string `gorm:"type:varchar(100);not null;index"`
	Label  string `gorm:"type:text;not null"`

	// Denormalized per-option wagered total.
	TotalWagered int64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (PollOption) TableName() string {
	return "poll_options"
}
