package db

import (
	"pollboard/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Poll{},
		&models.PollOption{},
		&models.Wager{},
		&models.PayoutLedgerEntry{},
		&models.PlayerAsset{},
		&models.SettlementLog{},
		&models.SystemSetting{},
	)
}
