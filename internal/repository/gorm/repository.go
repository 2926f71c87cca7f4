package gormrepository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pollboard/internal/models"
	"pollboard/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- polls ------------------------------------------------------------------

func (s *Store) GetPollByID(ctx context.Context, id string) (*models.Poll, error) {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil, nil
	}
	var item models.Poll
	err := s.db.WithContext(ctx).
		Preload("Options").
		Where("id = ?", strings.TrimSpace(id)).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPollOptions(ctx context.Context, pollID string) ([]models.PollOption, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.PollOption
	if err := s.db.WithContext(ctx).
		Model(&models.PollOption{}).
		Where("poll_id = ?", pollID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSettleablePolls(ctx context.Context, now time.Time, limit int) ([]models.Poll, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	limit = normalizeLimit(limit, 50)
	var items []models.Poll
	if err := s.db.WithContext(ctx).
		Model(&models.Poll{}).
		Where("mode = ?", models.PollModeBetting).
		Where("is_settled = ?", false).
		Where("closes_at IS NOT NULL AND closes_at <= ?", now).
		Order("closes_at asc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SetPollWinningOptions(ctx context.Context, pollID string, optionIDs []string) error {
	if s == nil || s.db == nil || strings.TrimSpace(pollID) == "" {
		return nil
	}
	raw, err := encodeStringList(optionIDs)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Model(&models.Poll{}).
		Where("id = ?", pollID).
		Updates(map[string]any{
			"winning_option_ids": datatypes.JSON(raw),
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (s *Store) MarkPollSettledTx(ctx context.Context, tx *gorm.DB, pollID string, settledAt time.Time, settledBy string) (bool, error) {
	if tx == nil {
		tx = s.db
	}
	if tx == nil {
		return false, nil
	}
	res := tx.WithContext(ctx).
		Model(&models.Poll{}).
		Where("id = ?", pollID).
		Where("is_settled = ?", false).
		Updates(map[string]any{
			"is_settled": true,
			"settled_at": settledAt,
			"settled_by": settledBy,
		})
	return res.RowsAffected > 0, res.Error
}

// --- wagers -----------------------------------------------------------------

func (s *Store) AggregateWagersByOption(ctx context.Context, pollID string) ([]repository.OptionAggregate, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var rows []repository.OptionAggregate
	err := s.db.WithContext(ctx).
		Model(&models.Wager{}).
		Select(`
			option_id AS option_id,
			COALESCE(SUM(amount),0) AS total_amount,
			COUNT(DISTINCT player_id) AS participant_count`).
		Where("poll_id = ?", pollID).
		Group("option_id").
		Order("option_id asc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) AggregateWagersByPlayer(ctx context.Context, pollID string, params repository.ListPlayerAggregatesParams) ([]repository.PlayerAggregate, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	column := "total_amount"
	switch strings.TrimSpace(params.OrderBy) {
	case "count":
		column = "bet_count"
	case "time":
		column = "last_bet_at"
	}
	direction := "desc"
	if params.Asc != nil && *params.Asc {
		direction = "asc"
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var rows []repository.PlayerAggregate
	err := s.db.WithContext(ctx).
		Model(&models.Wager{}).
		Select(`
			player_id AS player_id,
			COALESCE(SUM(amount),0) AS total_amount,
			COUNT(*) AS bet_count,
			MIN(created_at) AS first_bet_at,
			MAX(created_at) AS last_bet_at`).
		Where("poll_id = ?", pollID).
		Group("player_id").
		Order(column + " " + direction).
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) ListWagerParticipantIDs(ctx context.Context, pollID string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.Wager{}).
		Distinct("player_id").
		Where("poll_id = ?", pollID).
		Order("player_id asc").
		Pluck("player_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) CountWagerParticipants(ctx context.Context, pollID string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Wager{}).
		Distinct("player_id").
		Where("poll_id = ?", pollID).
		Count(&count).Error
	return count, err
}

func (s *Store) ListWagersByPollAndPlayer(ctx context.Context, pollID, playerID string) ([]models.Wager, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Wager
	err := s.db.WithContext(ctx).
		Model(&models.Wager{}).
		Where("poll_id = ?", pollID).
		Where("player_id = ?", playerID).
		Order("created_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SumWagers(ctx context.Context, pollID string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.Wager{}).
		Select("COALESCE(SUM(amount),0)").
		Where("poll_id = ?", pollID).
		Scan(&total).Error
	return total, err
}

func (s *Store) SumWagersForOptions(ctx context.Context, pollID string, optionIDs []string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	optionIDs = cleanStrings(optionIDs)
	if len(optionIDs) == 0 {
		return 0, nil
	}
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.Wager{}).
		Select("COALESCE(SUM(amount),0)").
		Where("poll_id = ?", pollID).
		Where("option_id IN ?", optionIDs).
		Scan(&total).Error
	return total, err
}

// --- payout ledger ----------------------------------------------------------

func (s *Store) GetPayoutEntry(ctx context.Context, pollID, playerID, reasonTag string) (*models.PayoutLedgerEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.PayoutLedgerEntry
	err := s.db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Where("player_id = ?", playerID).
		Where("reason_tag = ?", reasonTag).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSettledPlayerIDs(ctx context.Context, pollID, reasonTag string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.PayoutLedgerEntry{}).
		Where("poll_id = ?", pollID).
		Where("reason_tag = ?", reasonTag).
		Order("player_id asc").
		Pluck("player_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) CountPayoutEntries(ctx context.Context, pollID, reasonTag string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.PayoutLedgerEntry{}).
		Where("poll_id = ?", pollID).
		Where("reason_tag = ?", reasonTag).
		Count(&count).Error
	return count, err
}

func (s *Store) SumPayoutEntries(ctx context.Context, pollID, reasonTag string) (repository.PayoutTotals, error) {
	if s == nil || s.db == nil {
		return repository.PayoutTotals{}, nil
	}
	var totals repository.PayoutTotals
	err := s.db.WithContext(ctx).
		Model(&models.PayoutLedgerEntry{}).
		Select(`
			COALESCE(SUM(amount),0) AS total_amount,
			COUNT(*) FILTER (WHERE amount > 0) AS winner_count,
			COUNT(*) AS entry_count`).
		Where("poll_id = ?", pollID).
		Where("reason_tag = ?", reasonTag).
		Scan(&totals).Error
	return totals, err
}

func (s *Store) InsertPayoutEntryTx(ctx context.Context, tx *gorm.DB, item *models.PayoutLedgerEntry) (bool, error) {
	if tx == nil {
		tx = s.db
	}
	if tx == nil || item == nil {
		return false, nil
	}
	// Uniqueness is enforced by idx_payout_poll_player_tag; a duplicate
	// settlement attempt collapses into a zero-row no-op here.
	res := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "poll_id"}, {Name: "player_id"}, {Name: "reason_tag"}},
		DoNothing: true,
	}).Create(item)
	return res.RowsAffected > 0, res.Error
}

func (s *Store) AdjustPlayerAssetTx(ctx context.Context, tx *gorm.DB, playerID, assetID string, delta int64) error {
	if tx == nil {
		tx = s.db
	}
	if tx == nil {
		return nil
	}
	now := time.Now().UTC()
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "player_id"}, {Name: "asset_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"balance":    gorm.Expr("player_assets.balance + ?", delta),
			"updated_at": now,
		}),
	}).Create(&models.PlayerAsset{
		PlayerID:  playerID,
		AssetID:   assetID,
		Balance:   delta,
		UpdatedAt: now,
	}).Error
}

// --- settlement logs --------------------------------------------------------

func (s *Store) GetActiveSettlementLog(ctx context.Context, pollID string) (*models.SettlementLog, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SettlementLog
	err := s.db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Where("status IN ?", []string{models.SettlementStatusPending, models.SettlementStatusPartial}).
		Order("created_at desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateSettlementLog(ctx context.Context, item *models.SettlementLog) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateSettlementLog(ctx context.Context, item *models.SettlementLog) error {
	if s == nil || s.db == nil || item == nil || item.ID == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) UpdateSettlementLogTx(ctx context.Context, tx *gorm.DB, item *models.SettlementLog) error {
	if tx == nil {
		tx = s.db
	}
	if tx == nil || item == nil || item.ID == 0 {
		return nil
	}
	return tx.WithContext(ctx).Save(item).Error
}

func (s *Store) ListSettlementLogs(ctx context.Context, pollID string, params repository.ListSettlementLogsParams) ([]models.SettlementLog, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.SettlementLog{}).
		Where("poll_id = ?", pollID)
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.SettlementLog
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- system settings --------------------------------------------------------

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil || strings.TrimSpace(key) == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).
		Where("key = ?", strings.TrimSpace(key)).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil || strings.TrimSpace(item.Key) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

// --- helpers ----------------------------------------------------------------

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}

func encodeStringList(items []string) ([]byte, error) {
	cleaned := cleanStrings(items)
	if cleaned == nil {
		cleaned = []string{}
	}
	return json.Marshal(cleaned)
}
