package settlement

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pollboard/internal/models"
	"pollboard/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// Failure injection: failCreditFor returns an error from the payout insert
// for that player, panicWagersFor panics while loading that player's wagers.
type stubRepo struct {
	mu       sync.Mutex
	polls    map[string]*models.Poll
	wagers   []models.Wager
	entries  []models.PayoutLedgerEntry
	balances map[string]int64
	logs     []*models.SettlementLog
	settings map[string]*models.SystemSetting

	nextEntryID uint64
	nextLogID   uint64

	settleFlips    int
	failCreditFor  map[string]error
	panicWagersFor map[string]bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		polls:          map[string]*models.Poll{},
		balances:       map[string]int64{},
		settings:       map[string]*models.SystemSetting{},
		failCreditFor:  map[string]error{},
		panicWagersFor: map[string]bool{},
	}
}

func (s *stubRepo) addPoll(poll *models.Poll) {
	if poll.Mode == "" {
		poll.Mode = models.PollModeBetting
	}
	s.polls[poll.ID] = poll
}

func (s *stubRepo) addWager(pollID, playerID, optionID string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wagers = append(s.wagers, models.Wager{
		ID:        uint64(len(s.wagers) + 1),
		PollID:    pollID,
		PlayerID:  playerID,
		OptionID:  optionID,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (s *stubRepo) GetPollByID(ctx context.Context, id string) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	poll, ok := s.polls[id]
	if !ok {
		return nil, nil
	}
	clone := *poll
	return &clone, nil
}

func (s *stubRepo) ListPollOptions(ctx context.Context, pollID string) ([]models.PollOption, error) {
	poll, ok := s.polls[pollID]
	if !ok {
		return nil, nil
	}
	return poll.Options, nil
}

func (s *stubRepo) ListSettleablePolls(ctx context.Context, now time.Time, limit int) ([]models.Poll, error) {
	var out []models.Poll
	for _, poll := range s.polls {
		if poll.Mode != models.PollModeBetting || poll.IsSettled {
			continue
		}
		if poll.ClosesAt == nil || poll.ClosesAt.After(now) {
			continue
		}
		out = append(out, *poll)
	}
	return out, nil
}

func (s *stubRepo) SetPollWinningOptions(ctx context.Context, pollID string, optionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	poll, ok := s.polls[pollID]
	if !ok {
		return nil
	}
	raw, err := json.Marshal(optionIDs)
	if err != nil {
		return err
	}
	poll.WinningOptionIDs = datatypes.JSON(raw)
	return nil
}

func (s *stubRepo) MarkPollSettledTx(ctx context.Context, tx *gorm.DB, pollID string, settledAt time.Time, settledBy string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	poll, ok := s.polls[pollID]
	if !ok || poll.IsSettled {
		return false, nil
	}
	poll.IsSettled = true
	poll.SettledAt = &settledAt
	poll.SettledBy = settledBy
	s.settleFlips++
	return true, nil
}

func (s *stubRepo) AggregateWagersByOption(ctx context.Context, pollID string) ([]repository.OptionAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := map[string]int64{}
	players := map[string]map[string]struct{}{}
	for _, w := range s.wagers {
		if w.PollID != pollID {
			continue
		}
		totals[w.OptionID] += w.Amount
		if players[w.OptionID] == nil {
			players[w.OptionID] = map[string]struct{}{}
		}
		players[w.OptionID][w.PlayerID] = struct{}{}
	}
	out := make([]repository.OptionAggregate, 0, len(totals))
	for optionID, total := range totals {
		out = append(out, repository.OptionAggregate{
			OptionID:         optionID,
			TotalAmount:      total,
			ParticipantCount: int64(len(players[optionID])),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OptionID < out[j].OptionID })
	return out, nil
}

func (s *stubRepo) AggregateWagersByPlayer(ctx context.Context, pollID string, params repository.ListPlayerAggregatesParams) ([]repository.PlayerAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPlayer := map[string]*repository.PlayerAggregate{}
	for _, w := range s.wagers {
		if w.PollID != pollID {
			continue
		}
		agg := byPlayer[w.PlayerID]
		if agg == nil {
			agg = &repository.PlayerAggregate{PlayerID: w.PlayerID, FirstBetAt: w.CreatedAt, LastBetAt: w.CreatedAt}
			byPlayer[w.PlayerID] = agg
		}
		agg.TotalAmount += w.Amount
		agg.BetCount++
		if w.CreatedAt.Before(agg.FirstBetAt) {
			agg.FirstBetAt = w.CreatedAt
		}
		if w.CreatedAt.After(agg.LastBetAt) {
			agg.LastBetAt = w.CreatedAt
		}
	}
	out := make([]repository.PlayerAggregate, 0, len(byPlayer))
	for _, agg := range byPlayer {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalAmount > out[j].TotalAmount })
	return out, nil
}

func (s *stubRepo) ListWagerParticipantIDs(ctx context.Context, pollID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	var ids []string
	for _, w := range s.wagers {
		if w.PollID != pollID {
			continue
		}
		if _, ok := seen[w.PlayerID]; ok {
			continue
		}
		seen[w.PlayerID] = struct{}{}
		ids = append(ids, w.PlayerID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *stubRepo) CountWagerParticipants(ctx context.Context, pollID string) (int64, error) {
	ids, _ := s.ListWagerParticipantIDs(ctx, pollID)
	return int64(len(ids)), nil
}

func (s *stubRepo) ListWagersByPollAndPlayer(ctx context.Context, pollID, playerID string) ([]models.Wager, error) {
	s.mu.Lock()
	panicking := s.panicWagersFor[playerID]
	s.mu.Unlock()
	if panicking {
		panic("stub: wager load blew up for " + playerID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Wager
	for _, w := range s.wagers {
		if w.PollID == pollID && w.PlayerID == playerID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *stubRepo) SumWagers(ctx context.Context, pollID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, w := range s.wagers {
		if w.PollID == pollID {
			total += w.Amount
		}
	}
	return total, nil
}

func (s *stubRepo) SumWagersForOptions(ctx context.Context, pollID string, optionIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	winning := map[string]struct{}{}
	for _, id := range optionIDs {
		winning[id] = struct{}{}
	}
	var total int64
	for _, w := range s.wagers {
		if w.PollID != pollID {
			continue
		}
		if _, ok := winning[w.OptionID]; ok {
			total += w.Amount
		}
	}
	return total, nil
}

func (s *stubRepo) GetPayoutEntry(ctx context.Context, pollID, playerID, reasonTag string) (*models.PayoutLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		e := &s.entries[i]
		if e.PollID == pollID && e.PlayerID == playerID && e.ReasonTag == reasonTag {
			clone := *e
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListSettledPlayerIDs(ctx context.Context, pollID, reasonTag string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, e := range s.entries {
		if e.PollID == pollID && e.ReasonTag == reasonTag {
			ids = append(ids, e.PlayerID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *stubRepo) CountPayoutEntries(ctx context.Context, pollID, reasonTag string) (int64, error) {
	ids, _ := s.ListSettledPlayerIDs(ctx, pollID, reasonTag)
	return int64(len(ids)), nil
}

func (s *stubRepo) SumPayoutEntries(ctx context.Context, pollID, reasonTag string) (repository.PayoutTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var totals repository.PayoutTotals
	for _, e := range s.entries {
		if e.PollID != pollID || e.ReasonTag != reasonTag {
			continue
		}
		totals.EntryCount++
		totals.TotalAmount += e.Amount
		if e.Amount > 0 {
			totals.WinnerCount++
		}
	}
	return totals, nil
}

func (s *stubRepo) InsertPayoutEntryTx(ctx context.Context, tx *gorm.DB, item *models.PayoutLedgerEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failCreditFor[item.PlayerID]; ok && err != nil {
		return false, err
	}
	for _, e := range s.entries {
		if e.PollID == item.PollID && e.PlayerID == item.PlayerID && e.ReasonTag == item.ReasonTag {
			return false, nil
		}
	}
	s.nextEntryID++
	item.ID = s.nextEntryID
	item.CreatedAt = time.Now().UTC()
	s.entries = append(s.entries, *item)
	return true, nil
}

func (s *stubRepo) AdjustPlayerAssetTx(ctx context.Context, tx *gorm.DB, playerID, assetID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[playerID+"|"+assetID] += delta
	return nil
}

func (s *stubRepo) GetActiveSettlementLog(ctx context.Context, pollID string) (*models.SettlementLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.logs) - 1; i >= 0; i-- {
		log := s.logs[i]
		if log.PollID != pollID {
			continue
		}
		if log.Status == models.SettlementStatusPending || log.Status == models.SettlementStatusPartial {
			clone := *log
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) CreateSettlementLog(ctx context.Context, item *models.SettlementLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	item.ID = s.nextLogID
	clone := *item
	s.logs = append(s.logs, &clone)
	return nil
}

func (s *stubRepo) UpdateSettlementLog(ctx context.Context, item *models.SettlementLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, log := range s.logs {
		if log.ID == item.ID {
			clone := *item
			s.logs[i] = &clone
			return nil
		}
	}
	return nil
}

func (s *stubRepo) UpdateSettlementLogTx(ctx context.Context, tx *gorm.DB, item *models.SettlementLog) error {
	return s.UpdateSettlementLog(ctx, item)
}

func (s *stubRepo) ListSettlementLogs(ctx context.Context, pollID string, params repository.ListSettlementLogsParams) ([]models.SettlementLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SettlementLog
	for _, log := range s.logs {
		if log.PollID != pollID {
			continue
		}
		if params.Status != nil && !strings.EqualFold(*params.Status, log.Status) {
			continue
		}
		out = append(out, *log)
	}
	return out, nil
}

func (s *stubRepo) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.settings[key]
	if !ok {
		return nil, nil
	}
	clone := *item
	return &clone, nil
}

func (s *stubRepo) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *item
	s.settings[item.Key] = &clone
	return nil
}

func (s *stubRepo) entryFor(pollID, playerID string) *models.PayoutLedgerEntry {
	entry, _ := s.GetPayoutEntry(context.Background(), pollID, playerID, ReasonTagBettingPayout)
	return entry
}

func (s *stubRepo) balance(playerID, assetID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[playerID+"|"+assetID]
}
