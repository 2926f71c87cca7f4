package settlement

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"pollboard/internal/models"
)

// Cache memoizes poll-wide aggregates for the duration of one bulk run so a
// thousand-player settlement costs two aggregate queries, not two thousand.
// The key includes the winning-option set: the same poll resumed with a
// different draw must never reuse stale pools. Entries live until the
// driver invalidates them after finalization.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*SharedData
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*SharedData)}
}

func (c *Cache) GetOrCompute(ctx context.Context, reader *Reader, poll *models.Poll, winningOptionIDs []string) (*SharedData, error) {
	key := cacheKey(poll.ID, winningOptionIDs)

	c.mu.Lock()
	if data, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	data, err := loadSharedData(ctx, reader, poll, winningOptionIDs)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = data
	c.mu.Unlock()
	return data, nil
}

// Invalidate drops every cached entry for the poll, for use after a run
// completes so a later manual re-check starts fresh.
func (c *Cache) Invalidate(pollID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := pollID + "|"
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

func cacheKey(pollID string, winningOptionIDs []string) string {
	ids := append([]string(nil), winningOptionIDs...)
	sort.Strings(ids)
	return pollID + "|" + strings.Join(ids, ",")
}

// loadSharedData issues the two pool aggregates concurrently and derives
// the payout pool = total wagered minus commission, floored at zero.
func loadSharedData(ctx context.Context, reader *Reader, poll *models.Poll, winningOptionIDs []string) (*SharedData, error) {
	var (
		wg          sync.WaitGroup
		totalPool   int64
		winningPool int64
		totalErr    error
		winningErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		totalPool, totalErr = reader.TotalPool(ctx, poll.ID)
	}()
	go func() {
		defer wg.Done()
		winningPool, winningErr = reader.WinningPool(ctx, poll.ID, winningOptionIDs)
	}()
	wg.Wait()
	if totalErr != nil {
		return nil, totalErr
	}
	if winningErr != nil {
		return nil, winningErr
	}

	commission := poll.TotalCommission
	if commission == 0 && poll.CommissionRate.IsPositive() {
		commission = poll.CommissionRate.Mul(decimal.NewFromInt(totalPool)).Floor().IntPart()
	}
	payoutPool := totalPool - commission
	if payoutPool < 0 {
		payoutPool = 0
	}

	return &SharedData{
		Poll:             poll,
		WinningOptionIDs: append([]string(nil), winningOptionIDs...),
		TotalPool:        totalPool,
		TotalWinningPool: winningPool,
		Commission:       commission,
		TotalPayoutPool:  payoutPool,
	}, nil
}
