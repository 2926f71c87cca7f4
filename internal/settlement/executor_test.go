package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"gorm.io/datatypes"

	"pollboard/internal/ledger"
	"pollboard/internal/models"
	"pollboard/internal/notify"
)

// fakeNotifier counts deliveries and optionally fails every call.
type fakeNotifier struct {
	wins    int
	losses  int
	refunds int
	err     error
}

func (f *fakeNotifier) NotifyWin(ctx context.Context, out notify.Outcome) error {
	f.wins++
	return f.err
}

func (f *fakeNotifier) NotifyLoss(ctx context.Context, out notify.Outcome) error {
	f.losses++
	return f.err
}

func (f *fakeNotifier) NotifyRefund(ctx context.Context, out notify.Outcome) error {
	f.refunds++
	return f.err
}

func testPoll(id string, winners ...string) *models.Poll {
	poll := &models.Poll{
		ID:      id,
		Title:   "test poll " + id,
		Mode:    models.PollModeBetting,
		AssetID: "gold",
	}
	if len(winners) > 0 {
		raw, _ := json.Marshal(winners)
		poll.WinningOptionIDs = datatypes.JSON(raw)
	}
	return poll
}

func newTestExecutor(repo *stubRepo, notifier notify.Notifier, strict bool) *Executor {
	return &Executor{
		Reader:    &Reader{Repo: repo},
		Guard:     &Guard{Repo: repo},
		Validator: &Validator{Strict: strict},
		Ledger:    &ledger.Service{Repo: repo},
		Notifier:  notifier,
	}
}

func newTestRun(t *testing.T, repo *stubRepo, poll *models.Poll, winners []string) *RunContext {
	t.Helper()
	shared, err := NewCache().GetOrCompute(context.Background(), &Reader{Repo: repo}, poll, winners)
	if err != nil {
		t.Fatalf("load shared data: %v", err)
	}
	return &RunContext{
		PollID:           poll.ID,
		WinningOptionIDs: winners,
		SettledBy:        "test",
		Shared:           shared,
	}
}

func TestSettlePlayerPayout(t *testing.T) {
	repo := newStubRepo()
	poll := testPoll("poll-1", "opt-a")
	repo.addPoll(poll)
	repo.addWager("poll-1", "p1", "opt-a", 600)
	repo.addWager("poll-1", "p2", "opt-b", 400)

	notifier := &fakeNotifier{}
	exec := newTestExecutor(repo, notifier, false)
	run := newTestRun(t, repo, poll, []string{"opt-a"})

	outcome := exec.SettlePlayer(context.Background(), run, "p1")

	if !outcome.Success || outcome.Skipped {
		t.Fatalf("outcome=%+v want clean success", outcome)
	}
	// floor(1000 * 600 / 600) = 1000: sole winner takes the full pool.
	if outcome.SettlementAmount != 1000 {
		t.Fatalf("amount=%d want 1000", outcome.SettlementAmount)
	}
	if !outcome.NotificationSent || notifier.wins != 1 {
		t.Fatalf("notificationSent=%v wins=%d want sent once", outcome.NotificationSent, notifier.wins)
	}
	entry := repo.entryFor("poll-1", "p1")
	if entry == nil {
		t.Fatal("no ledger entry written")
	}
	if entry.Amount != 1000 {
		t.Fatalf("entry amount=%d want 1000", entry.Amount)
	}
	if got := repo.balance("p1", "gold"); got != 1000 {
		t.Fatalf("balance=%d want 1000", got)
	}
}

func TestSettlePlayerIdempotentSkip(t *testing.T) {
	repo := newStubRepo()
	poll := testPoll("poll-1", "opt-a")
	repo.addPoll(poll)
	repo.addWager("poll-1", "p1", "opt-a", 500)

	notifier := &fakeNotifier{}
	exec := newTestExecutor(repo, notifier, false)
	run := newTestRun(t, repo, poll, []string{"opt-a"})

	first := exec.SettlePlayer(context.Background(), run, "p1")
	if !first.Success || first.Skipped {
		t.Fatalf("first=%+v want clean success", first)
	}
	second := exec.SettlePlayer(context.Background(), run, "p1")
	if !second.Success || !second.Skipped {
		t.Fatalf("second=%+v want skipped success", second)
	}
	if second.SettlementAmount != 0 {
		t.Fatalf("second amount=%d want 0", second.SettlementAmount)
	}
	if got := repo.balance("p1", "gold"); got != 500 {
		t.Fatalf("balance=%d want 500 after repeat", got)
	}
	if notifier.wins != 1 {
		t.Fatalf("wins=%d want 1, repeat must not re-notify", notifier.wins)
	}
}

func TestSettlePlayerLossWritesZeroEntry(t *testing.T) {
	repo := newStubRepo()
	poll := testPoll("poll-1", "opt-a")
	repo.addPoll(poll)
	repo.addWager("poll-1", "p1", "opt-a", 600)
	repo.addWager("poll-1", "p2", "opt-b", 400)

	notifier := &fakeNotifier{}
	exec := newTestExecutor(repo, notifier, false)
	run := newTestRun(t, repo, poll, []string{"opt-a"})

	outcome := exec.SettlePlayer(context.Background(), run, "p2")

	if !outcome.Success {
		t.Fatalf("outcome=%+v want success", outcome)
	}
	if outcome.CalcType != CalcLoss || outcome.SettlementAmount != 0 {
		t.Fatalf("calcType=%s amount=%d want LOSS with 0", outcome.CalcType, outcome.SettlementAmount)
	}
	entry := repo.entryFor("poll-1", "p2")
	if entry == nil {
		t.Fatal("loss must still write the settled marker")
	}
	if entry.Amount != 0 {
		t.Fatalf("entry amount=%d want 0", entry.Amount)
	}
	if got := repo.balance("p2", "gold"); got != 0 {
		t.Fatalf("balance=%d want untouched", got)
	}
	if notifier.losses != 1 {
		t.Fatalf("losses=%d want 1", notifier.losses)
	}
}

func TestSettlePlayerRefundOnVoidPoll(t *testing.T) {
	repo := newStubRepo()
	poll := testPoll("poll-1")
	repo.addPoll(poll)
	repo.addWager("poll-1", "p1", "opt-a", 300)
	repo.addWager("poll-1", "p1", "opt-b", 200)

	notifier := &fakeNotifier{}
	exec := newTestExecutor(repo, notifier, false)
	run := newTestRun(t, repo, poll, nil)

	outcome := exec.SettlePlayer(context.Background(), run, "p1")

	if !outcome.Success || outcome.CalcType != CalcRefund {
		t.Fatalf("outcome=%+v want refund success", outcome)
	}
	if outcome.SettlementAmount != 500 {
		t.Fatalf("amount=%d want 500", outcome.SettlementAmount)
	}
	if got := repo.balance("p1", "gold"); got != 500 {
		t.Fatalf("balance=%d want 500", got)
	}
	if notifier.refunds != 1 {
		t.Fatalf("refunds=%d want 1", notifier.refunds)
	}
}

func TestSettlePlayerCreditFailureLeavesEligible(t *testing.T) {
	repo := newStubRepo()
	poll := testPoll("poll-1", "opt-a")
	repo.addPoll(poll)
	repo.addWager("poll-1", "p1", "opt-a", 500)
	repo.failCreditFor["p1"] = errors.New("ledger down")

	exec := newTestExecutor(repo, &fakeNotifier{}, false)
	run := newTestRun(t, repo, poll, []string{"opt-a"})

	outcome := exec.SettlePlayer(context.Background(), run, "p1")
	if outcome.Success || outcome.Err == nil {
		t.Fatalf("outcome=%+v want failure", outcome)
	}
	if repo.entryFor("poll-1", "p1") != nil {
		t.Fatal("failed credit must not leave a settled marker")
	}

	delete(repo.failCreditFor, "p1")
	retry := exec.SettlePlayer(context.Background(), run, "p1")
	if !retry.Success || retry.Skipped {
		t.Fatalf("retry=%+v want clean success", retry)
	}
	if got := repo.balance("p1", "gold"); got != 500 {
		t.Fatalf("balance=%d want 500 after retry", got)
	}
}

func TestSettlePlayerNotifyFailureDoesNotFailSettlement(t *testing.T) {
	repo := newStubRepo()
	poll := testPoll("poll-1", "opt-a")
	repo.addPoll(poll)
	repo.addWager("poll-1", "p1", "opt-a", 500)

	notifier := &fakeNotifier{err: errors.New("push gateway down")}
	exec := newTestExecutor(repo, notifier, false)
	run := newTestRun(t, repo, poll, []string{"opt-a"})

	outcome := exec.SettlePlayer(context.Background(), run, "p1")

	if !outcome.Success {
		t.Fatalf("outcome=%+v want success despite notify failure", outcome)
	}
	if outcome.NotificationSent {
		t.Fatal("notificationSent must be false when delivery failed")
	}
	if repo.entryFor("poll-1", "p1") == nil {
		t.Fatal("credit must land regardless of notification")
	}
}

func TestSettlePlayerNoWagersIsSuccess(t *testing.T) {
	repo := newStubRepo()
	poll := testPoll("poll-1", "opt-a")
	repo.addPoll(poll)
	repo.addWager("poll-1", "p1", "opt-a", 500)

	exec := newTestExecutor(repo, &fakeNotifier{}, false)
	run := newTestRun(t, repo, poll, []string{"opt-a"})

	outcome := exec.SettlePlayer(context.Background(), run, "ghost")

	if !outcome.Success {
		t.Fatalf("outcome=%+v want success", outcome)
	}
	if repo.entryFor("poll-1", "ghost") != nil {
		t.Fatal("no entry expected for a player without wagers")
	}
}
