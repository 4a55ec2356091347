package services

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/playarena/credit_engine/internal/models"
	"github.com/playarena/credit_engine/pkg/errors"
	"github.com/playarena/credit_engine/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init("error")
	os.Exit(m.Run())
}

func newMatchFixture(t *testing.T) (*MatchService, *memStore, *StatsWorker) {
	t.Helper()
	store := newMemStore()
	stats := NewStatsWorker(store, 16)
	return NewMatchService(store, stats, 3), store, stats
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }

func TestStartMatchEscrowsBothStakes(t *testing.T) {
	svc, store, _ := newMatchFixture(t)
	tpl := store.addTemplate("duel", 0, 500, true)
	a := store.addAccount("acct-a", 100)
	b := store.addAccount("acct-b", 100)

	match, err := svc.StartMatch(context.Background(), "acct-a", strPtr("acct-b"), tpl.ID, 40, true)
	if err != nil {
		t.Fatalf("StartMatch failed: %v", err)
	}

	if match.Status != models.MatchStatusStarted {
		t.Errorf("expected status started, got %s", match.Status)
	}
	if got := store.account(a.ID).Credits; got != 60 {
		t.Errorf("player balance: expected 60, got %d", got)
	}
	if got := store.account(b.ID).Credits; got != 60 {
		t.Errorf("opponent balance: expected 60, got %d", got)
	}

	for _, id := range []uint{a.ID, b.ID} {
		entries, err := store.Ledger().ListByAccount(id, models.LedgerFilters{Kind: models.LedgerKindWagerDebit})
		if err != nil {
			t.Fatalf("ListByAccount failed: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("account %d: expected 1 wager debit entry, got %d", id, len(entries))
		}
		if entries[0].Delta != -40 || entries[0].BalanceBefore != 100 || entries[0].BalanceAfter != 60 {
			t.Errorf("account %d: bad escrow entry %+v", id, entries[0])
		}
	}
}

func TestStartMatchInsufficientFundsRollsBackEverything(t *testing.T) {
	svc, store, _ := newMatchFixture(t)
	tpl := store.addTemplate("duel", 0, 500, true)
	a := store.addAccount("acct-a", 100)
	b := store.addAccount("acct-b", 30)

	_, err := svc.StartMatch(context.Background(), "acct-a", strPtr("acct-b"), tpl.ID, 40, false)
	if !errors.IsCode(err, errors.ErrCodeInsufficientFunds) {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", err)
	}

	if got := store.account(a.ID).Credits; got != 100 {
		t.Errorf("player balance must be untouched, got %d", got)
	}
	if got := store.account(b.ID).Credits; got != 30 {
		t.Errorf("opponent balance must be untouched, got %d", got)
	}
	if sum, _ := store.Ledger().SumDeltas(a.ID); sum != 0 {
		t.Errorf("expected no ledger movement for player, got %d", sum)
	}
}

func TestStartMatchValidation(t *testing.T) {
	svc, store, _ := newMatchFixture(t)
	tpl := store.addTemplate("ranked", 10, 100, true)
	inactive := store.addTemplate("legacy", 0, 0, false)
	store.addAccount("acct-a", 1000)
	store.addAccount("acct-b", 1000)
	suspended := store.addAccount("acct-s", 1000)
	suspended.Status = models.AccountStatusSuspended
	store.mu.Lock()
	store.state.accounts[suspended.ID] = *suspended
	store.mu.Unlock()

	tests := []struct {
		name       string
		player     string
		opponent   *string
		templateID uint
		wager      int64
		wantCode   string
	}{
		{"negative wager", "acct-a", strPtr("acct-b"), tpl.ID, -1, errors.ErrCodeValidationFailed},
		{"below template minimum", "acct-a", strPtr("acct-b"), tpl.ID, 5, errors.ErrCodeValidationFailed},
		{"above template maximum", "acct-a", strPtr("acct-b"), tpl.ID, 200, errors.ErrCodeValidationFailed},
		{"inactive template", "acct-a", strPtr("acct-b"), inactive.ID, 0, errors.ErrCodeUnavailable},
		{"unknown template", "acct-a", strPtr("acct-b"), 9999, 10, errors.ErrCodeNotFound},
		{"self match", "acct-a", strPtr("acct-a"), tpl.ID, 10, errors.ErrCodeValidationFailed},
		{"unknown opponent", "acct-a", strPtr("acct-x"), tpl.ID, 10, errors.ErrCodeNotFound},
		{"suspended participant", "acct-a", strPtr("acct-s"), tpl.ID, 10, errors.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StartMatch(context.Background(), tt.player, tt.opponent, tt.templateID, tt.wager, false)
			if !errors.IsCode(err, tt.wantCode) {
				t.Errorf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestFinishMatchWinnerTakesPot(t *testing.T) {
	svc, store, stats := newMatchFixture(t)
	tpl := store.addTemplate("duel", 0, 500, true)
	a := store.addAccount("acct-a", 100)
	b := store.addAccount("acct-b", 100)

	match, err := svc.StartMatch(context.Background(), "acct-a", strPtr("acct-b"), tpl.ID, 40, true)
	if err != nil {
		t.Fatalf("StartMatch failed: %v", err)
	}

	settled, err := svc.FinishMatch(context.Background(), match.MatchID, FinishRequest{
		Status:        models.MatchStatusCompleted,
		PlayerScore:   intPtr(3),
		OpponentScore: intPtr(1),
	})
	if err != nil {
		t.Fatalf("FinishMatch failed: %v", err)
	}

	if settled.Payout != 80 {
		t.Errorf("expected payout 80, got %d", settled.Payout)
	}
	if settled.WinnerID == nil || *settled.WinnerID != a.ID {
		t.Errorf("expected winner %d, got %v", a.ID, settled.WinnerID)
	}
	if got := store.account(a.ID).Credits; got != 140 {
		t.Errorf("winner balance: expected 140, got %d", got)
	}
	if got := store.account(b.ID).Credits; got != 60 {
		t.Errorf("loser balance: expected 60, got %d", got)
	}

	// Credits are conserved across escrow and payout.
	if total := store.account(a.ID).Credits + store.account(b.ID).Credits; total != 200 {
		t.Errorf("total credits: expected 200, got %d", total)
	}

	// The ledger reconciles against each balance.
	for _, acct := range []struct {
		id      uint
		initial int64
	}{{a.ID, 100}, {b.ID, 100}} {
		sum, err := store.Ledger().SumDeltas(acct.id)
		if err != nil {
			t.Fatalf("SumDeltas failed: %v", err)
		}
		if acct.initial+sum != store.account(acct.id).Credits {
			t.Errorf("account %d: ledger sum %d does not reconcile with balance %d",
				acct.id, sum, store.account(acct.id).Credits)
		}
	}

	// The loser gets a zero-delta audit row, not a second debit.
	lossEntries, _ := store.Ledger().ListByAccount(b.ID, models.LedgerFilters{Kind: models.LedgerKindLoss})
	if len(lossEntries) != 1 || lossEntries[0].Delta != 0 {
		t.Errorf("expected one zero-delta loss entry for loser, got %+v", lossEntries)
	}

	if stats.Pending() != 2 {
		t.Errorf("expected 2 queued stats jobs, got %d", stats.Pending())
	}
}

func TestFinishMatchDrawRefundsStakes(t *testing.T) {
	svc, store, _ := newMatchFixture(t)
	tpl := store.addTemplate("duel", 0, 500, true)
	a := store.addAccount("acct-a", 100)
	b := store.addAccount("acct-b", 100)

	match, _ := svc.StartMatch(context.Background(), "acct-a", strPtr("acct-b"), tpl.ID, 40, false)

	settled, err := svc.FinishMatch(context.Background(), match.MatchID, FinishRequest{Status: models.MatchStatusDraw})
	if err != nil {
		t.Fatalf("FinishMatch failed: %v", err)
	}

	if settled.Payout != 0 {
		t.Errorf("expected no payout on draw, got %d", settled.Payout)
	}
	if settled.WinnerID != nil {
		t.Errorf("draw must not have a winner, got %v", settled.WinnerID)
	}
	for _, id := range []uint{a.ID, b.ID} {
		if got := store.account(id).Credits; got != 100 {
			t.Errorf("account %d: expected full refund to 100, got %d", id, got)
		}
		refunds, _ := store.Ledger().ListByAccount(id, models.LedgerFilters{Kind: models.LedgerKindDrawRefund})
		if len(refunds) != 1 || refunds[0].Delta != 40 {
			t.Errorf("account %d: expected one +40 draw refund, got %+v", id, refunds)
		}
	}
}

func TestFinishMatchAbandonedRefundsWithoutStats(t *testing.T) {
	svc, store, stats := newMatchFixture(t)
	tpl := store.addTemplate("duel", 0, 500, true)
	a := store.addAccount("acct-a", 100)
	b := store.addAccount("acct-b", 100)

	match, _ := svc.StartMatch(context.Background(), "acct-a", strPtr("acct-b"), tpl.ID, 25, false)

	_, err := svc.FinishMatch(context.Background(), match.MatchID, FinishRequest{Status: models.MatchStatusAbandoned})
	if err != nil {
		t.Fatalf("FinishMatch failed: %v", err)
	}

	for _, id := range []uint{a.ID, b.ID} {
		if got := store.account(id).Credits; got != 100 {
			t.Errorf("account %d: expected refund to 100, got %d", id, got)
		}
		refunds, _ := store.Ledger().ListByAccount(id, models.LedgerFilters{Kind: models.LedgerKindAbandonRefund})
		if len(refunds) != 1 {
			t.Errorf("account %d: expected one abandon refund entry, got %d", id, len(refunds))
		}
	}
	if stats.Pending() != 0 {
		t.Errorf("abandoned matches must not queue stats, got %d jobs", stats.Pending())
	}
}

func TestFinishMatchIsSettledExactlyOnce(t *testing.T) {
	svc, store, _ := newMatchFixture(t)
	tpl := store.addTemplate("duel", 0, 500, true)
	a := store.addAccount("acct-a", 100)
	store.addAccount("acct-b", 100)

	match, _ := svc.StartMatch(context.Background(), "acct-a", strPtr("acct-b"), tpl.ID, 40, false)

	req := FinishRequest{Status: models.MatchStatusWon}
	if _, err := svc.FinishMatch(context.Background(), match.MatchID, req); err != nil {
		t.Fatalf("first finish failed: %v", err)
	}

	_, err := svc.FinishMatch(context.Background(), match.MatchID, req)
	if !errors.IsCode(err, errors.ErrCodeInvalidState) {
		t.Fatalf("expected INVALID_STATE on double finish, got %v", err)
	}
	if got := store.account(a.ID).Credits; got != 140 {
		t.Errorf("winner must be paid exactly once, got %d", got)
	}
}

func TestFinishMatchSoloLossKeepsStake(t *testing.T) {
	svc, store, _ := newMatchFixture(t)
	tpl := store.addTemplate("practice", 0, 500, true)
	a := store.addAccount("acct-a", 100)

	match, _ := svc.StartMatch(context.Background(), "acct-a", nil, tpl.ID, 40, false)

	settled, err := svc.FinishMatch(context.Background(), match.MatchID, FinishRequest{Status: models.MatchStatusLost})
	if err != nil {
		t.Fatalf("FinishMatch failed: %v", err)
	}

	if settled.WinnerID != nil {
		t.Errorf("solo loss must not have a winner, got %v", settled.WinnerID)
	}
	if got := store.account(a.ID).Credits; got != 60 {
		t.Errorf("stake must stay escrowed on a loss, got %d", got)
	}
	lossEntries, _ := store.Ledger().ListByAccount(a.ID, models.LedgerFilters{Kind: models.LedgerKindLoss})
	if len(lossEntries) != 1 {
		t.Errorf("expected one loss entry, got %d", len(lossEntries))
	}
}

func TestFinishMatchCompletedTieRefunds(t *testing.T) {
	svc, store, _ := newMatchFixture(t)
	tpl := store.addTemplate("duel", 0, 500, true)
	a := store.addAccount("acct-a", 100)
	b := store.addAccount("acct-b", 100)

	match, _ := svc.StartMatch(context.Background(), "acct-a", strPtr("acct-b"), tpl.ID, 40, false)

	settled, err := svc.FinishMatch(context.Background(), match.MatchID, FinishRequest{
		Status:        models.MatchStatusCompleted,
		PlayerScore:   intPtr(2),
		OpponentScore: intPtr(2),
	})
	if err != nil {
		t.Fatalf("FinishMatch failed: %v", err)
	}

	if settled.Status != models.MatchStatusCompleted {
		t.Errorf("tie keeps the completed status, got %s", settled.Status)
	}
	for _, id := range []uint{a.ID, b.ID} {
		if got := store.account(id).Credits; got != 100 {
			t.Errorf("account %d: tie must refund the stake, got %d", id, got)
		}
	}
}

func TestFinishMatchExplicitWinnerMustParticipate(t *testing.T) {
	svc, store, _ := newMatchFixture(t)
	tpl := store.addTemplate("duel", 0, 500, true)
	store.addAccount("acct-a", 100)
	store.addAccount("acct-b", 100)
	store.addAccount("acct-c", 100)

	match, _ := svc.StartMatch(context.Background(), "acct-a", strPtr("acct-b"), tpl.ID, 10, false)

	_, err := svc.FinishMatch(context.Background(), match.MatchID, FinishRequest{
		Status:           models.MatchStatusCompleted,
		ExplicitWinnerID: strPtr("acct-c"),
	})
	if !errors.IsCode(err, errors.ErrCodeValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED for outsider winner, got %v", err)
	}
}

func TestFinishMatchRejectsUnknownStatus(t *testing.T) {
	svc, _, _ := newMatchFixture(t)
	_, err := svc.FinishMatch(context.Background(), "whatever", FinishRequest{Status: "exploded"})
	if !errors.IsCode(err, errors.ErrCodeValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
}

func TestResolveWinner(t *testing.T) {
	player := &models.Account{AccountID: "acct-a"}
	player.ID = 1
	opponent := &models.Account{AccountID: "acct-b"}
	opponent.ID = 2
	match := &models.Match{PlayerID: 1}

	tests := []struct {
		name     string
		opponent *models.Account
		req      FinishRequest
		want     *uint
		wantErr  bool
	}{
		{"draw has no winner", opponent, FinishRequest{Status: models.MatchStatusDraw, ExplicitWinnerID: strPtr("acct-a")}, nil, false},
		{"abandoned has no winner", opponent, FinishRequest{Status: models.MatchStatusAbandoned}, nil, false},
		{"explicit player", opponent, FinishRequest{Status: models.MatchStatusCompleted, ExplicitWinnerID: strPtr("acct-a")}, &player.ID, false},
		{"explicit opponent", opponent, FinishRequest{Status: models.MatchStatusCompleted, ExplicitWinnerID: strPtr("acct-b")}, &opponent.ID, false},
		{"explicit outsider", opponent, FinishRequest{Status: models.MatchStatusCompleted, ExplicitWinnerID: strPtr("acct-x")}, nil, true},
		{"won implies player", opponent, FinishRequest{Status: models.MatchStatusWon}, &player.ID, false},
		{"lost implies opponent", opponent, FinishRequest{Status: models.MatchStatusLost}, &opponent.ID, false},
		{"solo lost has no winner", nil, FinishRequest{Status: models.MatchStatusLost}, nil, false},
		{"higher player score", opponent, FinishRequest{Status: models.MatchStatusCompleted, PlayerScore: intPtr(5), OpponentScore: intPtr(2)}, &player.ID, false},
		{"higher opponent score", opponent, FinishRequest{Status: models.MatchStatusCompleted, PlayerScore: intPtr(1), OpponentScore: intPtr(2)}, &opponent.ID, false},
		{"tied scores", opponent, FinishRequest{Status: models.MatchStatusCompleted, PlayerScore: intPtr(2), OpponentScore: intPtr(2)}, nil, false},
		{"missing scores", opponent, FinishRequest{Status: models.MatchStatusCompleted}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveWinner(match, player, tt.opponent, tt.req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("expected no winner, got %d", *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("expected winner %d, got %v", *tt.want, got)
			}
		})
	}
}

func TestStartMatchConcurrentNeverOverdraws(t *testing.T) {
	svc, store, _ := newMatchFixture(t)
	tpl := store.addTemplate("duel", 0, 0, true)
	a := store.addAccount("acct-a", 100)

	const workers = 10
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.StartMatch(context.Background(), "acct-a", nil, tpl.ID, 30, false)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		if !errors.IsCode(err, errors.ErrCodeInsufficientFunds) {
			t.Errorf("unexpected error: %v", err)
		}
	}

	balance := store.account(a.ID).Credits
	if balance < 0 {
		t.Errorf("balance went negative: %d", balance)
	}
	if balance != 100-int64(successes)*30 {
		t.Errorf("balance %d does not match %d successful escrows", balance, successes)
	}
	if sum, _ := store.Ledger().SumDeltas(a.ID); 100+sum != balance {
		t.Errorf("ledger sum %d does not reconcile with balance %d", sum, balance)
	}
}

func TestStatsWorkerAppliesOutcomes(t *testing.T) {
	svc, store, stats := newMatchFixture(t)
	tpl := store.addTemplate("duel", 0, 500, true)
	a := store.addAccount("acct-a", 100)
	b := store.addAccount("acct-b", 100)

	match, _ := svc.StartMatch(context.Background(), "acct-a", strPtr("acct-b"), tpl.ID, 10, true)
	if _, err := svc.FinishMatch(context.Background(), match.MatchID, FinishRequest{Status: models.MatchStatusWon}); err != nil {
		t.Fatalf("FinishMatch failed: %v", err)
	}

	// Drain the queue synchronously instead of racing a goroutine.
	for stats.Pending() > 0 {
		stats.apply(<-stats.jobs)
	}

	winner := store.account(a.ID)
	if winner.GamesPlayed != 1 || winner.GamesWon != 1 || winner.WinStreak != 1 || winner.LongestWinStreak != 1 {
		t.Errorf("winner tallies wrong: %+v", winner)
	}
	loser := store.account(b.ID)
	if loser.GamesPlayed != 1 || loser.GamesLost != 1 || loser.WinStreak != 0 {
		t.Errorf("loser tallies wrong: %+v", loser)
	}
}
