package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/playarena/credit_engine/internal/models"
	"github.com/playarena/credit_engine/internal/storage"
	"github.com/playarena/credit_engine/pkg/errors"
	"github.com/playarena/credit_engine/pkg/logger"
)

// MatchService owns the match lifecycle: escrow at start, settlement at
// finish. Every balance movement happens inside one atomic unit together
// with its ledger entries; aggregate statistics are fanned out to the
// StatsWorker after commit and never block settlement.
type MatchService struct {
	store      storage.Datastore
	stats      *StatsWorker
	txAttempts int
}

func NewMatchService(store storage.Datastore, stats *StatsWorker, txAttempts int) *MatchService {
	return &MatchService{
		store:      store,
		stats:      stats,
		txAttempts: txAttempts,
	}
}

// FinishRequest carries the caller's view of how a match ended.
type FinishRequest struct {
	Status           string
	PlayerScore      *int
	OpponentScore    *int
	ExplicitWinnerID *string // external account id
}

// StartMatch escrows the wager from every participant and creates the
// match row, all inside one transaction. Each party pays their own
// stake; nothing is debited unless every debit succeeds.
func (s *MatchService) StartMatch(ctx context.Context, playerID string, opponentID *string, templateID uint, wager int64, ranked bool) (*models.Match, error) {
	if wager < 0 {
		return nil, errors.New(errors.ErrCodeValidationFailed, "wager cannot be negative")
	}

	var match *models.Match

	err := atomicallyWithRetry(ctx, s.store, s.txAttempts, func(tx storage.Datastore) error {
		template, err := tx.Templates().GetByID(templateID)
		if err != nil {
			return err
		}
		if !template.Active {
			return errors.New(errors.ErrCodeUnavailable, "game template is deactivated")
		}
		if wager < template.MinWager {
			return errors.New(errors.ErrCodeValidationFailed,
				fmt.Sprintf("wager below template minimum: %d < %d", wager, template.MinWager))
		}
		if template.MaxWager > 0 && wager > template.MaxWager {
			return errors.New(errors.ErrCodeValidationFailed,
				fmt.Sprintf("wager above template maximum: %d > %d", wager, template.MaxWager))
		}

		player, err := tx.Accounts().GetByAccountID(playerID)
		if err != nil {
			return err
		}

		var opponent *models.Account
		if opponentID != nil {
			opponent, err = tx.Accounts().GetByAccountID(*opponentID)
			if err != nil {
				return err
			}
			if opponent.ID == player.ID {
				return errors.New(errors.ErrCodeValidationFailed, "player cannot face themselves")
			}
		}

		// Lock in ascending id order so two concurrent starts touching
		// the same pair cannot deadlock.
		staked, err := lockAccounts(tx, player, opponent)
		if err != nil {
			return err
		}

		for _, acct := range staked {
			if !acct.IsActive() {
				return errors.New(errors.ErrCodeValidationFailed,
					fmt.Sprintf("account %s is %s", acct.AccountID, acct.Status))
			}
			if acct.Credits < wager {
				return errors.New(errors.ErrCodeInsufficientFunds,
					fmt.Sprintf("account %s has %d credits, needs %d", acct.AccountID, acct.Credits, wager))
			}
		}

		match = &models.Match{
			MatchID:    uuid.NewString(),
			PlayerID:   player.ID,
			TemplateID: template.ID,
			Wager:      wager,
			Ranked:     ranked,
			Status:     models.MatchStatusStarted,
			StartedAt:  time.Now().UTC(),
		}
		if opponent != nil {
			match.OpponentID = &opponent.ID
		}
		if err := tx.Matches().Create(match); err != nil {
			return err
		}

		if wager > 0 {
			for _, acct := range staked {
				if err := tx.Accounts().AdjustCredits(acct.ID, -wager); err != nil {
					return err
				}
				entry := &models.LedgerEntry{
					EntryID:       uuid.NewString(),
					AccountID:     acct.ID,
					MatchID:       &match.ID,
					Delta:         -wager,
					BalanceBefore: acct.Credits,
					BalanceAfter:  acct.Credits - wager,
					Kind:          models.LedgerKindWagerDebit,
					Description:   "wager escrowed at match start",
				}
				if err := tx.Ledger().Append(entry); err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Match started", "match_id", match.MatchID, "wager", wager, "ranked", ranked)
	return match, nil
}

// FinishMatch settles a started match exactly once: refunds on
// draw/abandon, payout to the winner otherwise, with ledger entries in
// the same transaction. Statistics are enqueued after commit.
func (s *MatchService) FinishMatch(ctx context.Context, matchID string, req FinishRequest) (*models.Match, error) {
	if !models.IsFinishStatus(req.Status) {
		return nil, errors.New(errors.ErrCodeValidationFailed, "invalid finish status: "+req.Status)
	}

	var (
		settled  *models.Match
		outcomes []StatsJob
	)

	err := atomicallyWithRetry(ctx, s.store, s.txAttempts, func(tx storage.Datastore) error {
		outcomes = outcomes[:0]

		loaded, err := tx.Matches().GetByMatchID(matchID)
		if err != nil {
			return err
		}
		match, err := tx.Matches().GetForUpdate(loaded.ID)
		if err != nil {
			return err
		}
		if match.IsTerminal() {
			return errors.New(errors.ErrCodeInvalidState, "match is already settled")
		}

		player, err := tx.Accounts().GetByID(match.PlayerID)
		if err != nil {
			return err
		}
		var opponent *models.Account
		if match.OpponentID != nil {
			opponent, err = tx.Accounts().GetByID(*match.OpponentID)
			if err != nil {
				return err
			}
		}

		winnerID, err := resolveWinner(match, player, opponent, req)
		if err != nil {
			return err
		}

		staked, err := lockAccounts(tx, player, opponent)
		if err != nil {
			return err
		}
		byID := make(map[uint]*models.Account, len(staked))
		for _, acct := range staked {
			byID[acct.ID] = acct
		}

		now := time.Now().UTC()
		var payout int64

		switch {
		case req.Status == models.MatchStatusDraw || req.Status == models.MatchStatusAbandoned:
			kind := models.LedgerKindDrawRefund
			if req.Status == models.MatchStatusAbandoned {
				kind = models.LedgerKindAbandonRefund
			}
			for _, acct := range staked {
				if err := refundStake(tx, acct, match, kind); err != nil {
					return err
				}
			}

		case winnerID != nil:
			winner := byID[*winnerID]
			payout = match.Wager * 2
			if err := tx.Accounts().AdjustCredits(winner.ID, payout); err != nil {
				return err
			}
			if err := tx.Ledger().Append(&models.LedgerEntry{
				EntryID:       uuid.NewString(),
				AccountID:     winner.ID,
				MatchID:       &match.ID,
				Delta:         payout,
				BalanceBefore: winner.Credits,
				BalanceAfter:  winner.Credits + payout,
				Kind:          models.LedgerKindWinCredit,
				Description:   "match payout",
			}); err != nil {
				return err
			}
			// Informational entry for the loser. The debit already
			// happened at escrow time, so the delta is zero; the row
			// documents the closed wager for audit completeness.
			for _, acct := range staked {
				if acct.ID == winner.ID {
					continue
				}
				if err := appendLossEntry(tx, acct, match); err != nil {
					return err
				}
			}

		default:
			// Decisive status but no winner resolvable: tie on a
			// completed match, or a solo loss. Tie refunds; a solo
			// loss keeps the escrowed stake.
			if req.Status == models.MatchStatusCompleted {
				for _, acct := range staked {
					if err := refundStake(tx, acct, match, models.LedgerKindDrawRefund); err != nil {
						return err
					}
				}
			} else {
				for _, acct := range staked {
					if err := appendLossEntry(tx, acct, match); err != nil {
						return err
					}
				}
			}
		}

		updates := map[string]interface{}{
			"status":   req.Status,
			"payout":   payout,
			"ended_at": now,
			"duration": int64(now.Sub(match.StartedAt).Seconds()),
		}
		if req.PlayerScore != nil {
			updates["player_score"] = *req.PlayerScore
		}
		if req.OpponentScore != nil {
			updates["opponent_score"] = *req.OpponentScore
		}
		if winnerID != nil {
			updates["winner_id"] = *winnerID
		}

		closed, err := tx.Matches().Close(match.ID, updates)
		if err != nil {
			return err
		}
		if !closed {
			return errors.New(errors.ErrCodeInvalidState, "match is already settled")
		}

		outcomes = collectStatsJobs(match, winnerID, req.Status)

		settled, err = tx.Matches().GetByMatchID(matchID)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Best-effort fan-out. A full queue or a crashed worker may lose
	// these updates; balances and the ledger are committed regardless.
	for _, job := range outcomes {
		s.stats.Enqueue(job)
	}

	logger.Info("Match settled", "match_id", settled.MatchID, "status", settled.Status, "payout", settled.Payout)
	return settled, nil
}

// resolveWinner applies the winner determination priority: explicit
// winner id, then the party implied by won/lost, then score comparison
// for completed matches. Draw and abandoned never have a winner.
func resolveWinner(match *models.Match, player, opponent *models.Account, req FinishRequest) (*uint, error) {
	if req.Status == models.MatchStatusDraw || req.Status == models.MatchStatusAbandoned {
		return nil, nil
	}

	if req.ExplicitWinnerID != nil {
		switch {
		case player.AccountID == *req.ExplicitWinnerID:
			return &player.ID, nil
		case opponent != nil && opponent.AccountID == *req.ExplicitWinnerID:
			return &opponent.ID, nil
		default:
			return nil, errors.New(errors.ErrCodeValidationFailed, "explicit winner is not a match participant")
		}
	}

	switch req.Status {
	case models.MatchStatusWon:
		return &player.ID, nil
	case models.MatchStatusLost:
		if opponent != nil {
			return &opponent.ID, nil
		}
		return nil, nil
	case models.MatchStatusCompleted:
		if req.PlayerScore == nil || req.OpponentScore == nil {
			return nil, nil
		}
		if *req.PlayerScore > *req.OpponentScore {
			return &player.ID, nil
		}
		if *req.OpponentScore > *req.PlayerScore {
			if opponent != nil {
				return &opponent.ID, nil
			}
			return nil, nil
		}
		return nil, nil // tie
	}

	return nil, nil
}

func lockAccounts(tx storage.Datastore, player, opponent *models.Account) ([]*models.Account, error) {
	ids := []uint{player.ID}
	if opponent != nil {
		if opponent.ID < player.ID {
			ids = []uint{opponent.ID, player.ID}
		} else {
			ids = append(ids, opponent.ID)
		}
	}

	locked := make([]*models.Account, 0, len(ids))
	for _, id := range ids {
		acct, err := tx.Accounts().GetForUpdate(id)
		if err != nil {
			return nil, err
		}
		locked = append(locked, acct)
	}

	return locked, nil
}

func refundStake(tx storage.Datastore, acct *models.Account, match *models.Match, kind string) error {
	if match.Wager == 0 {
		return nil
	}
	if err := tx.Accounts().AdjustCredits(acct.ID, match.Wager); err != nil {
		return err
	}
	return tx.Ledger().Append(&models.LedgerEntry{
		EntryID:       uuid.NewString(),
		AccountID:     acct.ID,
		MatchID:       &match.ID,
		Delta:         match.Wager,
		BalanceBefore: acct.Credits,
		BalanceAfter:  acct.Credits + match.Wager,
		Kind:          kind,
		Description:   "stake returned",
	})
}

func appendLossEntry(tx storage.Datastore, acct *models.Account, match *models.Match) error {
	return tx.Ledger().Append(&models.LedgerEntry{
		EntryID:       uuid.NewString(),
		AccountID:     acct.ID,
		MatchID:       &match.ID,
		Delta:         0,
		BalanceBefore: acct.Credits,
		BalanceAfter:  acct.Credits,
		Kind:          models.LedgerKindLoss,
		Description:   "wager closed against this account",
	})
}

// collectStatsJobs translates a settlement into per-account aggregate
// updates. Abandoned matches never touch win/loss/draw tallies.
func collectStatsJobs(match *models.Match, winnerID *uint, status string) []StatsJob {
	if status == models.MatchStatusAbandoned {
		return nil
	}

	outcomeFor := func(id uint) storage.MatchOutcome {
		if winnerID == nil {
			return storage.OutcomeDrawn
		}
		if *winnerID == id {
			return storage.OutcomeWon
		}
		return storage.OutcomeLost
	}

	jobs := []StatsJob{{
		MatchID:    match.MatchID,
		AccountID:  match.PlayerID,
		OpponentID: match.OpponentID,
		Outcome:    outcomeFor(match.PlayerID),
	}}
	if match.OpponentID != nil {
		playerID := match.PlayerID
		jobs = append(jobs, StatsJob{
			MatchID:    match.MatchID,
			AccountID:  *match.OpponentID,
			OpponentID: &playerID,
			Outcome:    outcomeFor(*match.OpponentID),
		})
	}

	return jobs
}
