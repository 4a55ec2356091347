package storage

import (
	"context"
	"time"

	"github.com/playarena/credit_engine/internal/models"
)

// Datastore is the narrow contract the settlement and payment engines
// depend on. The gorm-backed implementation lives in internal/repositories;
// tests use an in-memory fake.
//
// Atomically runs fn against a transaction-bound Datastore. Every
// balance-affecting operation (escrow, settlement, purchase confirmation)
// must run inside one Atomically call so the account mutation, the ledger
// append and the match/order row commit or roll back as a whole.
type Datastore interface {
	Atomically(ctx context.Context, fn func(tx Datastore) error) error
	Accounts() AccountStore
	Matches() MatchStore
	Orders() OrderStore
	Ledger() LedgerJournal
	Templates() TemplateStore
	Packs() PackStore
}

// MatchOutcome is a per-account view of a settled match, used for
// aggregate statistics.
type MatchOutcome string

const (
	OutcomeWon   MatchOutcome = "won"
	OutcomeLost  MatchOutcome = "lost"
	OutcomeDrawn MatchOutcome = "drawn"
)

type AccountStore interface {
	Create(a *models.Account) error
	GetByAccountID(accountID string) (*models.Account, error)
	GetByID(id uint) (*models.Account, error)
	// GetForUpdate loads the account under a row lock. Only meaningful
	// inside Atomically.
	GetForUpdate(id uint) (*models.Account, error)
	// AdjustCredits applies credits = credits + delta as an increment
	// expression, never a wholesale overwrite.
	AdjustCredits(id uint, delta int64) error
	IncrementPurchases(id uint) error
	ApplyMatchOutcome(id uint, outcome MatchOutcome) error
	BumpHeadToHead(accountID, opponentID uint, outcome MatchOutcome) error
}

type MatchStore interface {
	Create(m *models.Match) error
	GetByMatchID(matchID string) (*models.Match, error)
	GetForUpdate(id uint) (*models.Match, error)
	// Close moves a match out of "started" into a terminal status.
	// Returns false when the match was no longer in "started".
	Close(id uint, updates map[string]interface{}) (bool, error)
}

type OrderStore interface {
	Create(o *models.PaymentOrder) error
	GetByOrderID(orderID string) (*models.PaymentOrder, error)
	GetByGatewayOrderID(gatewayOrderID string) (*models.PaymentOrder, error)
	GetForUpdate(id uint) (*models.PaymentOrder, error)
	// TransitionFromPending applies a guarded status change. Returns false
	// without error when the order had already left "pending" — the caller
	// treats that as a duplicate signal, not a failure.
	TransitionFromPending(id uint, to string, updates map[string]interface{}) (bool, error)
	// MarkRetried moves an order from the given retryable status into
	// "retried". Returns false when the status no longer matches.
	MarkRetried(id uint, from string) (bool, error)
	CancelPendingForAccount(accountID uint) error
	ExpireStalePending(now time.Time) (int64, error)
	FailStaleErrors(cutoff time.Time) (int64, error)
}

type LedgerJournal interface {
	Append(e *models.LedgerEntry) error
	ListByAccount(accountID uint, f models.LedgerFilters) ([]models.LedgerEntry, error)
	// SumDeltas reconciles the journal against the account balance.
	SumDeltas(accountID uint) (int64, error)
}

type TemplateStore interface {
	GetByID(id uint) (*models.GameTemplate, error)
}

type PackStore interface {
	GetByID(id uint) (*models.CreditPack, error)
}
