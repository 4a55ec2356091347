package repositories

import (
	"context"

	"github.com/playarena/credit_engine/internal/storage"
	"github.com/playarena/credit_engine/pkg/errors"
	"gorm.io/gorm"
)

// Store is the gorm-backed storage.Datastore. A Store bound to a
// transaction is handed to Atomically callbacks so every repository
// call inside the callback shares the same transaction.
type Store struct {
	db *gorm.DB

	accounts  *AccountRepository
	matches   *MatchRepository
	orders    *OrderRepository
	ledger    *LedgerRepository
	templates *TemplateRepository
	packs     *PackRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:        db,
		accounts:  NewAccountRepository(db),
		matches:   NewMatchRepository(db),
		orders:    NewOrderRepository(db),
		ledger:    NewLedgerRepository(db),
		templates: NewTemplateRepository(db),
		packs:     NewPackRepository(db),
	}
}

func (s *Store) Atomically(ctx context.Context, fn func(tx storage.Datastore) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
	if err != nil {
		if _, ok := err.(*errors.AppError); ok {
			return err
		}
		return errors.Wrap(err, errors.ErrCodeInternalError, "transaction failed")
	}
	return nil
}

func (s *Store) Accounts() storage.AccountStore   { return s.accounts }
func (s *Store) Matches() storage.MatchStore      { return s.matches }
func (s *Store) Orders() storage.OrderStore       { return s.orders }
func (s *Store) Ledger() storage.LedgerJournal    { return s.ledger }
func (s *Store) Templates() storage.TemplateStore { return s.templates }
func (s *Store) Packs() storage.PackStore         { return s.packs }
