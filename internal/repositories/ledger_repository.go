package repositories

import (
	"github.com/playarena/credit_engine/internal/models"
	"github.com/playarena/credit_engine/pkg/errors"
	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append writes one immutable journal entry. There is deliberately no
// update or delete method on this repository.
func (r *LedgerRepository) Append(entry *models.LedgerEntry) error {
	if entry.BalanceAfter != entry.BalanceBefore+entry.Delta {
		return errors.New(errors.ErrCodeValidationFailed, "ledger entry balances do not reconcile")
	}

	if err := r.db.Create(entry).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to append ledger entry")
	}
	return nil
}

func (r *LedgerRepository) ListByAccount(accountID uint, f models.LedgerFilters) ([]models.LedgerEntry, error) {
	query := r.db.Where("account_id = ?", accountID)

	if f.Kind != "" {
		query = query.Where("kind = ?", f.Kind)
	}
	if f.MatchID != nil {
		query = query.Where("match_id = ?", *f.MatchID)
	}
	if f.OrderID != nil {
		query = query.Where("order_id = ?", *f.OrderID)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var entries []models.LedgerEntry
	result := query.Order("id DESC").Limit(limit).Find(&entries)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to list ledger entries")
	}

	return entries, nil
}

func (r *LedgerRepository) SumDeltas(accountID uint) (int64, error) {
	var sum *int64
	result := r.db.Model(&models.LedgerEntry{}).
		Where("account_id = ?", accountID).
		Select("SUM(delta)").
		Scan(&sum)

	if result.Error != nil {
		return 0, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to sum ledger deltas")
	}
	if sum == nil {
		return 0, nil
	}

	return *sum, nil
}
