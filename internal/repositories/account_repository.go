package repositories

import (
	"github.com/playarena/credit_engine/internal/models"
	"github.com/playarena/credit_engine/internal/storage"
	"github.com/playarena/credit_engine/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(account *models.Account) error {
	if err := r.db.Create(account).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create account")
	}
	return nil
}

func (r *AccountRepository) GetByAccountID(accountID string) (*models.Account, error) {
	var account models.Account
	result := r.db.Where("account_id = ?", accountID).First(&account)

	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "account not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get account")
	}

	return &account, nil
}

func (r *AccountRepository) GetByID(id uint) (*models.Account, error) {
	var account models.Account
	result := r.db.First(&account, id)

	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "account not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get account")
	}

	return &account, nil
}

// GetForUpdate locks the account row for the rest of the transaction.
// Balance checks and the subsequent AdjustCredits must happen under
// this lock so concurrent settlements serialize per account.
func (r *AccountRepository) GetForUpdate(id uint) (*models.Account, error) {
	var account models.Account
	result := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&account, id)

	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "account not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to lock account")
	}

	return &account, nil
}

// AdjustCredits applies an increment expression to the balance. The
// credits >= 0 check constraint is the last line of defense; callers
// verify sufficient balance under a row lock first.
func (r *AccountRepository) AdjustCredits(id uint, delta int64) error {
	result := r.db.Model(&models.Account{}).
		Where("id = ?", id).
		UpdateColumn("credits", gorm.Expr("credits + ?", delta))

	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to adjust credits")
	}
	if result.RowsAffected == 0 {
		return errors.New(errors.ErrCodeNotFound, "account not found")
	}

	return nil
}

func (r *AccountRepository) IncrementPurchases(id uint) error {
	result := r.db.Model(&models.Account{}).
		Where("id = ?", id).
		UpdateColumn("purchase_count", gorm.Expr("purchase_count + 1"))

	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to increment purchases")
	}
	return nil
}

// ApplyMatchOutcome increments aggregate match statistics. Runs on the
// fire-and-forget stats path, outside settlement transactions.
func (r *AccountRepository) ApplyMatchOutcome(id uint, outcome storage.MatchOutcome) error {
	updates := map[string]interface{}{
		"games_played": gorm.Expr("games_played + 1"),
	}

	switch outcome {
	case storage.OutcomeWon:
		updates["games_won"] = gorm.Expr("games_won + 1")
		updates["win_streak"] = gorm.Expr("win_streak + 1")
		updates["longest_win_streak"] = gorm.Expr("GREATEST(longest_win_streak, win_streak + 1)")
	case storage.OutcomeLost:
		updates["games_lost"] = gorm.Expr("games_lost + 1")
		updates["win_streak"] = 0
	case storage.OutcomeDrawn:
		updates["games_drawn"] = gorm.Expr("games_drawn + 1")
		updates["win_streak"] = 0
	default:
		return errors.New(errors.ErrCodeValidationFailed, "unknown match outcome")
	}

	result := r.db.Model(&models.Account{}).Where("id = ?", id).UpdateColumns(updates)
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to apply match outcome")
	}
	return nil
}

// BumpHeadToHead upserts the per-opponent counter row for one account.
func (r *AccountRepository) BumpHeadToHead(accountID, opponentID uint, outcome storage.MatchOutcome) error {
	row := models.HeadToHead{AccountID: accountID, OpponentID: opponentID}

	var column string
	switch outcome {
	case storage.OutcomeWon:
		row.Wins = 1
		column = "wins"
	case storage.OutcomeLost:
		row.Losses = 1
		column = "losses"
	case storage.OutcomeDrawn:
		row.Draws = 1
		column = "draws"
	default:
		return errors.New(errors.ErrCodeValidationFailed, "unknown match outcome")
	}

	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "opponent_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{column: gorm.Expr(column + " + 1")}),
	}).Create(&row).Error

	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to update head-to-head")
	}
	return nil
}
