package repositories

import (
	"github.com/playarena/credit_engine/internal/models"
	"github.com/playarena/credit_engine/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

func (r *MatchRepository) Create(match *models.Match) error {
	if err := r.db.Create(match).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create match")
	}
	return nil
}

func (r *MatchRepository) GetByMatchID(matchID string) (*models.Match, error) {
	var match models.Match
	result := r.db.Where("match_id = ?", matchID).First(&match)

	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "match not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get match")
	}

	return &match, nil
}

func (r *MatchRepository) GetForUpdate(id uint) (*models.Match, error) {
	var match models.Match
	result := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&match, id)

	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "match not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to lock match")
	}

	return &match, nil
}

// Close applies the terminal update only while the match is still in
// "started". A false return means the match was already settled.
func (r *MatchRepository) Close(id uint, updates map[string]interface{}) (bool, error) {
	result := r.db.Model(&models.Match{}).
		Where("id = ? AND status = ?", id, models.MatchStatusStarted).
		Updates(updates)

	if result.Error != nil {
		return false, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to close match")
	}

	return result.RowsAffected > 0, nil
}
