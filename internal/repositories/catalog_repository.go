package repositories

import (
	"github.com/playarena/credit_engine/internal/models"
	"github.com/playarena/credit_engine/pkg/errors"
	"gorm.io/gorm"
)

type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) GetByID(id uint) (*models.GameTemplate, error) {
	var template models.GameTemplate
	result := r.db.First(&template, id)

	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "game template not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get game template")
	}

	return &template, nil
}

type PackRepository struct {
	db *gorm.DB
}

func NewPackRepository(db *gorm.DB) *PackRepository {
	return &PackRepository{db: db}
}

func (r *PackRepository) GetByID(id uint) (*models.CreditPack, error) {
	var pack models.CreditPack
	result := r.db.First(&pack, id)

	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "credit pack not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get credit pack")
	}

	return &pack, nil
}
