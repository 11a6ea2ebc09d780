package repositoryImp

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"cropcal/entities"
	"cropcal/pkg/apperr"
	"cropcal/pkg/field/repository"
)

type farmRepo struct{ db *gorm.DB }

func New(db *gorm.DB) repository.FarmRepository { return &farmRepo{db} }

func (r *farmRepo) Create(f *entities.Farm) error { return r.db.Create(f).Error }

func (r *farmRepo) FindByID(id uint) (*entities.Farm, error) {
	var f entities.Farm
	err := r.db.Where("farm_id = ?", id).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("farm %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}
