package repositoryImp

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cropcal/entities"
	"cropcal/pkg/apperr"
	"cropcal/pkg/profile/repository"
	"cropcal/pkg/timeline"
)

type profileRepo struct {
	db *gorm.DB
	// versions never change once stored, so a hit never goes stale
	cache sync.Map
}

func New(db *gorm.DB) repository.ProfileRepository { return &profileRepo{db: db} }

func cacheKey(cropID string, version int) string { return cropID + "@" + strconv.Itoa(version) }

func (r *profileRepo) Publish(p *entities.CropProfile) (bool, error) {
	if p.CropID == "" || p.Version <= 0 {
		return false, fmt.Errorf("profile %q version %d: %w", p.CropID, p.Version, apperr.ErrInvalidProfile)
	}
	if err := timeline.Validate(p); err != nil {
		return false, fmt.Errorf("profile %s v%d: %w", p.CropID, p.Version, err)
	}
	res := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindByID returns the latest published version.
func (r *profileRepo) FindByID(cropID string) (*entities.CropProfile, error) {
	var p entities.CropProfile
	err := r.db.Where("crop_id = ?", cropID).Order("version DESC").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("crop profile %s: %w", cropID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	r.cache.Store(cacheKey(p.CropID, p.Version), &p)
	return &p, nil
}

// FindVersion pins a calendar to the profile version it was created from.
func (r *profileRepo) FindVersion(cropID string, version int) (*entities.CropProfile, error) {
	if v, ok := r.cache.Load(cacheKey(cropID, version)); ok {
		return v.(*entities.CropProfile), nil
	}
	var p entities.CropProfile
	err := r.db.Where("crop_id = ? AND version = ?", cropID, version).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("crop profile %s v%d: %w", cropID, version, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	r.cache.Store(cacheKey(cropID, version), &p)
	return &p, nil
}

func (r *profileRepo) List() ([]entities.CropProfile, error) {
	var out []entities.CropProfile
	if err := r.db.Order("crop_id ASC, version ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
