package repository

import "cropcal/entities"

// ProfileRepository is the crop profile store. Published versions are
// immutable: Publish never overwrites an existing (crop_id, version).
type ProfileRepository interface {
	Publish(p *entities.CropProfile) (created bool, err error)
	FindByID(cropID string) (*entities.CropProfile, error)
	FindVersion(cropID string, version int) (*entities.CropProfile, error)
	List() ([]entities.CropProfile, error)
}
