package serviceImp

import (
	"fmt"

	"github.com/mmcloughlin/geohash"

	"cropcal/entities"
	"cropcal/pkg/apperr"
	repo "cropcal/pkg/field/repository"
	"cropcal/pkg/field/service"
)

type farmSvc struct {
	r         repo.FarmRepository
	precision uint
}

// NewFarmService hashes farm locations to the given geohash precision.
// Farms sharing a hash share environmental snapshots.
func NewFarmService(r repo.FarmRepository, precision uint) service.FarmService {
	if precision == 0 || precision > 12 {
		precision = 6
	}
	return &farmSvc{r: r, precision: precision}
}

// LocationHash is the snapshot key for a coordinate.
func LocationHash(lat, lng float64, precision uint) string {
	return geohash.EncodeWithPrecision(lat, lng, precision)
}

func (s *farmSvc) Register(f *entities.Farm) (*entities.Farm, error) {
	f.LocationHash = LocationHash(f.Latitude, f.Longitude, s.precision)
	if err := s.r.Create(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Get hides farms owned by someone else behind NotFound.
func (s *farmSvc) Get(id uint, uid string) (*entities.Farm, error) {
	f, err := s.r.FindByID(id)
	if err != nil {
		return nil, err
	}
	if f.UserID != uid {
		return nil, fmt.Errorf("farm %d: %w", id, apperr.ErrNotFound)
	}
	return f, nil
}
