package repositoryImp

import (
	"gorm.io/gorm"

	"cropcal/entities"
	"cropcal/pkg/measure/repository"
)

type observationRepo struct{ db *gorm.DB }

func New(db *gorm.DB) repository.ObservationRepository { return &observationRepo{db} }

func (r *observationRepo) Create(o *entities.Observation) error { return r.db.Create(o).Error }

// ListByCalendar returns the newest observations first.
func (r *observationRepo) ListByCalendar(calendarID string, limit int) ([]entities.Observation, error) {
	var out []entities.Observation
	q := r.db.Where("calendar_id = ?", calendarID).Order("date DESC, observation_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
