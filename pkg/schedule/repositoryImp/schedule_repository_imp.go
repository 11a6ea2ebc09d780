package repositoryImp

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"cropcal/entities"
	"cropcal/pkg/apperr"
	"cropcal/pkg/schedule/repository"
)

type schedRepo struct{ db *gorm.DB }

func New(db *gorm.DB) repository.ScheduleRepository { return &schedRepo{db} }

var eventColumns = []string{
	"fertilization_schedule",
	"irrigation_schedule",
	"pest_management_schedule",
	"activity_calendar",
	"cost_estimation",
	"content_hash",
	"revision",
	"updated_at",
}

func (r *schedRepo) Load(calendarID string) (*entities.CropCalendar, error) {
	var cal entities.CropCalendar
	err := r.db.Where("calendar_id = ?", calendarID).First(&cal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("calendar %s: %w", calendarID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &cal, nil
}

func (r *schedRepo) SaveEvents(cal *entities.CropCalendar, prevRevision int) error {
	res := r.db.Model(cal).
		Where("revision = ?", prevRevision).
		Select(eventColumns).
		Updates(cal)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("calendar %s moved past revision %d: %w", cal.CalendarID, prevRevision, apperr.ErrRecalculationConflict)
	}
	return nil
}
