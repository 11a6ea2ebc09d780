package repositoryImp

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"cropcal/entities"
	"cropcal/pkg/apperr"
	"cropcal/pkg/calendar/repository"
)

var openStatuses = []string{string(entities.CalendarPlanned), string(entities.CalendarActive)}

type calendarRepo struct{ db *gorm.DB }

func New(db *gorm.DB) repository.CalendarRepository { return &calendarRepo{db} }

func (r *calendarRepo) Create(cal *entities.CropCalendar, log *entities.RecalcLog) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cal).Error; err != nil {
			return err
		}
		if log == nil {
			return nil
		}
		log.CalendarID = cal.CalendarID
		log.Revision = cal.Revision
		return tx.Create(log).Error
	})
}

func (r *calendarRepo) FindByID(id string) (*entities.CropCalendar, error) {
	var c entities.CropCalendar
	err := r.db.Where("calendar_id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("calendar %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *calendarRepo) Owner(id string) (string, error) {
	var uids []string
	if err := r.db.Model(&entities.CropCalendar{}).Where("calendar_id = ?", id).Pluck("user_id", &uids).Error; err != nil {
		return "", err
	}
	if len(uids) == 0 {
		return "", fmt.Errorf("calendar %s: %w", id, apperr.ErrNotFound)
	}
	return uids[0], nil
}

// Save writes the calendar and its recalculation log in one transaction.
// A row whose revision moved on since it was read is left untouched and
// ErrRecalculationConflict is returned.
func (r *calendarRepo) Save(cal *entities.CropCalendar, prevRevision int, log *entities.RecalcLog) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(cal).Where("revision = ?", prevRevision).Select("*").Omit("created_at").Updates(cal)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("calendar %s at revision %d: %w", cal.CalendarID, prevRevision, apperr.ErrRecalculationConflict)
		}
		if log == nil {
			return nil
		}
		log.CalendarID = cal.CalendarID
		log.Revision = cal.Revision
		return tx.Create(log).Error
	})
}

func (r *calendarRepo) ListOpen() ([]string, error) {
	var ids []string
	err := r.db.Model(&entities.CropCalendar{}).
		Where("calendar_status IN ?", openStatuses).
		Order("calendar_id ASC").Pluck("calendar_id", &ids).Error
	return ids, err
}

func (r *calendarRepo) ListOpenByLocation(locationHash string) ([]string, error) {
	var ids []string
	err := r.db.Model(&entities.CropCalendar{}).
		Where("location_hash = ? AND calendar_status IN ?", locationHash, openStatuses).
		Order("calendar_id ASC").Pluck("calendar_id", &ids).Error
	return ids, err
}

func (r *calendarRepo) RecalcLogs(id string) ([]entities.RecalcLog, error) {
	var out []entities.RecalcLog
	if err := r.db.Where("calendar_id = ?", id).Order("revision ASC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
