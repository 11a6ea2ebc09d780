package repository

import "cropcal/entities"

// CalendarRepository persists calendars with optimistic revisions: Save only
// succeeds when the stored revision still equals prevRevision.
type CalendarRepository interface {
	Create(cal *entities.CropCalendar, log *entities.RecalcLog) error
	FindByID(id string) (*entities.CropCalendar, error)
	Owner(id string) (string, error)
	Save(cal *entities.CropCalendar, prevRevision int, log *entities.RecalcLog) error
	ListOpen() ([]string, error)
	ListOpenByLocation(locationHash string) ([]string, error)
	RecalcLogs(id string) ([]entities.RecalcLog, error)
}
