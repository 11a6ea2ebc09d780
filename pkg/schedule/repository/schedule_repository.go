package repository

import "cropcal/entities"

// ScheduleRepository reads and writes the schedule columns of a calendar row.
type ScheduleRepository interface {
	Load(calendarID string) (*entities.CropCalendar, error)
	// SaveEvents writes the event lists, cost and hash only if the stored
	// revision still equals prevRevision.
	SaveEvents(cal *entities.CropCalendar, prevRevision int) error
}
