package repository

import "cropcal/entities"

// ObservationRepository is the append-only observation log.
type ObservationRepository interface {
	Create(o *entities.Observation) error
	ListByCalendar(calendarID string, limit int) ([]entities.Observation, error)
}
