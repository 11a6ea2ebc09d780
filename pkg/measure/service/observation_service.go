package service

import "cropcal/entities"

type ObservationService interface {
	History(calendarID, uid string, limit int) ([]entities.Observation, error)
}
