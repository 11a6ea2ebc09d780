package serviceImp

import (
	"fmt"

	"cropcal/entities"
	"cropcal/pkg/apperr"
	repo "cropcal/pkg/measure/repository"
	"cropcal/pkg/measure/service"
)

// calendarOwner resolves who owns a calendar; it fails with NotFound for
// unknown ids.
type calendarOwner interface {
	Owner(calendarID string) (string, error)
}

type observationSvc struct {
	r        repo.ObservationRepository
	calendar calendarOwner
}

func NewObservationService(r repo.ObservationRepository, c calendarOwner) service.ObservationService {
	return &observationSvc{r: r, calendar: c}
}

func (s *observationSvc) History(calendarID, uid string, limit int) ([]entities.Observation, error) {
	owner, err := s.calendar.Owner(calendarID)
	if err != nil {
		return nil, err
	}
	if owner != uid {
		return nil, fmt.Errorf("calendar %s: %w", calendarID, apperr.ErrNotFound)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.r.ListByCalendar(calendarID, limit)
}
