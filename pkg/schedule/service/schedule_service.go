package service

import (
	"context"
	"time"

	"cropcal/entities"
)

// EventFilter narrows a listing. Zero fields match everything; From and To
// are inclusive.
type EventFilter struct {
	Kind entities.EventKind
	From time.Time
	To   time.Time
}

type EventPatch struct {
	Status entities.EventStatus
	Note   string
}

type ScheduleService interface {
	List(calendarID, uid string, f EventFilter) ([]entities.ScheduleEvent, error)
	Patch(ctx context.Context, calendarID, eventID, uid string, p EventPatch) (*entities.ScheduleEvent, error)
}
