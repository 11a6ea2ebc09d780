package serviceImp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cropcal/entities"
	"cropcal/pkg/apperr"
	"cropcal/pkg/cost"
	profilerepo "cropcal/pkg/profile/repository"
	"cropcal/pkg/schedule"
	repo "cropcal/pkg/schedule/repository"
	"cropcal/pkg/schedule/service"
)

const saveAttempts = 2

// refresher brings risk and recommendations up to date after an event
// changed state.
type refresher interface {
	Tick(ctx context.Context, id string, asOf time.Time) (*entities.CropCalendar, error)
}

type schedSvc struct {
	r        repo.ScheduleRepository
	profiles profilerepo.ProfileRepository
	refresh  refresher
	logger   *slog.Logger
	now      func() time.Time
}

// NewScheduleService builds the event listing and patching service. refresh
// may be nil.
func NewScheduleService(r repo.ScheduleRepository, pr profilerepo.ProfileRepository, refresh refresher, logger *slog.Logger) service.ScheduleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &schedSvc{r: r, profiles: pr, refresh: refresh, logger: logger, now: time.Now}
}

func (s *schedSvc) owned(calendarID, uid string) (*entities.CropCalendar, error) {
	cal, err := s.r.Load(calendarID)
	if err != nil {
		return nil, err
	}
	if cal.UserID != uid {
		return nil, fmt.Errorf("calendar %s: %w", calendarID, apperr.ErrNotFound)
	}
	return cal, nil
}

// List returns the merged calendar, or one kind when f.Kind is set.
func (s *schedSvc) List(calendarID, uid string, f service.EventFilter) ([]entities.ScheduleEvent, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, fmt.Errorf("unknown kind %q: %w", f.Kind, apperr.ErrInvalidEventUpdate)
	}
	cal, err := s.owned(calendarID, uid)
	if err != nil {
		return nil, err
	}
	sched := cal.Schedule()
	events := sched.Activities
	if f.Kind != "" {
		events = sched.ByKind(f.Kind)
	}
	from, to := entities.Day(f.From), entities.Day(f.To)
	out := make([]entities.ScheduleEvent, 0, len(events))
	for _, e := range events {
		d := entities.Day(e.Date)
		if !f.From.IsZero() && d.Before(from) {
			continue
		}
		if !f.To.IsZero() && d.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Patch marks one event done, skipped or pending again. A user skip survives
// later re-synthesis; pending hands the event back to the synthesizer.
func (s *schedSvc) Patch(ctx context.Context, calendarID, eventID, uid string, p service.EventPatch) (*entities.ScheduleEvent, error) {
	switch p.Status {
	case entities.StatusDone, entities.StatusSkipped, entities.StatusPending:
	default:
		return nil, fmt.Errorf("status %q: %w", p.Status, apperr.ErrInvalidEventUpdate)
	}

	var err error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		var (
			ev      *entities.ScheduleEvent
			changed bool
		)
		ev, changed, err = s.patch(calendarID, eventID, uid, p)
		if err == nil {
			if changed {
				s.logger.Info("[schedule] event updated", "calendar_id", calendarID, "event_id", eventID, "status", p.Status)
				s.afterPatch(ctx, calendarID)
			}
			return ev, nil
		}
		if !errors.Is(err, apperr.ErrRecalculationConflict) {
			return nil, err
		}
	}
	return nil, err
}

func (s *schedSvc) patch(calendarID, eventID, uid string, p service.EventPatch) (*entities.ScheduleEvent, bool, error) {
	cal, err := s.owned(calendarID, uid)
	if err != nil {
		return nil, false, err
	}
	if cal.CalendarStatus.Closed() {
		return nil, false, fmt.Errorf("calendar %s is %s: %w", calendarID, cal.CalendarStatus, apperr.ErrCalendarClosed)
	}
	sched := cal.Schedule()
	cur, ok := sched.Find(eventID)
	if !ok {
		return nil, false, fmt.Errorf("event %s: %w", eventID, apperr.ErrNotFound)
	}

	list := eventList(&sched, cur.Kind)
	var updated entities.ScheduleEvent
	for i := range *list {
		e := &(*list)[i]
		if e.ID != eventID {
			continue
		}
		apply(e, p)
		updated = *e
	}
	if updated.Status == cur.Status && updated.Reason == cur.Reason && updated.Detail == cur.Detail {
		return &cur, false, nil
	}
	sched.Activities = schedule.Merge(sched)

	profile, err := s.profiles.FindVersion(cal.CropID, cal.ProfileVersion)
	if err != nil {
		return nil, false, err
	}
	next := *cal
	next.SetSchedule(sched)
	next.CostEstimation = cost.Estimate(sched, cal.PlannedArea, profile.ReferenceAreaHa, profile.Currency)
	next.ContentHash = next.Fingerprint()
	next.Revision = cal.Revision + 1
	if err := s.r.SaveEvents(&next, cal.Revision); err != nil {
		return nil, false, err
	}
	return &updated, true, nil
}

func (s *schedSvc) afterPatch(ctx context.Context, calendarID string) {
	if s.refresh == nil {
		return
	}
	if _, err := s.refresh.Tick(ctx, calendarID, s.now()); err != nil {
		s.logger.Warn("[schedule] refresh after patch failed", "calendar_id", calendarID, "error", err)
	}
}

func apply(e *entities.ScheduleEvent, p service.EventPatch) {
	e.Status = p.Status
	switch p.Status {
	case entities.StatusSkipped:
		e.Reason = entities.ReasonUserSkipped
	default:
		e.Reason = ""
	}
	if p.Note != "" {
		e.Detail = p.Note
	}
}

// eventList returns the typed list holding events of kind k. Generic
// activities live in the merged list itself.
func eventList(s *entities.Schedule, k entities.EventKind) *[]entities.ScheduleEvent {
	switch k {
	case entities.KindFertilization:
		return &s.Fertilization
	case entities.KindIrrigation:
		return &s.Irrigation
	case entities.KindPestManagement:
		return &s.PestManagement
	}
	return &s.Activities
}
