package entities

import "time"

const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole days from a to b (negative when b is before a).
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

type EventKind string

const (
	KindFertilization  EventKind = "fertilization"
	KindIrrigation     EventKind = "irrigation"
	KindPestManagement EventKind = "pest_management"
	KindActivity       EventKind = "activity"
)

// Rank orders kinds on the merged activity calendar. Unknown kinds return -1.
func (k EventKind) Rank() int {
	switch k {
	case KindFertilization:
		return 0
	case KindIrrigation:
		return 1
	case KindPestManagement:
		return 2
	case KindActivity:
		return 3
	}
	return -1
}

func (k EventKind) Valid() bool { return k.Rank() >= 0 }

type EventStatus string

const (
	StatusPending EventStatus = "pending"
	StatusDone    EventStatus = "done"
	StatusSkipped EventStatus = "skipped"
)

const (
	ReasonForecastPrecipitation = "forecast_precipitation_exceeds_threshold"
	ReasonUserSkipped           = "skipped_by_user"

	FlagRainWashOff = "rain_forecast_may_wash_off"
	FlagHeatStress  = "heat_stress_forecast"
)

// Action is one unit of work inside an event. Quantity is already scaled to
// the planted area; RatePerRefArea keeps the template rate for costing.
type Action struct {
	Name           string     `json:"name"`
	Product        string     `json:"product,omitempty"`
	RatePerRefArea float64    `json:"rate_per_ref_area"`
	Quantity       float64    `json:"quantity"`
	Unit           string     `json:"unit,omitempty"`
	UnitPrice      PriceRange `json:"unit_price"`
}

// ScheduleEvent is the common {date, status, payload} shape of every event
// kind. ID is derived from kind and date, so it is stable across re-synthesis.
type ScheduleEvent struct {
	ID      string      `json:"id"`
	Kind    EventKind   `json:"kind"`
	Date    time.Time   `json:"date"`
	Stage   string      `json:"stage"`
	Status  EventStatus `json:"status"`
	Reason  string      `json:"reason,omitempty"`
	Detail  string      `json:"detail,omitempty"`
	Flags   []string    `json:"flags,omitempty"`
	Actions []Action    `json:"actions"`
}

// Overdue reports a pending event whose date has passed.
func (e ScheduleEvent) Overdue(asOf time.Time) bool {
	return e.Status == StatusPending && Day(e.Date).Before(Day(asOf))
}

// Schedule holds the synthesized event lists of a calendar.
type Schedule struct {
	Fertilization  []ScheduleEvent `json:"fertilization"`
	Irrigation     []ScheduleEvent `json:"irrigation"`
	PestManagement []ScheduleEvent `json:"pest_management"`
	Activities     []ScheduleEvent `json:"activities"`
}

// ByKind returns the events of one kind. Activities holds the merged
// presentation calendar, so generic activities are filtered out of it.
func (s Schedule) ByKind(k EventKind) []ScheduleEvent {
	switch k {
	case KindFertilization:
		return s.Fertilization
	case KindIrrigation:
		return s.Irrigation
	case KindPestManagement:
		return s.PestManagement
	case KindActivity:
		var out []ScheduleEvent
		for _, e := range s.Activities {
			if e.Kind == KindActivity {
				out = append(out, e)
			}
		}
		return out
	}
	return nil
}

// Find returns the event with the given id from the merged calendar.
func (s Schedule) Find(id string) (ScheduleEvent, bool) {
	for _, e := range s.Activities {
		if e.ID == id {
			return e, true
		}
	}
	return ScheduleEvent{}, false
}

// StageWindow is the contiguous date range of one growth stage. Both dates
// are inclusive. A stage that was passed over during re-anchoring keeps its
// slot with Days == 0 and Bypassed set.
type StageWindow struct {
	Stage     string    `json:"stage"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Days      int       `json:"days"`
	Bypassed  bool      `json:"bypassed,omitempty"`
}

func (w StageWindow) Contains(day time.Time) bool {
	d := Day(day)
	return !w.Bypassed && !d.Before(w.StartDate) && !d.After(w.EndDate)
}
