// Package schedule projects a crop profile's template schedules onto a stage
// timeline and serves the resulting events.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"cropcal/entities"
	"cropcal/pkg/timeline"
)

// Policy holds the weather thresholds used to adjust events.
type Policy struct {
	PrecipitationSkipMM float64
	HeatAdvisoryC       float64
}

func DefaultPolicy() Policy {
	return Policy{PrecipitationSkipMM: 10, HeatAdvisoryC: 35}
}

// Input is everything Synthesize reads. Events of Previous dated before
// FreezeBefore are carried over unchanged.
type Input struct {
	Profile      *entities.CropProfile
	Timeline     []entities.StageWindow
	PlantingDate time.Time
	PlannedArea  float64
	Snapshot     *entities.EnvironmentalSnapshot
	AsOf         time.Time
	Previous     *entities.Schedule
	FreezeBefore time.Time
	Policy       Policy
}

// EventID is stable for a kind on a date, so re-synthesis finds the same event.
func EventID(kind entities.EventKind, day time.Time) string {
	return fmt.Sprintf("%s-%s", kind, entities.Day(day).Format("20060102"))
}

// AreaFactor scales template rates to the planted area.
func AreaFactor(plannedArea, referenceArea float64) float64 {
	if referenceArea <= 0 {
		return plannedArea
	}
	return plannedArea / referenceArea
}

// Synthesize is pure: the same input always yields the same schedule.
func Synthesize(in Input) entities.Schedule {
	freeze := entities.Day(in.FreezeBefore)
	harvest := timeline.HarvestDate(in.Timeline)
	factor := AreaFactor(in.PlannedArea, in.Profile.ReferenceAreaHa)
	weather := in.Snapshot.FreshWeather(in.AsOf)

	prev := map[string]entities.ScheduleEvent{}
	if in.Previous != nil {
		for _, e := range in.Previous.Activities {
			prev[e.ID] = e
		}
	}

	var out entities.Schedule
	for _, kind := range []entities.EventKind{entities.KindFertilization, entities.KindIrrigation, entities.KindPestManagement, entities.KindActivity} {
		b := newBucket(kind)
		if kind == entities.KindActivity {
			for _, w := range in.Timeline {
				if w.Bypassed {
					continue
				}
				b.add(w.StartDate, w.Stage, entities.Action{Name: "start_" + w.Stage})
			}
			if !harvest.IsZero() {
				b.add(harvest, in.Timeline[len(in.Timeline)-1].Stage, entities.Action{Name: "harvest"})
			}
		} else {
			for _, e := range in.Profile.Templates()[kind] {
				for _, d := range resolve(e, in.Timeline, in.PlantingDate, harvest) {
					stage := ""
					if i := timeline.StageAt(in.Timeline, d); i >= 0 {
						stage = in.Timeline[i].Stage
					}
					b.add(d, stage, entities.Action{
						Name:           e.Action,
						Product:        e.Product,
						RatePerRefArea: e.RatePerRefArea,
						Quantity:       e.RatePerRefArea * factor,
						Unit:           e.Unit,
						UnitPrice:      e.UnitPrice,
					})
				}
			}
		}

		var events []entities.ScheduleEvent
		if in.Previous != nil && !freeze.IsZero() {
			for _, e := range in.Previous.ByKind(kind) {
				if e.Date.Before(freeze) {
					events = append(events, e)
				}
			}
		}
		for _, e := range b.events() {
			if !freeze.IsZero() && e.Date.Before(freeze) {
				continue
			}
			adjust(&e, weather, in.AsOf, in.Policy)
			if p, ok := prev[e.ID]; ok && userOwned(p) {
				e.Status, e.Reason, e.Detail = p.Status, p.Reason, p.Detail
			}
			events = append(events, e)
		}
		sortEvents(events)

		switch kind {
		case entities.KindFertilization:
			out.Fertilization = events
		case entities.KindIrrigation:
			out.Irrigation = events
		case entities.KindPestManagement:
			out.PestManagement = events
		case entities.KindActivity:
			out.Activities = events
		}
	}
	out.Activities = Merge(out)
	return out
}

// Merge builds the presentation calendar from the typed lists and the
// generic activities already in s.Activities.
func Merge(s entities.Schedule) []entities.ScheduleEvent {
	all := make([]entities.ScheduleEvent, 0, len(s.Fertilization)+len(s.Irrigation)+len(s.PestManagement)+len(s.Activities))
	all = append(all, s.Fertilization...)
	all = append(all, s.Irrigation...)
	all = append(all, s.PestManagement...)
	all = append(all, s.ByKind(entities.KindActivity)...)
	sortEvents(all)
	return all
}

func userOwned(e entities.ScheduleEvent) bool {
	return e.Status == entities.StatusDone || e.Reason == entities.ReasonUserSkipped
}

// resolve turns a template entry into absolute dates.
func resolve(e entities.TemplateEntry, tl []entities.StageWindow, planting, harvest time.Time) []time.Time {
	if e.Stage == "" {
		if e.DayOffset == nil {
			return nil
		}
		d := entities.Day(planting).AddDate(0, 0, *e.DayOffset)
		if !harvest.IsZero() && d.After(harvest) {
			d = harvest
		}
		return []time.Time{d}
	}
	var w *entities.StageWindow
	for i := range tl {
		if tl[i].Stage == e.Stage {
			w = &tl[i]
			break
		}
	}
	if w == nil || w.Bypassed {
		return nil
	}
	first := w.StartDate.AddDate(0, 0, e.StageOffsetDays)
	if first.After(w.EndDate) {
		first = w.EndDate
	}
	if e.EveryDays <= 0 {
		return []time.Time{first}
	}
	var out []time.Time
	for d := first; !d.After(w.EndDate); d = d.AddDate(0, 0, e.EveryDays) {
		out = append(out, d)
	}
	return out
}

// adjust applies the weather rules. Irrigation is skipped in place when rain
// is forecast; nothing else is ever skipped automatically.
func adjust(e *entities.ScheduleEvent, w *entities.WeatherData, asOf time.Time, p Policy) {
	if w == nil || e.Date.Before(entities.Day(asOf)) {
		return
	}
	f, ok := w.ForecastFor(e.Date)
	if !ok {
		return
	}
	switch e.Kind {
	case entities.KindIrrigation:
		if e.Status == entities.StatusPending && f.PrecipitationMM > p.PrecipitationSkipMM {
			e.Status = entities.StatusSkipped
			e.Reason = entities.ReasonForecastPrecipitation
			e.Detail = fmt.Sprintf("forecast %.1fmm above %.1fmm", f.PrecipitationMM, p.PrecipitationSkipMM)
		}
	case entities.KindFertilization, entities.KindPestManagement:
		if f.PrecipitationMM > p.PrecipitationSkipMM {
			e.Flags = append(e.Flags, entities.FlagRainWashOff)
		}
		if p.HeatAdvisoryC > 0 && f.TempMaxC >= p.HeatAdvisoryC {
			e.Flags = append(e.Flags, entities.FlagHeatStress)
		}
	case entities.KindActivity:
	}
}

func sortEvents(es []entities.ScheduleEvent) {
	sort.SliceStable(es, func(i, j int) bool {
		if !es[i].Date.Equal(es[j].Date) {
			return es[i].Date.Before(es[j].Date)
		}
		if es[i].Kind != es[j].Kind {
			return es[i].Kind.Rank() < es[j].Kind.Rank()
		}
		return es[i].ID < es[j].ID
	})
}

// bucket merges everything of one kind that lands on the same date.
type bucket struct {
	kind   entities.EventKind
	byDate map[time.Time]*entities.ScheduleEvent
}

func newBucket(kind entities.EventKind) *bucket {
	return &bucket{kind: kind, byDate: map[time.Time]*entities.ScheduleEvent{}}
}

func (b *bucket) add(day time.Time, stage string, a entities.Action) {
	d := entities.Day(day)
	ev, ok := b.byDate[d]
	if !ok {
		ev = &entities.ScheduleEvent{ID: EventID(b.kind, d), Kind: b.kind, Date: d, Stage: stage, Status: entities.StatusPending}
		b.byDate[d] = ev
	}
	for _, have := range ev.Actions {
		if have == a {
			return
		}
	}
	ev.Actions = append(ev.Actions, a)
}

func (b *bucket) events() []entities.ScheduleEvent {
	out := make([]entities.ScheduleEvent, 0, len(b.byDate))
	for _, ev := range b.byDate {
		sort.SliceStable(ev.Actions, func(i, j int) bool {
			if ev.Actions[i].Name != ev.Actions[j].Name {
				return ev.Actions[i].Name < ev.Actions[j].Name
			}
			return ev.Actions[i].Product < ev.Actions[j].Product
		})
		out = append(out, *ev)
	}
	sortEvents(out)
	return out
}
