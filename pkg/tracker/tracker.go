// Package tracker holds the per-tick state logic of a calendar: which stage
// it should be in, how far along it is, and whether the world has drifted
// far enough from its generation conditions to warrant a full recalculation.
package tracker

import (
	"fmt"
	"math"
	"time"

	"cropcal/entities"
	"cropcal/pkg/timeline"
)

const (
	TriggerCreate      = "create"
	TriggerTick        = "tick"
	TriggerObservation = "observation"
	TriggerRefresh     = "snapshot_refresh"
	TriggerReplant     = "replant"
)

type DriftPolicy struct {
	TemperatureDeltaC      float64 `yaml:"temperature_delta_c"`
	NDVIDelta              float64 `yaml:"ndvi_delta"`
	SoilMoistureDeltaPct   float64 `yaml:"soil_moisture_delta_pct"`
	StageMismatchTolerance int     `yaml:"stage_mismatch_tolerance"`
}

func DefaultDriftPolicy() DriftPolicy {
	return DriftPolicy{TemperatureDeltaC: 5, NDVIDelta: 0.15, SoilMoistureDeltaPct: 15, StageMismatchTolerance: 1}
}

// Progress is elapsed days over the timeline span, clamped to [0,100].
func Progress(tl []entities.StageWindow, asOf time.Time) float64 {
	span := timeline.Span(tl)
	if span <= 0 {
		return 0
	}
	elapsed := entities.DaysBetween(tl[0].StartDate, asOf)
	p := float64(elapsed) / float64(span) * 100
	p = math.Max(0, math.Min(100, p))
	return math.Round(p*10) / 10
}

// Advance keeps progress from moving backwards. A re-anchored timeline can
// shorten or lengthen the span, which must not make the crop look younger.
func Advance(prev, next float64) float64 {
	return math.Max(prev, next)
}

// Status derives planned/active from the dates. Terminal states are sticky.
func Status(current entities.CalendarStatus, tl []entities.StageWindow, asOf time.Time) entities.CalendarStatus {
	if current.Closed() {
		return current
	}
	if len(tl) > 0 && entities.Day(asOf).Before(tl[0].StartDate) {
		return entities.CalendarPlanned
	}
	return entities.CalendarActive
}

// Drift is the outcome of comparing a tick's inputs with the calendar's
// generation conditions.
type Drift struct {
	Full     bool
	Expected int
	Observed int
	// StageMismatch is set when the observed stage alone forces a re-anchor.
	StageMismatch bool
	Reasons       []string
}

// Detect decides between a light refresh and a full recalculation. observed
// is the reported stage index, or -1 when nothing was reported.
func Detect(gc entities.GenerationConditions, tl []entities.StageWindow, observed int, snap *entities.EnvironmentalSnapshot, asOf time.Time, p DriftPolicy) Drift {
	d := Drift{Expected: timeline.StageAt(tl, asOf), Observed: observed}

	if observed >= 0 {
		gap := observed - d.Expected
		if abs(gap) >= p.StageMismatchTolerance && gap != 0 {
			d.StageMismatch = true
			dir := "ahead of"
			if gap < 0 {
				dir = "behind"
			}
			d.Reasons = append(d.Reasons, fmt.Sprintf("observed stage %s is %d stage(s) %s expected %s",
				tl[observed].Stage, abs(gap), dir, tl[d.Expected].Stage))
		}
	}

	if w := snap.FreshWeather(asOf); w != nil {
		switch {
		case !gc.WeatherFresh:
			d.Reasons = append(d.Reasons, "fresh weather data available after degraded generation")
		case w.TemperatureC != nil && gc.TemperatureC != nil && math.Abs(*w.TemperatureC-*gc.TemperatureC) > p.TemperatureDeltaC:
			d.Reasons = append(d.Reasons, fmt.Sprintf("temperature moved %.1fC since generation", *w.TemperatureC-*gc.TemperatureC))
		}
	}
	if s := snap.FreshSatellite(asOf); s != nil {
		switch {
		case !gc.SatelliteFresh:
			d.Reasons = append(d.Reasons, "fresh satellite data available after degraded generation")
		default:
			if s.NDVI != nil && gc.NDVI != nil && math.Abs(*s.NDVI-*gc.NDVI) > p.NDVIDelta {
				d.Reasons = append(d.Reasons, fmt.Sprintf("NDVI moved %.2f since generation", *s.NDVI-*gc.NDVI))
			}
			if s.SoilMoisturePct != nil && gc.SoilMoisturePct != nil && math.Abs(*s.SoilMoisturePct-*gc.SoilMoisturePct) > p.SoilMoistureDeltaPct {
				d.Reasons = append(d.Reasons, fmt.Sprintf("soil moisture moved %.1f%% since generation", *s.SoilMoisturePct-*gc.SoilMoisturePct))
			}
		}
	}
	d.Full = len(d.Reasons) > 0
	return d
}

// Conditions captures what a (re)generation ran on. CapturedAt is the
// logical asOf, never the wall clock, so replays produce identical rows.
func Conditions(snap *entities.EnvironmentalSnapshot, asOf time.Time, observedStage, trigger string) entities.GenerationConditions {
	gc := entities.GenerationConditions{CapturedAt: entities.Day(asOf), Trigger: trigger, ObservedStage: observedStage}
	if snap != nil {
		t := snap.FetchedAt
		gc.SnapshotFetchedAt = &t
	}
	if w := snap.FreshWeather(asOf); w != nil {
		gc.WeatherFresh = true
		gc.TemperatureC = w.TemperatureC
	}
	if s := snap.FreshSatellite(asOf); s != nil {
		gc.SatelliteFresh = true
		gc.NDVI = s.NDVI
		gc.SoilMoisturePct = s.SoilMoisturePct
	}
	return gc
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
