// Package timeline anchors a crop profile's growth stages to calendar dates
// and re-anchors the remaining stages when the crop runs ahead of or behind
// its plan.
package timeline

import (
	"fmt"
	"math"
	"time"

	"cropcal/entities"
	"cropcal/pkg/apperr"
)

// FractionTolerance is how far the stage fractions may sum away from 1.0.
const FractionTolerance = 0.01

// Validate checks the structural invariants of a profile before it is used.
func Validate(p *entities.CropProfile) error {
	if p == nil {
		return fmt.Errorf("nil profile: %w", apperr.ErrInvalidProfile)
	}
	if p.GrowingPeriodDays <= 0 {
		return fmt.Errorf("%s: growing_period_days=%d: %w", p.CropID, p.GrowingPeriodDays, apperr.ErrInvalidProfile)
	}
	if len(p.GrowthStages) == 0 {
		return fmt.Errorf("%s: no growth stages: %w", p.CropID, apperr.ErrInvalidProfile)
	}
	if p.GrowingPeriodDays < len(p.GrowthStages) {
		return fmt.Errorf("%s: %d days cannot hold %d stages: %w", p.CropID, p.GrowingPeriodDays, len(p.GrowthStages), apperr.ErrInvalidProfile)
	}
	sum := 0.0
	seen := map[string]bool{}
	for _, s := range p.GrowthStages {
		if s.Name == "" || seen[s.Name] {
			return fmt.Errorf("%s: stage name %q empty or duplicated: %w", p.CropID, s.Name, apperr.ErrInvalidProfile)
		}
		if s.RelativeDurationFraction <= 0 {
			return fmt.Errorf("%s: stage %s fraction %.3f: %w", p.CropID, s.Name, s.RelativeDurationFraction, apperr.ErrInvalidProfile)
		}
		seen[s.Name] = true
		sum += s.RelativeDurationFraction
	}
	if math.Abs(sum-1) > FractionTolerance {
		return fmt.Errorf("%s: stage fractions sum to %.4f: %w", p.CropID, sum, apperr.ErrInvalidProfile)
	}
	for kind, entries := range p.Templates() {
		for i, e := range entries {
			switch {
			case e.Stage == "" && e.DayOffset == nil:
				return fmt.Errorf("%s: %s[%d] has neither stage nor day_offset: %w", p.CropID, kind, i, apperr.ErrInvalidProfile)
			case e.Stage != "" && !seen[e.Stage]:
				return fmt.Errorf("%s: %s[%d] names unknown stage %q: %w", p.CropID, kind, i, e.Stage, apperr.ErrInvalidProfile)
			case e.DayOffset != nil && *e.DayOffset < 0:
				return fmt.Errorf("%s: %s[%d] negative day_offset: %w", p.CropID, kind, i, apperr.ErrInvalidProfile)
			case e.EveryDays < 0 || e.StageOffsetDays < 0:
				return fmt.Errorf("%s: %s[%d] negative stage offset or interval: %w", p.CropID, kind, i, apperr.ErrInvalidProfile)
			}
		}
	}
	if _, err := nominalDays(p); err != nil {
		return err
	}
	return nil
}

// nominalDays is the planned length of every stage. The final stage takes the
// rounding remainder and ends on the harvest date itself.
func nominalDays(p *entities.CropProfile) ([]int, error) {
	n := len(p.GrowthStages)
	out := make([]int, n)
	cum := 0
	for i, s := range p.GrowthStages[:n-1] {
		d := int(math.Round(s.RelativeDurationFraction * float64(p.GrowingPeriodDays)))
		if d < 1 {
			return nil, fmt.Errorf("%s: stage %s rounds to %d days: %w", p.CropID, s.Name, d, apperr.ErrInvalidProfile)
		}
		out[i] = d
		cum += d
	}
	// rounding up can leave the final stage with nothing; give it days back
	// from the longest earlier stage, latest first on ties
	for cum > p.GrowingPeriodDays {
		j := -1
		for i := n - 2; i >= 0; i-- {
			if out[i] > 1 && (j < 0 || out[i] > out[j]) {
				j = i
			}
		}
		if j < 0 {
			return nil, fmt.Errorf("%s: no days left for final stage: %w", p.CropID, apperr.ErrInvalidProfile)
		}
		out[j]--
		cum--
	}
	out[n-1] = p.GrowingPeriodDays - cum + 1
	return out, nil
}

// Build lays the profile's stages end to end from planting. The expected
// harvest date is planting + growing_period_days and coincides with the end
// of the final stage.
func Build(p *entities.CropProfile, planting, asOf time.Time, graceDays int) ([]entities.StageWindow, time.Time, error) {
	if err := Validate(p); err != nil {
		return nil, time.Time{}, err
	}
	planting = entities.Day(planting)
	earliest := entities.Day(asOf).AddDate(0, 0, -graceDays)
	if planting.Before(earliest) {
		return nil, time.Time{}, fmt.Errorf("planting %s is before %s: %w",
			planting.Format(entities.DateLayout), earliest.Format(entities.DateLayout), apperr.ErrInvalidPlantingDate)
	}
	days, err := nominalDays(p)
	if err != nil {
		return nil, time.Time{}, err
	}
	out := make([]entities.StageWindow, 0, len(days))
	cur := planting
	for i, d := range days {
		end := cur.AddDate(0, 0, d-1)
		out = append(out, entities.StageWindow{
			Stage:     p.GrowthStages[i].Name,
			StartDate: cur,
			EndDate:   end,
			Days:      d,
		})
		cur = end.AddDate(0, 0, 1)
	}
	return out, HarvestDate(out), nil
}

// HarvestDate is the end of the last stage.
func HarvestDate(tl []entities.StageWindow) time.Time {
	if len(tl) == 0 {
		return time.Time{}
	}
	return tl[len(tl)-1].EndDate
}

// Span is the number of days between the first stage start and harvest.
func Span(tl []entities.StageWindow) int {
	if len(tl) == 0 {
		return 0
	}
	return entities.DaysBetween(tl[0].StartDate, HarvestDate(tl))
}

// StageAt returns the index of the stage whose window holds asOf. Before
// planting it is 0, after harvest the final stage.
func StageAt(tl []entities.StageWindow, asOf time.Time) int {
	if len(tl) == 0 {
		return -1
	}
	d := entities.Day(asOf)
	for i, w := range tl {
		if w.Contains(d) {
			return i
		}
	}
	if d.Before(tl[0].StartDate) {
		return 0
	}
	last := 0
	for i, w := range tl {
		if !w.Bypassed && !w.StartDate.After(d) {
			last = i
		}
	}
	return last
}

// Reanchor moves the stages that have not yet elapsed so that the observed
// stage is the one in progress at asOf. Stages that finished before the
// earlier of the observed and the expected stage keep their windows.
//
// Running ahead truncates the expected stage to end the day before asOf and
// marks any stage skipped over as bypassed. Running behind stretches the
// observed stage to cover asOf. Later stages keep their lengths.
func Reanchor(p *entities.CropProfile, tl []entities.StageWindow, observed int, asOf time.Time) ([]entities.StageWindow, time.Time, error) {
	if len(tl) == 0 || observed < 0 || observed >= len(tl) {
		return nil, time.Time{}, fmt.Errorf("observed stage %d out of range: %w", observed, apperr.ErrInvalidObservation)
	}
	nominal, err := nominalDays(p)
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(nominal) != len(tl) {
		return nil, time.Time{}, fmt.Errorf("timeline has %d stages, profile %d: %w", len(tl), len(nominal), apperr.ErrInvalidProfile)
	}
	day := entities.Day(asOf)
	expected := StageAt(tl, day)
	out := make([]entities.StageWindow, len(tl))
	copy(out, tl)

	length := func(i int) int {
		if out[i].Bypassed || out[i].Days <= 0 {
			return nominal[i]
		}
		return out[i].Days
	}

	var cur time.Time
	switch {
	case observed > expected:
		prevEnd := day.AddDate(0, 0, -1)
		for i := expected; i < observed; i++ {
			w := out[i]
			if i == expected && !w.Bypassed && !w.StartDate.After(prevEnd) {
				w.EndDate = prevEnd
				w.Days = entities.DaysBetween(w.StartDate, prevEnd) + 1
			} else {
				w = entities.StageWindow{Stage: w.Stage, StartDate: day, EndDate: day, Bypassed: true}
			}
			out[i] = w
		}
		d := length(observed)
		out[observed] = entities.StageWindow{Stage: out[observed].Stage, StartDate: day, EndDate: day.AddDate(0, 0, d-1), Days: d}
		cur = out[observed].EndDate.AddDate(0, 0, 1)
	case observed < expected:
		w := out[observed]
		if w.Bypassed {
			w.Bypassed = false
			w.StartDate = tl[0].StartDate
			for i := observed - 1; i >= 0; i-- {
				if !out[i].Bypassed {
					w.StartDate = out[i].EndDate.AddDate(0, 0, 1)
					break
				}
			}
		}
		end := w.StartDate.AddDate(0, 0, length(observed)-1)
		if end.Before(day) {
			end = day
		}
		w.EndDate = end
		w.Days = entities.DaysBetween(w.StartDate, end) + 1
		out[observed] = w
		cur = end.AddDate(0, 0, 1)
	default:
		return out, HarvestDate(out), nil
	}

	for i := observed + 1; i < len(out); i++ {
		d := length(i)
		out[i] = entities.StageWindow{Stage: out[i].Stage, StartDate: cur, EndDate: cur.AddDate(0, 0, d-1), Days: d}
		cur = out[i].EndDate.AddDate(0, 0, 1)
	}
	return out, HarvestDate(out), nil
}
