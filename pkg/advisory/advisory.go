// Package advisory renders rule-based recommendations from the risk
// assessment and the schedule state. It is a pure formatting layer.
package advisory

import (
	"fmt"
	"strings"
	"time"

	"cropcal/entities"
	"cropcal/pkg/risk"
)

const maxEventLines = 5

type Input struct {
	Risk     entities.RiskAssessment
	Schedule entities.Schedule
	Timeline []entities.StageWindow
	Progress float64
	AsOf     time.Time
	TopN     int
}

// Synthesize emits risk lines first, then overdue and rain-skipped events,
// then data-quality notes and a closing progress line.
func Synthesize(in Input) []entities.Recommendation {
	asOf := entities.Day(in.AsOf)
	out := []entities.Recommendation{}

	n := 0
	var notes []entities.RiskFactor
	for _, f := range in.Risk.Factors {
		if f.Weight == 0 {
			notes = append(notes, f)
			continue
		}
		if in.TopN > 0 && n >= in.TopN {
			continue
		}
		n++
		out = append(out, entities.Recommendation{Code: f.Code, Priority: 1, Message: factorMessage(f, in.Risk.Stage)})
	}

	overdue := 0
	for _, e := range in.Schedule.Activities {
		if e.Kind == entities.KindActivity || !e.Overdue(asOf) || overdue >= maxEventLines {
			continue
		}
		overdue++
		out = append(out, entities.Recommendation{
			Code:     "event_overdue",
			Priority: 2,
			EventID:  e.ID,
			Message: fmt.Sprintf("%s planned for %s (%s) is %d days overdue; complete it or mark it skipped.",
				kindLabel(e.Kind), e.Date.Format(entities.DateLayout), actionNames(e), entities.DaysBetween(e.Date, asOf)),
		})
	}

	skipped := 0
	for _, e := range in.Schedule.Irrigation {
		if e.Reason != entities.ReasonForecastPrecipitation || e.Date.Before(asOf) || skipped >= maxEventLines {
			continue
		}
		skipped++
		out = append(out, entities.Recommendation{
			Code:     "irrigation_skipped_rain",
			Priority: 3,
			EventID:  e.ID,
			Message:  fmt.Sprintf("Irrigation on %s is skipped: %s. The next irrigation stays on its planned date.", e.Date.Format(entities.DateLayout), e.Detail),
		})
	}

	for _, f := range notes {
		out = append(out, entities.Recommendation{Code: f.Code, Priority: 4, Message: noteMessage(f, in.Risk.ConfidenceLevel)})
	}

	if line, ok := progressLine(in.Timeline, in.Risk.Stage, in.Progress, asOf); ok {
		out = append(out, entities.Recommendation{Code: "stage_progress", Priority: 5, Message: line})
	}
	return out
}

func factorMessage(f entities.RiskFactor, stage string) string {
	delta := ""
	if f.Observed != nil && f.Expected != nil {
		delta = fmt.Sprintf(" (observed %.2f, target %.2f)", *f.Observed, *f.Expected)
	}
	switch f.Code {
	case risk.FactorTemperature:
		return fmt.Sprintf("Temperature is outside the tolerated range during %s%s; protect the crop from heat or cold stress.", stage, delta)
	case risk.FactorMoisture:
		return fmt.Sprintf("Soil moisture is outside the tolerated range during %s%s; review the irrigation plan.", stage, delta)
	case risk.FactorPH:
		return fmt.Sprintf("Soil pH is outside the tolerated range%s; consider liming or acidifying amendments.", delta)
	case risk.FactorNDVI:
		return fmt.Sprintf("Vegetation index is below the expected level for %s%s; scout the field for stress, pests or nutrient deficiency.", stage, delta)
	case risk.FactorPest:
		return fmt.Sprintf("Pest-management work is piling up: %s.", f.Detail)
	case risk.FactorTemperatureOptimum, risk.FactorMoistureOptimum, risk.FactorPHOptimum:
		return fmt.Sprintf("Conditions are within tolerance but off the optimum: %s.", f.Detail)
	}
	return f.Detail
}

func noteMessage(f entities.RiskFactor, confidence float64) string {
	return fmt.Sprintf("Assessment confidence is %.0f%%: %s.", confidence*100, f.Detail)
}

func progressLine(tl []entities.StageWindow, stage string, progress float64, asOf time.Time) (string, bool) {
	if stage == "" || len(tl) == 0 {
		return "", false
	}
	for i, w := range tl {
		if w.Stage != stage || w.Bypassed {
			continue
		}
		left := entities.DaysBetween(asOf, w.EndDate)
		if left < 0 {
			left = 0
		}
		next := "harvest"
		for _, n := range tl[i+1:] {
			if !n.Bypassed {
				next = n.Stage
				break
			}
		}
		return fmt.Sprintf("Crop is in %s (%.0f%% of the season); %d days until %s.", stage, progress, left, next), true
	}
	return "", false
}

func kindLabel(k entities.EventKind) string {
	switch k {
	case entities.KindFertilization:
		return "Fertilization"
	case entities.KindIrrigation:
		return "Irrigation"
	case entities.KindPestManagement:
		return "Pest management"
	case entities.KindActivity:
		return "Activity"
	}
	return string(k)
}

func actionNames(e entities.ScheduleEvent) string {
	names := make([]string, 0, len(e.Actions))
	for _, a := range e.Actions {
		if a.Product != "" {
			names = append(names, a.Name+" "+a.Product)
		} else {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}
