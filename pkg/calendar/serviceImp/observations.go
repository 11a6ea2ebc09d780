package serviceImp

import (
	"time"

	"cropcal/entities"
)

// facts is what the observation log contributes to one pipeline pass.
type facts struct {
	cursor  uint
	stage   *entities.Observation
	harvest *entities.Observation
	replant *entities.Observation
	ndvi    *float64
}

// fold reads the log (newest first) against the cursor left by the previous
// pass. Stage, harvest and replant reports are consumed once. A reported
// NDVI stays in effect for ttlDays.
//
// The runner keeps only the latest queued request, so observations are read
// from the log here instead of being handed to the run that reported them.
func fold(obs []entities.Observation, cursor uint, asOf time.Time, ttlDays int) facts {
	f := facts{cursor: cursor}
	day := entities.Day(asOf)
	for i := range obs {
		o := &obs[i]
		if o.ObservationID > cursor {
			if o.ObservationID > f.cursor {
				f.cursor = o.ObservationID
			}
			if o.ObservedStage != "" && f.stage == nil {
				f.stage = o
			}
			if o.ActualHarvestDate != nil && f.harvest == nil {
				f.harvest = o
			}
			if o.ReplantDate != nil && f.replant == nil {
				f.replant = o
			}
		}
		if o.NDVI != nil && f.ndvi == nil {
			od := entities.Day(o.Date)
			if !od.After(day) && entities.DaysBetween(od, day) <= ttlDays {
				f.ndvi = o.NDVI
			}
		}
	}
	// a replant supersedes stage reports about the previous planting
	if f.replant != nil && f.stage != nil && f.stage.ObservationID < f.replant.ObservationID {
		f.stage = nil
	}
	return f
}
