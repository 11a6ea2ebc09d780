// Package cost turns a synthesized schedule into a ranged cost estimate.
package cost

import (
	"cropcal/entities"
	"cropcal/pkg/schedule"
)

// Estimate sums rate x area factor x unit price over every action of every
// event that will actually run. Skipped events cost nothing.
func Estimate(s entities.Schedule, plannedArea, referenceArea float64, currency string) entities.CostEstimation {
	factor := schedule.AreaFactor(plannedArea, referenceArea)
	out := entities.CostEstimation{Currency: currency, Breakdown: []entities.CategoryCost{}}
	for _, kind := range []entities.EventKind{entities.KindFertilization, entities.KindIrrigation, entities.KindPestManagement} {
		cat := entities.CategoryCost{Category: kind}
		for _, e := range s.ByKind(kind) {
			if e.Status == entities.StatusSkipped {
				continue
			}
			cat.Events++
			for _, a := range e.Actions {
				q := a.RatePerRefArea * factor
				cat.Min += q * a.UnitPrice.Min
				cat.Max += q * a.UnitPrice.Max
			}
		}
		out.Min += cat.Min
		out.Max += cat.Max
		out.Breakdown = append(out.Breakdown, cat)
	}
	return out
}
