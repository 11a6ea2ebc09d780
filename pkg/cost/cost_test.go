package cost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcal/entities"
)

func sample() entities.Schedule {
	d := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	urea := entities.Action{Name: "topdress", Product: "urea", RatePerRefArea: 50, Unit: "kg", UnitPrice: entities.PriceRange{Min: 15, Max: 17}}
	water := entities.Action{Name: "flood", RatePerRefArea: 400, Unit: "m3", UnitPrice: entities.PriceRange{Min: 1, Max: 2}}
	spray := entities.Action{Name: "spray", Product: "abamectin", RatePerRefArea: 0.5, Unit: "l", UnitPrice: entities.PriceRange{Min: 300, Max: 360}}
	return entities.Schedule{
		Fertilization: []entities.ScheduleEvent{{Kind: entities.KindFertilization, Date: d, Status: entities.StatusPending, Actions: []entities.Action{urea}}},
		Irrigation: []entities.ScheduleEvent{
			{Kind: entities.KindIrrigation, Date: d, Status: entities.StatusDone, Actions: []entities.Action{water}},
			{Kind: entities.KindIrrigation, Date: d.AddDate(0, 0, 7), Status: entities.StatusSkipped, Reason: entities.ReasonForecastPrecipitation, Actions: []entities.Action{water}},
		},
		PestManagement: []entities.ScheduleEvent{{Kind: entities.KindPestManagement, Date: d, Status: entities.StatusPending, Actions: []entities.Action{spray}}},
	}
}

func TestEstimate(t *testing.T) {
	c := Estimate(sample(), 2, 1, "THB")

	assert.Equal(t, "THB", c.Currency)
	require.Len(t, c.Breakdown, 3)
	assert.InDelta(t, 1500, c.Breakdown[0].Min, 1e-9)
	assert.InDelta(t, 1700, c.Breakdown[0].Max, 1e-9)
	assert.Equal(t, 1, c.Breakdown[1].Events, "skipped irrigation excluded")
	assert.InDelta(t, 800, c.Breakdown[1].Min, 1e-9)
	assert.InDelta(t, 300, c.Breakdown[2].Min, 1e-9)
	assert.InDelta(t, 2600, c.Min, 1e-9)
	assert.InDelta(t, 1700+1600+360, c.Max, 1e-9)
}

func TestEstimate_LinearInArea(t *testing.T) {
	for _, area := range []float64{0.5, 1, 3.7, 12} {
		one := Estimate(sample(), area, 1.6, "THB")
		two := Estimate(sample(), 2*area, 1.6, "THB")
		assert.InDelta(t, 2*one.Min, two.Min, 1e-6)
		assert.InDelta(t, 2*one.Max, two.Max, 1e-6)
		for i := range one.Breakdown {
			assert.InDelta(t, 2*one.Breakdown[i].Min, two.Breakdown[i].Min, 1e-6)
		}
	}
}

func TestEstimate_Empty(t *testing.T) {
	c := Estimate(entities.Schedule{}, 5, 1, "USD")
	assert.Zero(t, c.Min)
	assert.Zero(t, c.Max)
	assert.Len(t, c.Breakdown, 3)
}
