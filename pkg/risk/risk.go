// Package risk scores a calendar against crop tolerances, vegetation health
// and pest workload. It always returns an assessment; missing or stale data
// only lowers the confidence.
package risk

import (
	"fmt"
	"math"
	"sort"
	"time"

	"cropcal/entities"
	"cropcal/pkg/timeline"
)

const (
	FactorTemperature        = "temperature_out_of_range"
	FactorTemperatureOptimum = "temperature_off_optimum"
	FactorMoisture           = "soil_moisture_out_of_range"
	FactorMoistureOptimum    = "soil_moisture_off_optimum"
	FactorPH                 = "soil_ph_out_of_range"
	FactorPHOptimum          = "soil_ph_off_optimum"
	FactorNDVI               = "ndvi_below_expected"
	FactorPest               = "pest_management_backlog"

	NoteStaleWeather     = "stale_weather_data"
	NoteMissingWeather   = "missing_weather_data"
	NoteStaleSatellite   = "stale_satellite_data"
	NoteMissingSatellite = "missing_satellite_data"
)

type Policy struct {
	HealthyMin        float64
	MediumMin         float64
	PestLookaheadDays int
}

func DefaultPolicy() Policy {
	return Policy{HealthyMin: 80, MediumMin: 60, PestLookaheadDays: 14}
}

// Input is read-only; Assess never mutates it.
type Input struct {
	Profile  *entities.CropProfile
	Timeline []entities.StageWindow
	Schedule entities.Schedule
	Farm     *entities.Farm
	Snapshot *entities.EnvironmentalSnapshot
	// ReportedNDVI is a field observation used when no fresh satellite NDVI exists.
	ReportedNDVI *float64
	AsOf         time.Time
	Policy       Policy
}

const (
	confidencePenalty = 0.3
	minConfidence     = 0.1
	ndviSlack         = 0.05
	ndviCap           = 30
	pestCap           = 20
)

func Assess(in Input) entities.RiskAssessment {
	asOf := entities.Day(in.AsOf)
	cur := timeline.StageAt(in.Timeline, asOf)
	peak := in.Profile.PeakStage()
	n := len(in.Profile.GrowthStages)
	dist := math.Abs(float64(cur - peak))
	sensitivity := 0.5 + 0.5/(1+dist)

	stage := ""
	if cur >= 0 && cur < len(in.Timeline) {
		stage = in.Timeline[cur].Stage
	}
	temp, moisture, ph := in.Profile.StageTolerances(cur)

	var factors, notes []entities.RiskFactor
	confidence := 1.0

	weather := in.Snapshot.FreshWeather(asOf)
	switch {
	case weather != nil:
		if weather.TemperatureC != nil {
			factors = appendTolerance(factors, FactorTemperature, FactorTemperatureOptimum, "temperature", "C", *weather.TemperatureC, temp, sensitivity, stage)
		}
	case in.Snapshot != nil && in.Snapshot.Weather != nil:
		confidence -= confidencePenalty
		notes = append(notes, entities.RiskFactor{Code: NoteStaleWeather, Detail: "weather data expired; temperature tolerance not evaluated"})
	default:
		confidence -= confidencePenalty
		notes = append(notes, entities.RiskFactor{Code: NoteMissingWeather, Detail: "no weather data; temperature tolerance not evaluated"})
	}

	ndvi := in.ReportedNDVI
	satellite := in.Snapshot.FreshSatellite(asOf)
	switch {
	case satellite != nil:
		if satellite.SoilMoisturePct != nil {
			factors = appendTolerance(factors, FactorMoisture, FactorMoistureOptimum, "soil moisture", "%", *satellite.SoilMoisturePct, moisture, sensitivity, stage)
		}
		if satellite.NDVI != nil {
			ndvi = satellite.NDVI
		}
	case in.Snapshot != nil && in.Snapshot.Satellite != nil:
		confidence -= confidencePenalty
		notes = append(notes, entities.RiskFactor{Code: NoteStaleSatellite, Detail: "satellite data expired; soil moisture and NDVI fall back to template defaults"})
	default:
		confidence -= confidencePenalty
		notes = append(notes, entities.RiskFactor{Code: NoteMissingSatellite, Detail: "no satellite data; soil moisture and NDVI fall back to template defaults"})
	}

	if in.Farm != nil && in.Farm.SoilPH != nil {
		factors = appendTolerance(factors, FactorPH, FactorPHOptimum, "soil pH", "", *in.Farm.SoilPH, ph, sensitivity, stage)
	}

	if ndvi != nil && cur >= 0 {
		expected := expectedNDVI(in.Profile, cur, peak, n)
		if deficit := expected - *ndvi; deficit > ndviSlack {
			factors = append(factors, entities.RiskFactor{
				Code:     FactorNDVI,
				Weight:   round(math.Min(ndviCap, deficit*100), 2),
				Detail:   fmt.Sprintf("NDVI %.2f is %.2f below the %.2f expected during %s", *ndvi, deficit, expected, stage),
				Observed: ptr(*ndvi),
				Expected: ptr(expected),
			})
		}
	}

	if f, ok := pestFactor(in.Schedule.PestManagement, asOf, in.Policy.PestLookaheadDays); ok {
		factors = append(factors, f)
	}

	sort.SliceStable(factors, func(i, j int) bool {
		if factors[i].Weight != factors[j].Weight {
			return factors[i].Weight > factors[j].Weight
		}
		return factors[i].Code < factors[j].Code
	})

	total := 0.0
	for _, f := range factors {
		total += f.Weight
	}
	score := round(clamp(100-total, 0, 100), 1)
	return entities.RiskAssessment{
		Score:           score,
		Level:           level(score, in.Policy),
		ConfidenceLevel: round(math.Max(minConfidence, confidence), 2),
		Stage:           stage,
		Factors:         append(factors, notes...),
		AssessedAt:      asOf,
	}
}

func level(score float64, p Policy) entities.RiskLevel {
	switch {
	case score >= p.HealthyMin:
		return entities.RiskLow
	case score >= p.MediumMin:
		return entities.RiskMedium
	}
	return entities.RiskHigh
}

// appendTolerance penalises a reading outside its band heavily and a reading
// inside the band lightly, scaled by stage sensitivity.
func appendTolerance(fs []entities.RiskFactor, outCode, optCode, label, unit string, v float64, r entities.Range, sensitivity float64, stage string) []entities.RiskFactor {
	if r.IsZero() || r.Max <= r.Min {
		return fs
	}
	width := r.Max - r.Min
	opt := r.Optimal
	if opt < r.Min || opt > r.Max {
		opt = (r.Min + r.Max) / 2
	}
	switch {
	case v < r.Min || v > r.Max:
		d := r.Min - v
		if v > r.Max {
			d = v - r.Max
		}
		w := (20 + 20*math.Min(1, d/width)) * sensitivity
		return append(fs, entities.RiskFactor{
			Code:     outCode,
			Weight:   round(w, 2),
			Detail:   fmt.Sprintf("%s %.1f%s outside %.1f-%.1f%s during %s", label, v, unit, r.Min, r.Max, unit, stage),
			Observed: ptr(v),
			Expected: ptr(opt),
		})
	case v != opt:
		bound := r.Max - opt
		if v < opt {
			bound = opt - r.Min
		}
		if bound <= 0 {
			return fs
		}
		w := 5 * math.Abs(v-opt) / bound * sensitivity
		if w < 0.5 {
			return fs
		}
		return append(fs, entities.RiskFactor{
			Code:     optCode,
			Weight:   round(w, 2),
			Detail:   fmt.Sprintf("%s %.1f%s is %.1f%s from the %.1f%s optimum during %s", label, v, unit, math.Abs(v-opt), unit, opt, unit, stage),
			Observed: ptr(v),
			Expected: ptr(opt),
		})
	}
	return fs
}

// expectedNDVI uses the profile's stage value, otherwise a curve peaking at
// the most sensitive stage.
func expectedNDVI(p *entities.CropProfile, cur, peak, n int) float64 {
	if cur < len(p.GrowthStages) && p.GrowthStages[cur].ExpectedNDVI != nil {
		return *p.GrowthStages[cur].ExpectedNDVI
	}
	if n == 0 {
		return 0
	}
	return 0.2 + 0.6*(1-math.Abs(float64(cur-peak))/float64(n))
}

func pestFactor(events []entities.ScheduleEvent, asOf time.Time, lookahead int) (entities.RiskFactor, bool) {
	overdue, upcoming := 0, 0
	horizon := asOf.AddDate(0, 0, lookahead)
	for _, e := range events {
		switch {
		case e.Overdue(asOf):
			overdue++
		case e.Status == entities.StatusPending && !e.Date.After(horizon):
			upcoming++
		}
	}
	dense := upcoming - 2
	if dense < 0 {
		dense = 0
	}
	w := math.Min(pestCap, float64(overdue*8+dense*3))
	if w == 0 {
		return entities.RiskFactor{}, false
	}
	return entities.RiskFactor{
		Code:   FactorPest,
		Weight: w,
		Detail: fmt.Sprintf("%d overdue and %d upcoming pest-management events in the next %d days", overdue, upcoming, lookahead),
	}, true
}

func clamp(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func ptr(v float64) *float64 { return &v }
