package entities

import "time"

// Range is a tolerance band with its optimum.
type Range struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Optimal float64 `json:"optimal"`
}

func (r Range) IsZero() bool { return r.Min == 0 && r.Max == 0 && r.Optimal == 0 }

// Tolerances overrides the profile-level ranges for one growth stage.
type Tolerances struct {
	Temperature  *Range `json:"temperature,omitempty"`
	SoilMoisture *Range `json:"soil_moisture,omitempty"`
	SoilPH       *Range `json:"soil_ph,omitempty"`
}

type GrowthStage struct {
	Name                     string     `json:"name"`
	RelativeDurationFraction float64    `json:"relative_duration_fraction"`
	Sensitivity              float64    `json:"sensitivity"` // 0..1, peak = most sensitive stage
	ExpectedNDVI             *float64   `json:"expected_ndvi,omitempty"`
	Tolerances               Tolerances `json:"tolerances"`
}

type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// TemplateEntry is one area-normalized activity of a template schedule.
// It is addressed either by Stage (+StageOffsetDays, optionally repeating
// every EveryDays inside the stage window) or by DayOffset from planting.
type TemplateEntry struct {
	Stage           string     `json:"stage,omitempty"`
	StageOffsetDays int        `json:"stage_offset_days,omitempty"`
	EveryDays       int        `json:"every_days,omitempty"`
	DayOffset       *int       `json:"day_offset,omitempty"`
	Action          string     `json:"action"`
	Product         string     `json:"product,omitempty"`
	RatePerRefArea  float64    `json:"rate_per_ref_area"`
	Unit            string     `json:"unit"`
	UnitPrice       PriceRange `json:"unit_price"`
}

// CropProfile is read-only reference data, immutable once published for a version.
type CropProfile struct {
	CropID                  string          `gorm:"primaryKey" json:"crop_id"`
	Version                 int             `gorm:"primaryKey;autoIncrement:false" json:"version"`
	Name                    string          `json:"name"`
	GrowingPeriodDays       int             `json:"growing_period_days"`
	GrowthStages            []GrowthStage   `gorm:"serializer:json" json:"growth_stages"`
	FertilizationSchedule   []TemplateEntry `gorm:"serializer:json" json:"fertilization_schedule"`
	IrrigationSchedule      []TemplateEntry `gorm:"serializer:json" json:"irrigation_schedule"`
	PestManagementSchedule  []TemplateEntry `gorm:"serializer:json" json:"pest_management_schedule"`
	Temperature             Range           `gorm:"serializer:json" json:"temperature"`
	SoilMoisture            Range           `gorm:"serializer:json" json:"soil_moisture"`
	SoilPH                  Range           `gorm:"serializer:json" json:"soil_ph"`
	ExpectedYieldPerHectare float64         `json:"expected_yield_per_hectare"`
	ReferenceAreaHa         float64         `json:"reference_area_ha"`
	Currency                string          `json:"currency"`

	CreatedAt time.Time `json:"created_at"`
}

// StageIndex returns the position of the named stage, or -1.
func (p *CropProfile) StageIndex(name string) int {
	for i, s := range p.GrowthStages {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// PeakStage is the index of the most sensitive stage. Without sensitivity
// data the middle stage is used.
func (p *CropProfile) PeakStage() int {
	peak, best := -1, 0.0
	for i, s := range p.GrowthStages {
		if s.Sensitivity > best {
			peak, best = i, s.Sensitivity
		}
	}
	if peak < 0 {
		return len(p.GrowthStages) / 2
	}
	return peak
}

// StageTolerances merges stage overrides over the profile ranges.
func (p *CropProfile) StageTolerances(i int) (temp, moisture, ph Range) {
	temp, moisture, ph = p.Temperature, p.SoilMoisture, p.SoilPH
	if i < 0 || i >= len(p.GrowthStages) {
		return
	}
	t := p.GrowthStages[i].Tolerances
	if t.Temperature != nil {
		temp = *t.Temperature
	}
	if t.SoilMoisture != nil {
		moisture = *t.SoilMoisture
	}
	if t.SoilPH != nil {
		ph = *t.SoilPH
	}
	return
}

// Templates returns the three template schedules keyed by event kind.
func (p *CropProfile) Templates() map[EventKind][]TemplateEntry {
	return map[EventKind][]TemplateEntry{
		KindFertilization:  p.FertilizationSchedule,
		KindIrrigation:     p.IrrigationSchedule,
		KindPestManagement: p.PestManagementSchedule,
	}
}
