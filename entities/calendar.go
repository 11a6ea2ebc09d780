package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

type CalendarStatus string

const (
	CalendarPlanned   CalendarStatus = "planned"
	CalendarActive    CalendarStatus = "active"
	CalendarCompleted CalendarStatus = "completed"
	CalendarAbandoned CalendarStatus = "abandoned"
)

// Closed reports a terminal status; ticks on a closed calendar are no-ops.
func (s CalendarStatus) Closed() bool {
	return s == CalendarCompleted || s == CalendarAbandoned
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type RiskFactor struct {
	Code     string   `json:"code"`
	Weight   float64  `json:"weight"`
	Detail   string   `json:"detail"`
	Observed *float64 `json:"observed,omitempty"`
	Expected *float64 `json:"expected,omitempty"`
}

type RiskAssessment struct {
	Score           float64      `json:"score"`
	Level           RiskLevel    `json:"level"`
	ConfidenceLevel float64      `json:"confidence_level"`
	Stage           string       `json:"stage"`
	Factors         []RiskFactor `json:"factors"`
	AssessedAt      time.Time    `json:"assessed_at"`
}

type CategoryCost struct {
	Category EventKind `json:"category"`
	Min      float64   `json:"min"`
	Max      float64   `json:"max"`
	Events   int       `json:"events"`
}

type CostEstimation struct {
	Currency  string         `json:"currency"`
	Min       float64        `json:"min"`
	Max       float64        `json:"max"`
	Breakdown []CategoryCost `json:"breakdown"`
}

type Recommendation struct {
	Code     string `json:"code"`
	Priority int    `json:"priority"`
	Message  string `json:"message"`
	EventID  string `json:"event_id,omitempty"`
}

// GenerationConditions is the environmental state a calendar was last
// (re)generated from. It is replaced wholesale, never edited in place.
type GenerationConditions struct {
	CapturedAt        time.Time  `json:"captured_at"`
	Trigger           string     `json:"trigger"`
	SnapshotFetchedAt *time.Time `json:"snapshot_fetched_at,omitempty"`
	WeatherFresh      bool       `json:"weather_fresh"`
	SatelliteFresh    bool       `json:"satellite_fresh"`
	TemperatureC      *float64   `json:"temperature_c,omitempty"`
	NDVI              *float64   `json:"ndvi,omitempty"`
	SoilMoisturePct   *float64   `json:"soil_moisture_pct,omitempty"`
	ObservedStage     string     `json:"observed_stage,omitempty"`
}

type CropCalendar struct {
	CalendarID          string    `gorm:"primaryKey" json:"calendar_id"`
	UserID              string    `gorm:"index" json:"user_id"`
	FarmID              uint      `gorm:"index" json:"farm_id"`
	CropID              string    `json:"crop_id"`
	ProfileVersion      int       `json:"profile_version"`
	CropVariety         string    `json:"crop_variety"`
	PlannedArea         float64   `json:"planned_area"`
	LocationHash        string    `gorm:"index" json:"location_hash"`
	PlantingDate        time.Time `json:"planting_date"`
	ExpectedHarvestDate time.Time `json:"expected_harvest_date"`
	CurrentGrowthStage  string    `json:"current_growth_stage"`
	ProgressPercentage  float64   `json:"progress_percentage"`

	GrowthTimeline         []StageWindow   `gorm:"serializer:json" json:"growth_timeline"`
	FertilizationSchedule  []ScheduleEvent `gorm:"serializer:json" json:"fertilization_schedule"`
	IrrigationSchedule     []ScheduleEvent `gorm:"serializer:json" json:"irrigation_schedule"`
	PestManagementSchedule []ScheduleEvent `gorm:"serializer:json" json:"pest_management_schedule"`
	ActivityCalendar       []ScheduleEvent `gorm:"serializer:json" json:"activity_calendar"`

	AIRecommendations    []Recommendation     `gorm:"serializer:json" json:"ai_recommendations"`
	RiskAssessment       RiskAssessment       `gorm:"serializer:json" json:"risk_assessment"`
	CostEstimation       CostEstimation       `gorm:"serializer:json" json:"cost_estimation"`
	CalendarStatus       CalendarStatus       `gorm:"index" json:"calendar_status"`
	ActualHarvestDate    *time.Time           `json:"actual_harvest_date,omitempty"`
	ActualYield          *float64             `json:"actual_yield,omitempty"`
	GenerationConditions GenerationConditions `gorm:"serializer:json" json:"generation_conditions"`
	Revision             int                  `json:"revision"`
	ContentHash          string               `json:"-"`
	// ObservationCursor is the last observation folded into the calendar.
	ObservationCursor uint `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Schedule assembles the persisted event lists.
func (c *CropCalendar) Schedule() Schedule {
	return Schedule{
		Fertilization:  c.FertilizationSchedule,
		Irrigation:     c.IrrigationSchedule,
		PestManagement: c.PestManagementSchedule,
		Activities:     c.ActivityCalendar,
	}
}

func (c *CropCalendar) SetSchedule(s Schedule) {
	c.FertilizationSchedule = s.Fertilization
	c.IrrigationSchedule = s.Irrigation
	c.PestManagementSchedule = s.PestManagement
	c.ActivityCalendar = s.Activities
}

// Fingerprint hashes everything a pipeline run can change. Two runs that
// produce the same fingerprint leave the stored row untouched.
func (c *CropCalendar) Fingerprint() string {
	view := struct {
		ExpectedHarvestDate  time.Time
		CurrentGrowthStage   string
		ProgressPercentage   float64
		GrowthTimeline       []StageWindow
		Schedule             Schedule
		AIRecommendations    []Recommendation
		RiskAssessment       RiskAssessment
		CostEstimation       CostEstimation
		CalendarStatus       CalendarStatus
		ActualHarvestDate    *time.Time
		ActualYield          *float64
		GenerationConditions GenerationConditions
		PlantingDate         time.Time
		ObservationCursor    uint
	}{
		c.ExpectedHarvestDate, c.CurrentGrowthStage, c.ProgressPercentage, c.GrowthTimeline,
		c.Schedule(), c.AIRecommendations, c.RiskAssessment, c.CostEstimation, c.CalendarStatus,
		c.ActualHarvestDate, c.ActualYield, c.GenerationConditions, c.PlantingDate, c.ObservationCursor,
	}
	b, _ := json.Marshal(view)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Observation is one externally reported fact about a calendar.
type Observation struct {
	ObservationID     uint       `gorm:"primaryKey" json:"observation_id"`
	CalendarID        string     `gorm:"index" json:"calendar_id"`
	Date              time.Time  `json:"date"`
	ObservedStage     string     `json:"observed_stage,omitempty"`
	NDVI              *float64   `json:"ndvi,omitempty"`
	ActualHarvestDate *time.Time `json:"actual_harvest_date,omitempty"`
	ActualYield       *float64   `json:"actual_yield,omitempty"`
	ReplantDate       *time.Time `json:"replant_date,omitempty"`
	Note              string     `json:"note,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// RecalcLog records one full recalculation.
type RecalcLog struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	CalendarID          string    `gorm:"index" json:"calendar_id"`
	Revision            int       `json:"revision"`
	Trigger             string    `json:"trigger"`
	Reasons             []string  `gorm:"serializer:json" json:"reasons"`
	AsOf                time.Time `json:"as_of"`
	PreviousHarvestDate time.Time `json:"previous_harvest_date"`
	NewHarvestDate      time.Time `json:"new_harvest_date"`
	CreatedAt           time.Time `json:"created_at"`
}
