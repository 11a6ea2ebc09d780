package service

import (
	"context"
	"time"

	"cropcal/entities"
)

type CreateRequest struct {
	UserID       string
	FarmID       uint
	CropID       string
	CropVariety  string
	PlannedArea  float64
	PlantingDate time.Time
	// AsOf is the evaluation date. The planting grace check always uses the
	// service clock.
	AsOf time.Time
}

// ObservationRequest carries at least one of the optional facts.
type ObservationRequest struct {
	Date              time.Time
	ObservedStage     string
	NDVI              *float64
	ActualHarvestDate *time.Time
	ActualYield       *float64
	ReplantDate       *time.Time
	Note              string
}

type TickSummary struct {
	AsOf    time.Time `json:"as_of"`
	Visited int       `json:"visited"`
	Failed  int       `json:"failed"`
}

type CalendarService interface {
	Create(ctx context.Context, req CreateRequest) (*entities.CropCalendar, error)
	Get(ctx context.Context, id, uid string) (*entities.CropCalendar, error)
	ReportObservation(ctx context.Context, id, uid string, obs ObservationRequest) (*entities.CropCalendar, error)
	Tick(ctx context.Context, id string, asOf time.Time) (*entities.CropCalendar, error)
	TickAll(ctx context.Context, asOf time.Time) (TickSummary, error)
	RefreshLocation(ctx context.Context, locationHash string, asOf time.Time) (int, error)
	Abandon(ctx context.Context, id, uid string) (*entities.CropCalendar, error)
	RecalcLogs(ctx context.Context, id, uid string) ([]entities.RecalcLog, error)
	Owner(id string) (string, error)
}
