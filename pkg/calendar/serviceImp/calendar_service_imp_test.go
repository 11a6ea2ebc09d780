package serviceImp

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcal/database"
	"cropcal/entities"
	"cropcal/pkg/apperr"
	calrepoimp "cropcal/pkg/calendar/repositoryImp"
	"cropcal/pkg/calendar/service"
	farmrepoimp "cropcal/pkg/field/repositoryImp"
	obsrepoimp "cropcal/pkg/measure/repositoryImp"
	profilerepoimp "cropcal/pkg/profile/repositoryImp"
)

func day(s string) time.Time {
	t, err := time.Parse(entities.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// assertDay compares calendar dates; rows read back from sqlite may carry a
// different *time.Location than time.UTC.
func assertDay(t *testing.T, want string, got time.Time) {
	t.Helper()
	assert.Equal(t, want, got.UTC().Format(entities.DateLayout))
}

func f64(v float64) *float64 { return &v }
func tp(s string) *time.Time  { d := day(s); return &d }
func intp(v int) *int         { return &v }

func rice() *entities.CropProfile {
	return &entities.CropProfile{
		CropID:            "rice",
		Version:           1,
		Name:              "Jasmine rice",
		GrowingPeriodDays: 120,
		ReferenceAreaHa:   1,
		Currency:          "THB",
		GrowthStages: []entities.GrowthStage{
			{Name: "vegetative", RelativeDurationFraction: 1.0 / 3, Sensitivity: 0.3},
			{Name: "reproductive", RelativeDurationFraction: 1.0 / 3, Sensitivity: 1},
			{Name: "ripening", RelativeDurationFraction: 1.0 / 3, Sensitivity: 0.4},
		},
		FertilizationSchedule: []entities.TemplateEntry{
			{Stage: "vegetative", StageOffsetDays: 10, Action: "basal", Product: "16-20-0", RatePerRefArea: 150, Unit: "kg", UnitPrice: entities.PriceRange{Min: 18, Max: 22}},
		},
		IrrigationSchedule: []entities.TemplateEntry{
			{DayOffset: intp(40), Action: "flood", RatePerRefArea: 500, Unit: "m3", UnitPrice: entities.PriceRange{Min: 1, Max: 2}},
		},
		PestManagementSchedule: []entities.TemplateEntry{
			{Stage: "reproductive", StageOffsetDays: 3, Action: "scout"},
		},
		Temperature: entities.Range{Min: 20, Max: 35, Optimal: 28},
	}
}

type envStub struct {
	mu   sync.Mutex
	snap *entities.EnvironmentalSnapshot
}

func (e *envStub) Fetch(_ context.Context, _ string, _ time.Time) (*entities.EnvironmentalSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snap == nil {
		return nil, apperr.ErrEnvironmentalDataUnavailable
	}
	return e.snap, nil
}

func (e *envStub) set(s *entities.EnvironmentalSnapshot) {
	e.mu.Lock()
	e.snap = s
	e.mu.Unlock()
}

type fixture struct {
	svc    *calendarSvc
	env    *envStub
	farmID uint
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "calendars.db"))
	require.NoError(t, err)

	profiles := profilerepoimp.New(db)
	_, err = profiles.Publish(rice())
	require.NoError(t, err)

	farms := farmrepoimp.New(db)
	farm := &entities.Farm{UserID: "u1", Name: "north plot", LocationHash: "w4rqnp", TotalFarmSize: 3}
	require.NoError(t, farms.Create(farm))

	env := &envStub{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewCalendarService(calrepoimp.New(db), profiles, farms, obsrepoimp.New(db), env, DefaultOptions(), logger).(*calendarSvc)
	svc.now = func() time.Time { return day("2024-01-01") }
	return &fixture{svc: svc, env: env, farmID: farm.FarmID}
}

func (fx *fixture) create(t *testing.T) *entities.CropCalendar {
	t.Helper()
	cal, err := fx.svc.Create(context.Background(), service.CreateRequest{
		UserID:       "u1",
		FarmID:       fx.farmID,
		CropID:       "rice",
		CropVariety:  "KDML105",
		PlannedArea:  2,
		PlantingDate: day("2024-01-01"),
		AsOf:         day("2024-01-01"),
	})
	require.NoError(t, err)
	return cal
}

func TestCreate_BuildsCalendar(t *testing.T) {
	fx := newFixture(t)
	cal := fx.create(t)

	assert.NotEmpty(t, cal.CalendarID)
	assertDay(t, "2024-04-30", cal.ExpectedHarvestDate)
	require.Len(t, cal.GrowthTimeline, 3)
	assert.Equal(t, day("2024-02-10"), cal.GrowthTimeline[1].StartDate)
	assert.Equal(t, entities.CalendarActive, cal.CalendarStatus)
	assert.Equal(t, "vegetative", cal.CurrentGrowthStage)
	assert.Equal(t, 1, cal.Revision)
	assert.NotEmpty(t, cal.IrrigationSchedule)
	assert.NotEmpty(t, cal.ActivityCalendar)
	assert.Greater(t, cal.CostEstimation.Max, 0.0)

	// no snapshot: degraded but scored
	assert.False(t, cal.GenerationConditions.WeatherFresh)
	assert.InDelta(t, 0.4, cal.RiskAssessment.ConfidenceLevel, 1e-9)
	assert.NotEmpty(t, cal.AIRecommendations)

	logs, err := fx.svc.RecalcLogs(context.Background(), cal.CalendarID, "u1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "create", logs[0].Trigger)

	got, err := fx.svc.Get(context.Background(), cal.CalendarID, "u1")
	require.NoError(t, err)
	assert.Equal(t, cal.Fingerprint(), got.Fingerprint())
}

func TestCreate_Errors(t *testing.T) {
	fx := newFixture(t)
	base := service.CreateRequest{UserID: "u1", FarmID: fx.farmID, CropID: "rice", PlannedArea: 1, PlantingDate: day("2024-01-01"), AsOf: day("2024-01-01")}

	tests := []struct {
		name   string
		mutate func(r *service.CreateRequest)
		want   error
	}{
		{"unknown crop", func(r *service.CreateRequest) { r.CropID = "cassava" }, apperr.ErrNotFound},
		{"someone else's farm", func(r *service.CreateRequest) { r.UserID = "u2" }, apperr.ErrNotFound},
		{"planting too far back", func(r *service.CreateRequest) { r.PlantingDate = day("2023-12-01") }, apperr.ErrInvalidPlantingDate},
		{"as_of cannot move the grace window", func(r *service.CreateRequest) {
			r.PlantingDate, r.AsOf = day("2022-03-01"), day("2022-03-01")
		}, apperr.ErrInvalidPlantingDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			_, err := fx.svc.Create(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTick_SecondIdenticalRunPersistsNothing(t *testing.T) {
	fx := newFixture(t)
	cal := fx.create(t)
	ctx := context.Background()

	first, err := fx.svc.Tick(ctx, cal.CalendarID, day("2024-01-10"))
	require.NoError(t, err)
	assert.Equal(t, 2, first.Revision)
	assert.Equal(t, 7.5, first.ProgressPercentage)

	second, err := fx.svc.Tick(ctx, cal.CalendarID, day("2024-01-10"))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Revision)
	assert.Equal(t, first.Fingerprint(), second.Fingerprint())

	logs, err := fx.svc.RecalcLogs(ctx, cal.CalendarID, "u1")
	require.NoError(t, err)
	assert.Len(t, logs, 1, "light refreshes are not logged")
}

func TestTick_ProgressNeverDecreases(t *testing.T) {
	fx := newFixture(t)
	cal := fx.create(t)
	ctx := context.Background()

	later, err := fx.svc.Tick(ctx, cal.CalendarID, day("2024-01-31"))
	require.NoError(t, err)
	earlier, err := fx.svc.Tick(ctx, cal.CalendarID, day("2024-01-15"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, earlier.ProgressPercentage, later.ProgressPercentage)
}

func TestTick_ConcurrentTicksCoalesce(t *testing.T) {
	fx := newFixture(t)
	cal := fx.create(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.svc.Tick(context.Background(), cal.CalendarID, day("2024-01-10"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := fx.svc.Get(context.Background(), cal.CalendarID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Revision)
}

func TestReportObservation_TwoStagesAhead(t *testing.T) {
	fx := newFixture(t)
	cal := fx.create(t)
	ctx := context.Background()

	got, err := fx.svc.ReportObservation(ctx, cal.CalendarID, "u1", service.ObservationRequest{
		Date:          day("2024-01-11"),
		ObservedStage: "ripening",
	})
	require.NoError(t, err)

	tl := got.GrowthTimeline
	assert.Equal(t, cal.GrowthTimeline[0].StartDate, tl[0].StartDate, "elapsed stage keeps its start")
	assert.Equal(t, day("2024-01-10"), tl[0].EndDate)
	assert.True(t, tl[1].Bypassed)
	assert.Equal(t, day("2024-01-11"), tl[2].StartDate)
	assertDay(t, "2024-02-20", got.ExpectedHarvestDate)
	assert.Equal(t, "ripening", got.CurrentGrowthStage)
	assert.Equal(t, 20.0, got.ProgressPercentage)

	gc := got.GenerationConditions
	assert.Equal(t, "ripening", gc.ObservedStage)
	assert.Equal(t, "observation", gc.Trigger)
	assert.Equal(t, day("2024-01-11"), gc.CapturedAt)

	logs, err := fx.svc.RecalcLogs(ctx, cal.CalendarID, "u1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assertDay(t, "2024-04-30", logs[1].PreviousHarvestDate)
	assertDay(t, "2024-02-20", logs[1].NewHarvestDate)
	require.NotEmpty(t, logs[1].Reasons)
	assert.Contains(t, logs[1].Reasons[0], "2 stage(s) ahead")

	// the observation is consumed; the same tick again changes nothing
	again, err := fx.svc.Tick(ctx, cal.CalendarID, day("2024-01-11"))
	require.NoError(t, err)
	assert.Equal(t, got.Revision, again.Revision)
}

func TestTick_FreshDataAfterDegradedGeneration(t *testing.T) {
	fx := newFixture(t)
	cal := fx.create(t)
	ctx := context.Background()

	fx.env.set(&entities.EnvironmentalSnapshot{
		LocationHash: "w4rqnp",
		FetchedAt:    day("2024-01-10"),
		ExpiresAt:    day("2024-01-12"),
		Weather:      &entities.WeatherData{TemperatureC: f64(29)},
	})
	got, err := fx.svc.Tick(ctx, cal.CalendarID, day("2024-01-10"))
	require.NoError(t, err)
	assert.True(t, got.GenerationConditions.WeatherFresh)
	assert.Equal(t, 29.0, *got.GenerationConditions.TemperatureC)
	assert.Equal(t, "tick", got.GenerationConditions.Trigger)
	assertDay(t, "2024-04-30", got.ExpectedHarvestDate)

	logs, err := fx.svc.RecalcLogs(ctx, cal.CalendarID, "u1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Contains(t, logs[1].Reasons, "fresh weather data available after degraded generation")

	again, err := fx.svc.Tick(ctx, cal.CalendarID, day("2024-01-10"))
	require.NoError(t, err)
	assert.Equal(t, got.Revision, again.Revision)
}

func TestTick_LateForecastSkipsIrrigation(t *testing.T) {
	fx := newFixture(t)
	fx.env.set(&entities.EnvironmentalSnapshot{
		LocationHash: "w4rqnp",
		FetchedAt:    day("2024-01-01"),
		ExpiresAt:    day("2024-01-03"),
		Weather:      &entities.WeatherData{TemperatureC: f64(29)},
	})
	cal := fx.create(t)
	ctx := context.Background()
	require.True(t, cal.GenerationConditions.WeatherFresh)
	require.Len(t, cal.IrrigationSchedule, 1)
	irr := cal.IrrigationSchedule[0]
	assertDay(t, "2024-02-10", irr.Date)
	require.Equal(t, entities.StatusPending, irr.Status)

	rain := func(at string, mm float64) *entities.EnvironmentalSnapshot {
		fetched := day(at)
		return &entities.EnvironmentalSnapshot{
			LocationHash: "w4rqnp",
			FetchedAt:    fetched,
			ExpiresAt:    fetched.AddDate(0, 0, 2),
			Weather: &entities.WeatherData{
				TemperatureC: f64(29),
				Forecast:     []entities.DailyForecast{{Date: day("2024-02-10"), PrecipitationMM: mm}},
			},
		}
	}

	fx.env.set(rain("2024-02-08", 25))
	got, err := fx.svc.Tick(ctx, cal.CalendarID, day("2024-02-08"))
	require.NoError(t, err)
	ev, ok := got.Schedule().Find(irr.ID)
	require.True(t, ok)
	assert.Equal(t, entities.StatusSkipped, ev.Status)
	assert.Equal(t, entities.ReasonForecastPrecipitation, ev.Reason)
	assert.Equal(t, entities.StatusSkipped, got.IrrigationSchedule[0].Status)
	assert.Less(t, got.CostEstimation.Max, cal.CostEstimation.Max, "skipped irrigation drops out of the cost")
	assert.Equal(t, "create", got.GenerationConditions.Trigger, "a forecast alone is not a full recalculation")

	logs, err := fx.svc.RecalcLogs(ctx, cal.CalendarID, "u1")
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	again, err := fx.svc.Tick(ctx, cal.CalendarID, day("2024-02-08"))
	require.NoError(t, err)
	assert.Equal(t, got.Revision, again.Revision)

	t.Run("forecast withdrawn restores the event", func(t *testing.T) {
		fx.env.set(rain("2024-02-09", 2))
		got, err := fx.svc.Tick(ctx, cal.CalendarID, day("2024-02-09"))
		require.NoError(t, err)
		ev, ok := got.Schedule().Find(irr.ID)
		require.True(t, ok)
		assert.Equal(t, entities.StatusPending, ev.Status)
		assert.Empty(t, ev.Reason)
	})
}

func TestCreate_AsOfOnlyMovesEvaluation(t *testing.T) {
	fx := newFixture(t)
	cal, err := fx.svc.Create(context.Background(), service.CreateRequest{
		UserID:       "u1",
		FarmID:       fx.farmID,
		CropID:       "rice",
		PlannedArea:  1,
		PlantingDate: day("2024-01-01"),
		AsOf:         day("2024-02-15"),
	})
	require.NoError(t, err)
	assert.Equal(t, "reproductive", cal.CurrentGrowthStage)
	assert.Equal(t, entities.CalendarActive, cal.CalendarStatus)
}

func TestReportObservation_HarvestClosesCalendar(t *testing.T) {
	fx := newFixture(t)
	cal := fx.create(t)
	ctx := context.Background()

	got, err := fx.svc.ReportObservation(ctx, cal.CalendarID, "u1", service.ObservationRequest{
		Date:              day("2024-04-28"),
		ActualHarvestDate: tp("2024-04-28"),
		ActualYield:       f64(4.2),
	})
	require.NoError(t, err)
	assert.Equal(t, entities.CalendarCompleted, got.CalendarStatus)
	assert.Equal(t, 100.0, got.ProgressPercentage)
	require.NotNil(t, got.ActualYield)
	assert.Equal(t, 4.2, *got.ActualYield)

	later, err := fx.svc.Tick(ctx, cal.CalendarID, day("2024-05-10"))
	require.NoError(t, err)
	assert.Equal(t, got.Revision, later.Revision)
	assert.Equal(t, got.GrowthTimeline, later.GrowthTimeline)

	_, err = fx.svc.ReportObservation(ctx, cal.CalendarID, "u1", service.ObservationRequest{Date: day("2024-05-10"), Note: "late"})
	assert.ErrorIs(t, err, apperr.ErrCalendarClosed)
}

func TestReportObservation_ReplantResetsProgress(t *testing.T) {
	fx := newFixture(t)
	cal := fx.create(t)
	ctx := context.Background()

	grown, err := fx.svc.Tick(ctx, cal.CalendarID, day("2024-02-01"))
	require.NoError(t, err)
	require.Greater(t, grown.ProgressPercentage, 20.0)

	got, err := fx.svc.ReportObservation(ctx, cal.CalendarID, "u1", service.ObservationRequest{
		Date:        day("2024-02-03"),
		ReplantDate: tp("2024-02-03"),
	})
	require.NoError(t, err)
	assertDay(t, "2024-02-03", got.PlantingDate)
	assertDay(t, "2024-06-02", got.ExpectedHarvestDate)
	assert.Equal(t, 0.0, got.ProgressPercentage)
	assert.Equal(t, "vegetative", got.CurrentGrowthStage)
	assert.Equal(t, "replant", got.GenerationConditions.Trigger)
}

func TestAbandon(t *testing.T) {
	fx := newFixture(t)
	cal := fx.create(t)
	ctx := context.Background()

	_, err := fx.svc.Abandon(ctx, cal.CalendarID, "u2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := fx.svc.Abandon(ctx, cal.CalendarID, "u1")
	require.NoError(t, err)
	assert.Equal(t, entities.CalendarAbandoned, got.CalendarStatus)

	_, err = fx.svc.Abandon(ctx, cal.CalendarID, "u1")
	assert.ErrorIs(t, err, apperr.ErrCalendarClosed)

	ticked, err := fx.svc.Tick(ctx, cal.CalendarID, day("2024-02-01"))
	require.NoError(t, err)
	assert.Equal(t, got.Revision, ticked.Revision)
}

func TestTickAll(t *testing.T) {
	fx := newFixture(t)
	for i := 0; i < 3; i++ {
		fx.create(t)
	}
	closed := fx.create(t)
	_, err := fx.svc.Abandon(context.Background(), closed.CalendarID, "u1")
	require.NoError(t, err)

	sum, err := fx.svc.TickAll(context.Background(), day("2024-01-20"))
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Visited)
	assert.Equal(t, 0, sum.Failed)

	n, err := fx.svc.RefreshLocation(context.Background(), "w4rqnp", day("2024-01-21"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = fx.svc.RefreshLocation(context.Background(), "u4pruy", day("2024-01-21"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestValidateObservation(t *testing.T) {
	p := rice()
	cal := &entities.CropCalendar{CalendarID: "c1", PlantingDate: day("2024-01-01")}
	date := day("2024-02-01")

	tests := []struct {
		name string
		req  service.ObservationRequest
		want error
	}{
		{"empty", service.ObservationRequest{}, apperr.ErrInvalidObservation},
		{"unknown stage", service.ObservationRequest{ObservedStage: "tillering"}, apperr.ErrInvalidObservation},
		{"ndvi out of range", service.ObservationRequest{NDVI: f64(1.4)}, apperr.ErrInvalidObservation},
		{"yield without harvest", service.ObservationRequest{ActualYield: f64(3)}, apperr.ErrInvalidObservation},
		{"harvest before planting", service.ObservationRequest{ActualHarvestDate: tp("2023-12-01")}, apperr.ErrInvalidObservation},
		{"replant too far back", service.ObservationRequest{ReplantDate: tp("2024-01-10")}, apperr.ErrInvalidPlantingDate},
		{"stage ok", service.ObservationRequest{ObservedStage: "reproductive"}, nil},
		{"note only", service.ObservationRequest{Note: "leaf blast spotted"}, nil},
		{"replant within grace", service.ObservationRequest{ReplantDate: tp("2024-01-28")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateObservation(tt.req, cal, p, date, 7)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFold(t *testing.T) {
	obs := []entities.Observation{
		{ObservationID: 5, Date: day("2024-02-05"), NDVI: f64(0.61)},
		{ObservationID: 4, Date: day("2024-02-04"), ObservedStage: "reproductive"},
		{ObservationID: 3, Date: day("2024-02-01"), ReplantDate: tp("2024-02-01")},
		{ObservationID: 2, Date: day("2024-01-20"), ObservedStage: "ripening"},
	}

	f := fold(obs, 2, day("2024-02-06"), 7)
	assert.Equal(t, uint(5), f.cursor)
	require.NotNil(t, f.stage)
	assert.Equal(t, "reproductive", f.stage.ObservedStage, "reported after the replant")
	require.NotNil(t, f.replant)
	require.NotNil(t, f.ndvi)
	assert.Equal(t, 0.61, *f.ndvi)

	consumed := fold(obs, 5, day("2024-02-20"), 7)
	assert.Nil(t, consumed.stage)
	assert.Nil(t, consumed.replant)
	assert.Nil(t, consumed.ndvi, "reported NDVI expired")
}
