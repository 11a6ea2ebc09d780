package serviceImp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcal/entities"
	"cropcal/pkg/apperr"
	"cropcal/pkg/cost"
	profilerepo "cropcal/pkg/profile/repository"
	"cropcal/pkg/schedule"
	"cropcal/pkg/schedule/service"
	"cropcal/pkg/timeline"
)

func day(s string) time.Time {
	t, err := time.Parse(entities.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func intp(v int) *int { return &v }

func profile() *entities.CropProfile {
	return &entities.CropProfile{
		CropID:            "bean",
		Version:           1,
		GrowingPeriodDays: 60,
		ReferenceAreaHa:   1,
		Currency:          "USD",
		GrowthStages: []entities.GrowthStage{
			{Name: "vegetative", RelativeDurationFraction: 0.5},
			{Name: "pod_fill", RelativeDurationFraction: 0.5},
		},
		FertilizationSchedule: []entities.TemplateEntry{
			{DayOffset: intp(5), Action: "basal", RatePerRefArea: 100, Unit: "kg", UnitPrice: entities.PriceRange{Min: 1, Max: 2}},
		},
		IrrigationSchedule: []entities.TemplateEntry{
			{DayOffset: intp(10), Action: "flood", RatePerRefArea: 10, Unit: "m3", UnitPrice: entities.PriceRange{Min: 1, Max: 1}},
			{DayOffset: intp(20), Action: "flood", RatePerRefArea: 10, Unit: "m3", UnitPrice: entities.PriceRange{Min: 1, Max: 1}},
		},
	}
}

type memRepo struct {
	cal   entities.CropCalendar
	saves int
	// conflicts makes the next n saves lose the revision race.
	conflicts int
}

func (m *memRepo) Load(id string) (*entities.CropCalendar, error) {
	if id != m.cal.CalendarID {
		return nil, fmt.Errorf("calendar %s: %w", id, apperr.ErrNotFound)
	}
	c := m.cal
	c.SetSchedule(cloneSchedule(m.cal.Schedule()))
	return &c, nil
}

func (m *memRepo) SaveEvents(cal *entities.CropCalendar, prev int) error {
	if m.conflicts > 0 {
		m.conflicts--
		m.cal.Revision++
		return apperr.ErrRecalculationConflict
	}
	if prev != m.cal.Revision {
		return apperr.ErrRecalculationConflict
	}
	m.saves++
	m.cal = *cal
	return nil
}

func cloneSchedule(s entities.Schedule) entities.Schedule {
	cp := func(es []entities.ScheduleEvent) []entities.ScheduleEvent {
		return append([]entities.ScheduleEvent(nil), es...)
	}
	return entities.Schedule{
		Fertilization:  cp(s.Fertilization),
		Irrigation:     cp(s.Irrigation),
		PestManagement: cp(s.PestManagement),
		Activities:     cp(s.Activities),
	}
}

type profiles struct {
	profilerepo.ProfileRepository
	p *entities.CropProfile
}

func (p profiles) FindVersion(string, int) (*entities.CropProfile, error) { return p.p, nil }

type ticker struct{ ids []string }

func (t *ticker) Tick(_ context.Context, id string, _ time.Time) (*entities.CropCalendar, error) {
	t.ids = append(t.ids, id)
	return nil, nil
}

func fixture(t *testing.T) (*schedSvc, *memRepo, *ticker) {
	t.Helper()
	p := profile()
	planting := day("2024-03-01")
	tl, harvest, err := timeline.Build(p, planting, planting, 7)
	require.NoError(t, err)
	cal := entities.CropCalendar{
		CalendarID:          "c1",
		UserID:              "u1",
		CropID:              p.CropID,
		ProfileVersion:      1,
		PlannedArea:         2,
		PlantingDate:        planting,
		ExpectedHarvestDate: harvest,
		GrowthTimeline:      tl,
		CalendarStatus:      entities.CalendarActive,
		Revision:            3,
	}
	cal.SetSchedule(schedule.Synthesize(schedule.Input{
		Profile:      p,
		Timeline:     tl,
		PlantingDate: planting,
		PlannedArea:  2,
		AsOf:         planting,
		Policy:       schedule.DefaultPolicy(),
	}))
	cal.CostEstimation = cost.Estimate(cal.Schedule(), 2, p.ReferenceAreaHa, p.Currency)
	repo := &memRepo{cal: cal}
	tk := &ticker{}
	svc := NewScheduleService(repo, profiles{p: p}, tk, nil).(*schedSvc)
	svc.now = func() time.Time { return day("2024-03-15") }
	return svc, repo, tk
}

func TestList(t *testing.T) {
	svc, _, _ := fixture(t)

	all, err := svc.List("c1", "u1", service.EventFilter{})
	require.NoError(t, err)
	// basal, two floods, two stage starts and harvest
	assert.Len(t, all, 6)

	irr, err := svc.List("c1", "u1", service.EventFilter{Kind: entities.KindIrrigation})
	require.NoError(t, err)
	require.Len(t, irr, 2)
	assert.Equal(t, "2024-03-11", irr[0].Date.Format(entities.DateLayout))

	window, err := svc.List("c1", "u1", service.EventFilter{From: day("2024-03-06"), To: day("2024-03-11")})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, entities.KindFertilization, window[0].Kind)
	assert.Equal(t, entities.KindIrrigation, window[1].Kind)

	_, err = svc.List("c1", "u2", service.EventFilter{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.List("c1", "u1", service.EventFilter{Kind: "harvesting"})
	assert.ErrorIs(t, err, apperr.ErrInvalidEventUpdate)
}

func TestPatch_SkipDropsCost(t *testing.T) {
	svc, repo, tk := fixture(t)
	before := repo.cal.CostEstimation
	irr := repo.cal.IrrigationSchedule[0]

	ev, err := svc.Patch(context.Background(), "c1", irr.ID, "u1", service.EventPatch{Status: entities.StatusSkipped, Note: "canal closed"})
	require.NoError(t, err)
	assert.Equal(t, entities.StatusSkipped, ev.Status)
	assert.Equal(t, entities.ReasonUserSkipped, ev.Reason)
	assert.Equal(t, "canal closed", ev.Detail)

	assert.Equal(t, 4, repo.cal.Revision)
	assert.Equal(t, entities.StatusSkipped, repo.cal.IrrigationSchedule[0].Status)
	merged, ok := repo.cal.Schedule().Find(irr.ID)
	require.True(t, ok)
	assert.Equal(t, entities.StatusSkipped, merged.Status)
	// 10 m3 x 2 ha x 1 per m3
	assert.InDelta(t, before.Max-20, repo.cal.CostEstimation.Max, 1e-9)
	assert.Equal(t, repo.cal.Fingerprint(), repo.cal.ContentHash)
	assert.Equal(t, []string{"c1"}, tk.ids)

	t.Run("same status again is a no-op", func(t *testing.T) {
		_, err := svc.Patch(context.Background(), "c1", irr.ID, "u1", service.EventPatch{Status: entities.StatusSkipped})
		require.NoError(t, err)
		assert.Equal(t, 1, repo.saves)
		assert.Len(t, tk.ids, 1)
	})
}

func TestPatch_RetriesOnConflict(t *testing.T) {
	svc, repo, _ := fixture(t)
	repo.conflicts = 1
	id := repo.cal.FertilizationSchedule[0].ID

	ev, err := svc.Patch(context.Background(), "c1", id, "u1", service.EventPatch{Status: entities.StatusDone})
	require.NoError(t, err)
	assert.Equal(t, entities.StatusDone, ev.Status)
	assert.Equal(t, 5, repo.cal.Revision)
}

func TestPatch_Errors(t *testing.T) {
	svc, repo, _ := fixture(t)
	id := repo.cal.FertilizationSchedule[0].ID

	tests := []struct {
		name    string
		calID   string
		eventID string
		uid     string
		status  entities.EventStatus
		want    error
	}{
		{"bad status", "c1", id, "u1", "cancelled", apperr.ErrInvalidEventUpdate},
		{"unknown event", "c1", "nope", "u1", entities.StatusDone, apperr.ErrNotFound},
		{"other owner", "c1", id, "u2", entities.StatusDone, apperr.ErrNotFound},
		{"unknown calendar", "c9", id, "u1", entities.StatusDone, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Patch(context.Background(), tt.calID, tt.eventID, tt.uid, service.EventPatch{Status: tt.status})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	repo.cal.CalendarStatus = entities.CalendarCompleted
	_, err := svc.Patch(context.Background(), "c1", id, "u1", service.EventPatch{Status: entities.StatusDone})
	assert.ErrorIs(t, err, apperr.ErrCalendarClosed)
}
