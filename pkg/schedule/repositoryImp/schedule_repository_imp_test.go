package repositoryImp

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcal/database"
	"cropcal/entities"
	"cropcal/pkg/apperr"
)

func TestSaveEvents(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	r := New(db)

	planting := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cal := &entities.CropCalendar{
		CalendarID:         "c1",
		UserID:             "u1",
		CropID:             "rice",
		PlantingDate:       planting,
		CurrentGrowthStage: "vegetative",
		CalendarStatus:     entities.CalendarActive,
		Revision:           1,
		IrrigationSchedule: []entities.ScheduleEvent{
			{ID: "irrigation-20240110", Kind: entities.KindIrrigation, Date: planting.AddDate(0, 0, 9), Status: entities.StatusPending},
		},
	}
	require.NoError(t, db.Create(cal).Error)

	_, err = r.Load("missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := r.Load("c1")
	require.NoError(t, err)
	got.IrrigationSchedule[0].Status = entities.StatusDone
	got.CurrentGrowthStage = "ignored"
	got.Revision = 2
	require.NoError(t, r.SaveEvents(got, 1))

	stored, err := r.Load("c1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Revision)
	assert.Equal(t, entities.StatusDone, stored.IrrigationSchedule[0].Status)
	assert.Equal(t, "vegetative", stored.CurrentGrowthStage, "only schedule columns are written")

	stale := *stored
	stale.Revision = 3
	assert.ErrorIs(t, r.SaveEvents(&stale, 1), apperr.ErrRecalculationConflict)
}
