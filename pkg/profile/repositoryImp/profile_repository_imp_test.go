package repositoryImp

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcal/database"
	"cropcal/entities"
	"cropcal/pkg/apperr"
)

func maize(version, gpd int) *entities.CropProfile {
	return &entities.CropProfile{
		CropID:            "maize",
		Version:           version,
		Name:              "Maize",
		GrowingPeriodDays: gpd,
		ReferenceAreaHa:   1,
		Currency:          "USD",
		GrowthStages: []entities.GrowthStage{
			{Name: "vegetative", RelativeDurationFraction: 0.5},
			{Name: "grain_fill", RelativeDurationFraction: 0.5, Sensitivity: 1},
		},
		Temperature: entities.Range{Min: 15, Max: 35, Optimal: 26},
	}
}

func TestProfileRepo(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	r := New(db)

	created, err := r.Publish(maize(1, 100))
	require.NoError(t, err)
	assert.True(t, created)

	t.Run("published versions are immutable", func(t *testing.T) {
		created, err := r.Publish(maize(1, 140))
		require.NoError(t, err)
		assert.False(t, created)

		p, err := r.FindVersion("maize", 1)
		require.NoError(t, err)
		assert.Equal(t, 100, p.GrowingPeriodDays)
	})

	t.Run("latest version wins", func(t *testing.T) {
		_, err := r.Publish(maize(2, 110))
		require.NoError(t, err)

		p, err := r.FindByID("maize")
		require.NoError(t, err)
		assert.Equal(t, 2, p.Version)
		assert.Equal(t, entities.Range{Min: 15, Max: 35, Optimal: 26}, p.Temperature)
		require.Len(t, p.GrowthStages, 2)
		assert.Equal(t, "grain_fill", p.GrowthStages[1].Name)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := r.FindByID("cassava")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = r.FindVersion("maize", 9)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("invalid profile rejected", func(t *testing.T) {
		bad := maize(3, 100)
		bad.GrowthStages[0].RelativeDurationFraction = 0.2
		_, err := r.Publish(bad)
		assert.ErrorIs(t, err, apperr.ErrInvalidProfile)
	})

	list, err := r.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
