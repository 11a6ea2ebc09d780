package environment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcal/entities"
	"cropcal/pkg/apperr"
)

type mockProvider struct {
	SnapshotFunc func(ctx context.Context, hash string, asOf time.Time) (*entities.EnvironmentalSnapshot, error)
}

func (m *mockProvider) Snapshot(ctx context.Context, hash string, asOf time.Time) (*entities.EnvironmentalSnapshot, error) {
	return m.SnapshotFunc(ctx, hash, asOf)
}

var asOf = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func newCache(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenCache(CacheConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleSnapshot(hash string, temp float64) *entities.EnvironmentalSnapshot {
	return &entities.EnvironmentalSnapshot{
		LocationHash: hash,
		FetchedAt:    asOf,
		ExpiresAt:    asOf.Add(24 * time.Hour),
		Weather:      &entities.WeatherData{TemperatureC: &temp},
	}
}

func TestGateway_SuccessIsCached(t *testing.T) {
	cache := newCache(t)
	g := NewGateway(&mockProvider{SnapshotFunc: func(_ context.Context, hash string, _ time.Time) (*entities.EnvironmentalSnapshot, error) {
		return sampleSnapshot(hash, 31), nil
	}}, cache, time.Second, nil)

	s, err := g.Fetch(context.Background(), "w4rqnp", asOf)
	require.NoError(t, err)
	assert.Equal(t, 31.0, *s.Weather.TemperatureC)

	cached, err := cache.Get("w4rqnp")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "w4rqnp", cached.LocationHash)
}

func TestGateway_FailureFallsBackToCache(t *testing.T) {
	cache := newCache(t)
	require.NoError(t, cache.Put(sampleSnapshot("w4rqnp", 27)))
	g := NewGateway(&mockProvider{SnapshotFunc: func(context.Context, string, time.Time) (*entities.EnvironmentalSnapshot, error) {
		return nil, errors.New("upstream 502")
	}}, cache, time.Second, nil)

	s, err := g.Fetch(context.Background(), "w4rqnp", asOf.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 27.0, *s.Weather.TemperatureC)
	assert.Nil(t, s.FreshWeather(asOf.AddDate(0, 0, 3)), "fallback may be stale")
}

func TestGateway_TimeoutFallsBack(t *testing.T) {
	cache := newCache(t)
	require.NoError(t, cache.Put(sampleSnapshot("w4rqnp", 27)))
	g := NewGateway(&mockProvider{SnapshotFunc: func(ctx context.Context, _ string, _ time.Time) (*entities.EnvironmentalSnapshot, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}, cache, 20*time.Millisecond, nil)

	start := time.Now()
	s, err := g.Fetch(context.Background(), "w4rqnp", asOf)
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGateway_NothingCached(t *testing.T) {
	g := NewGateway(&mockProvider{SnapshotFunc: func(context.Context, string, time.Time) (*entities.EnvironmentalSnapshot, error) {
		return nil, errors.New("down")
	}}, newCache(t), time.Second, nil)

	s, err := g.Fetch(context.Background(), "u4pruy", asOf)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, apperr.ErrEnvironmentalDataUnavailable)
}

func TestGateway_DeduplicatesConcurrentFetches(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	g := NewGateway(&mockProvider{SnapshotFunc: func(_ context.Context, hash string, _ time.Time) (*entities.EnvironmentalSnapshot, error) {
		calls.Add(1)
		<-release
		return sampleSnapshot(hash, 30), nil
	}}, nil, time.Second, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := g.Fetch(context.Background(), "w4rqnp", asOf)
			assert.NoError(t, err)
			assert.NotNil(t, s)
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/snapshots/w4rqnp" || r.URL.Query().Get("as_of") != "2025-03-01" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(sampleSnapshot("", 29))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL+"/", 50, time.Second)
	s, err := p.Snapshot(context.Background(), "w4rqnp", asOf)
	require.NoError(t, err)
	assert.Equal(t, "w4rqnp", s.LocationHash)
	assert.Equal(t, 29.0, *s.Weather.TemperatureC)

	_, err = p.Snapshot(context.Background(), "other", asOf)
	assert.ErrorIs(t, err, apperr.ErrEnvironmentalDataUnavailable)
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider()
	_, err := p.Snapshot(context.Background(), "w4rqnp", asOf)
	assert.ErrorIs(t, err, apperr.ErrEnvironmentalDataUnavailable)

	p.Put(sampleSnapshot("w4rqnp", 25))
	s, err := p.Snapshot(context.Background(), "w4rqnp", asOf)
	require.NoError(t, err)
	assert.Equal(t, 25.0, *s.Weather.TemperatureC)
}

func TestGateway_StorePushedSnapshot(t *testing.T) {
	t.Run("static provider without cache", func(t *testing.T) {
		g := NewGateway(NewStaticProvider(), nil, time.Second, nil)
		_, err := g.Fetch(context.Background(), "w4rqnp", asOf)
		require.ErrorIs(t, err, apperr.ErrEnvironmentalDataUnavailable)

		require.NoError(t, g.Store(sampleSnapshot("w4rqnp", 30)))
		s, err := g.Fetch(context.Background(), "w4rqnp", asOf.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Equal(t, 30.0, *s.Weather.TemperatureC)
	})

	t.Run("static provider with in-memory cache", func(t *testing.T) {
		cache := newCache(t)
		g := NewGateway(NewStaticProvider(), cache, time.Second, nil)
		require.NoError(t, g.Store(sampleSnapshot("w4rqnp", 26)))

		s, err := g.Fetch(context.Background(), "w4rqnp", asOf)
		require.NoError(t, err)
		assert.Equal(t, 26.0, *s.Weather.TemperatureC)
		cached, err := cache.Get("w4rqnp")
		require.NoError(t, err)
		require.NotNil(t, cached)
	})

	t.Run("upstream provider without cache", func(t *testing.T) {
		g := NewGateway(&mockProvider{SnapshotFunc: func(context.Context, string, time.Time) (*entities.EnvironmentalSnapshot, error) {
			return nil, errors.New("upstream 502")
		}}, nil, time.Second, nil)
		err := g.Store(sampleSnapshot("w4rqnp", 30))
		assert.ErrorIs(t, err, ErrNoSnapshotStore)
	})
}
