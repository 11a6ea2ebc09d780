package controllerImp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcal/database"
)

type cacheStub struct{ err error }

func (c cacheStub) Healthy() error { return c.err }

func probe(t *testing.T, h *HealthCtrl) (int, map[string]any) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)
	require.NoError(t, h.Health(c))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealth(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "health.db"))
	require.NoError(t, err)

	t.Run("all good", func(t *testing.T) {
		code, body := probe(t, NewHealthCtrl(db, cacheStub{}))
		assert.Equal(t, http.StatusOK, code)
		checks := body["checks"].(map[string]any)
		assert.Equal(t, true, checks["snapshot_cache"].(map[string]any)["ok"])
	})

	t.Run("cache failure does not gate readiness", func(t *testing.T) {
		code, body := probe(t, NewHealthCtrl(db, cacheStub{err: errors.New("closed")}))
		assert.Equal(t, http.StatusOK, code)
		cache := body["checks"].(map[string]any)["snapshot_cache"].(map[string]any)
		assert.Equal(t, false, cache["ok"])
		assert.Equal(t, "closed", cache["err"])
	})

	t.Run("no database", func(t *testing.T) {
		code, _ := probe(t, NewHealthCtrl(nil, nil))
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})
}
