package controllerImp

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

var appStart = time.Now()

// checker is satisfied by the snapshot cache.
type checker interface {
	Healthy() error
}

type HealthCtrl struct {
	db    *gorm.DB
	cache checker
}

// NewHealthCtrl builds the health endpoint. cache may be nil when no
// snapshot cache is configured; it is then reported as disabled.
func NewHealthCtrl(db *gorm.DB, cache checker) *HealthCtrl {
	return &HealthCtrl{db: db, cache: cache}
}

type sub struct {
	OK       bool   `json:"ok"`
	Disabled bool   `json:"disabled,omitempty"`
	Err      string `json:"err,omitempty"`
}

func (h *HealthCtrl) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 800*time.Millisecond)
	defer cancel()

	db := h.database(ctx)
	cache := sub{OK: true, Disabled: h.cache == nil}
	if h.cache != nil {
		if err := h.cache.Healthy(); err != nil {
			cache = sub{OK: false, Err: err.Error()}
		}
	}

	// the engine runs degraded without the cache, so only the database gates readiness
	allOK := db.OK
	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}

	resp := map[string]any{
		"status":     map[string]any{"ok": allOK},
		"uptime_sec": int(time.Since(appStart).Seconds()),
		"checks": map[string]any{
			"database":       db,
			"snapshot_cache": cache,
		},
		"time": time.Now().Format(time.RFC3339),
	}

	return c.JSON(status, resp)
}

func (h *HealthCtrl) database(ctx context.Context) sub {
	if h.db == nil {
		return sub{Err: "gorm db is nil"}
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return sub{Err: "db.DB(): " + err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return sub{Err: "ping: " + err.Error()}
	}
	return sub{OK: true}
}
