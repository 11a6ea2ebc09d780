package router

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"cropcal/pkg/middleware"
)

func New(
	e *echo.Echo,
	logger *slog.Logger,
	farmCtrl interface {
		Create(echo.Context) error
		Get(echo.Context) error
	},
	calCtrl interface {
		Create(echo.Context) error
		Get(echo.Context) error
		ReportObservation(echo.Context) error
		Tick(echo.Context) error
		TickAll(echo.Context) error
		Abandon(echo.Context) error
		Recalculations(echo.Context) error
	},
	obsCtrl interface{ List(echo.Context) error },
	schedCtrl interface {
		List(echo.Context) error
		Patch(echo.Context) error
	},
	healthCtrl interface{ Health(echo.Context) error },
	metrics http.Handler,
) *echo.Echo {
	e.Use(middleware.CallerID())
	e.Use(middleware.RequestLogger(logger))

	e.GET("/health", healthCtrl.Health)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	api := e.Group("")
	api.POST("/farms", farmCtrl.Create)
	api.GET("/farms/:id", farmCtrl.Get)

	api.POST("/tick", calCtrl.TickAll)

	g := api.Group("/calendars")
	g.POST("", calCtrl.Create)
	g.GET("/:id", calCtrl.Get)
	g.POST("/:id/observations", calCtrl.ReportObservation)
	g.GET("/:id/observations", obsCtrl.List)
	g.POST("/:id/tick", calCtrl.Tick)
	g.POST("/:id/abandon", calCtrl.Abandon)
	g.GET("/:id/recalculations", calCtrl.Recalculations)

	g.GET("/:id/schedule", schedCtrl.List)
	g.PATCH("/:id/events/:event_id", schedCtrl.Patch)
	return e
}
