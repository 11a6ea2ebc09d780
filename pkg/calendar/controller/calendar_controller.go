package controller

import "github.com/labstack/echo/v4"

type CalendarController interface {
	Create(c echo.Context) error
	Get(c echo.Context) error
	ReportObservation(c echo.Context) error
	Tick(c echo.Context) error
	TickAll(c echo.Context) error
	Abandon(c echo.Context) error
	Recalculations(c echo.Context) error
}
