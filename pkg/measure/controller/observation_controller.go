package controller

import "github.com/labstack/echo/v4"

type ObservationController interface {
	List(c echo.Context) error
}
