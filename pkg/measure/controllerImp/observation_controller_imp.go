package controllerImp

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"cropcal/pkg/apperr"
	"cropcal/pkg/measure/service"
	"cropcal/pkg/middleware"
)

type ObservationCtrl struct{ svc service.ObservationService }

func New(svc service.ObservationService) *ObservationCtrl { return &ObservationCtrl{svc} }

func (h *ObservationCtrl) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	out, err := h.svc.History(c.Param("id"), middleware.UID(c), limit)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, out)
}
