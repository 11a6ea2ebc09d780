package controllerImp

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"cropcal/entities"
	"cropcal/pkg/apperr"
	"cropcal/pkg/middleware"
	"cropcal/pkg/schedule/service"
)

type SchedCtrl struct{ svc service.ScheduleService }

func New(svc service.ScheduleService) *SchedCtrl { return &SchedCtrl{svc} }

type patchReq struct {
	Status string `json:"status" validate:"omitempty,oneof=done skipped pending"`
	Note   string `json:"note" validate:"max=500"`
}

func (h *SchedCtrl) List(c echo.Context) error {
	var f service.EventFilter
	f.Kind = entities.EventKind(c.QueryParam("kind"))
	for _, q := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := c.QueryParam(q.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(entities.DateLayout, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": q.name + " must be YYYY-MM-DD"})
		}
		*q.dst = t
	}
	out, err := h.svc.List(c.Param("id"), middleware.UID(c), f)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, out)
}

// Patch defaults to marking the event done.
func (h *SchedCtrl) Patch(c echo.Context) error {
	var body patchReq
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad json"})
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if body.Status == "" {
		body.Status = string(entities.StatusDone)
	}
	ev, err := h.svc.Patch(c.Request().Context(), c.Param("id"), c.Param("event_id"), middleware.UID(c), service.EventPatch{
		Status: entities.EventStatus(body.Status),
		Note:   body.Note,
	})
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, ev)
}
