package controllerImp

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"cropcal/entities"
	"cropcal/pkg/apperr"
	"cropcal/pkg/calendar/service"
	"cropcal/pkg/middleware"
)

type CalendarCtrl struct{ svc service.CalendarService }

func New(svc service.CalendarService) *CalendarCtrl { return &CalendarCtrl{svc} }

type createReq struct {
	FarmID       uint    `json:"farm_id" validate:"required"`
	CropID       string  `json:"crop_id" validate:"required"`
	CropVariety  string  `json:"crop_variety"`
	PlannedArea  float64 `json:"planned_area" validate:"gt=0"`
	PlantingDate string  `json:"planting_date" validate:"required,datetime=2006-01-02"`
	AsOf         string  `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}

type observationReq struct {
	Date              string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	ObservedStage     string   `json:"observed_stage"`
	NDVI              *float64 `json:"ndvi" validate:"omitempty,gte=-1,lte=1"`
	ActualHarvestDate string   `json:"actual_harvest_date" validate:"omitempty,datetime=2006-01-02"`
	ActualYield       *float64 `json:"actual_yield" validate:"omitempty,gte=0"`
	ReplantDate       string   `json:"replant_date" validate:"omitempty,datetime=2006-01-02"`
	Note              string   `json:"note" validate:"max=500"`
}

func fail(c echo.Context, err error) error {
	return c.JSON(apperr.HTTPStatus(err), map[string]string{"error": err.Error()})
}

// parseDay reads an optional YYYY-MM-DD value; empty gives the zero time.
func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(entities.DateLayout, s)
}

func parseDayPtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(entities.DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *CalendarCtrl) Create(c echo.Context) error {
	var req createReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad json"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	planting, err := parseDay(req.PlantingDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad planting_date"})
	}
	asOf, err := parseDay(req.AsOf)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad as_of"})
	}
	cal, err := h.svc.Create(c.Request().Context(), service.CreateRequest{
		UserID:       middleware.UID(c),
		FarmID:       req.FarmID,
		CropID:       req.CropID,
		CropVariety:  req.CropVariety,
		PlannedArea:  req.PlannedArea,
		PlantingDate: planting,
		AsOf:         asOf,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, cal)
}

func (h *CalendarCtrl) Get(c echo.Context) error {
	cal, err := h.svc.Get(c.Request().Context(), c.Param("id"), middleware.UID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cal)
}

func (h *CalendarCtrl) ReportObservation(c echo.Context) error {
	var req observationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad json"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	date, err := parseDay(req.Date)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad date"})
	}
	harvest, err := parseDayPtr(req.ActualHarvestDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad actual_harvest_date"})
	}
	replant, err := parseDayPtr(req.ReplantDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad replant_date"})
	}
	cal, err := h.svc.ReportObservation(c.Request().Context(), c.Param("id"), middleware.UID(c), service.ObservationRequest{
		Date:              date,
		ObservedStage:     req.ObservedStage,
		NDVI:              req.NDVI,
		ActualHarvestDate: harvest,
		ActualYield:       req.ActualYield,
		ReplantDate:       replant,
		Note:              req.Note,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cal)
}

// Tick recalculates one calendar as of ?as_of= (today when absent).
func (h *CalendarCtrl) Tick(c echo.Context) error {
	asOf, err := parseDay(c.QueryParam("as_of"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "as_of must be YYYY-MM-DD"})
	}
	id := c.Param("id")
	if _, err := h.svc.Get(c.Request().Context(), id, middleware.UID(c)); err != nil {
		return fail(c, err)
	}
	cal, err := h.svc.Tick(c.Request().Context(), id, asOf)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cal)
}

func (h *CalendarCtrl) TickAll(c echo.Context) error {
	asOf, err := parseDay(c.QueryParam("as_of"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "as_of must be YYYY-MM-DD"})
	}
	sum, err := h.svc.TickAll(c.Request().Context(), asOf)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *CalendarCtrl) Abandon(c echo.Context) error {
	cal, err := h.svc.Abandon(c.Request().Context(), c.Param("id"), middleware.UID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cal)
}

func (h *CalendarCtrl) Recalculations(c echo.Context) error {
	logs, err := h.svc.RecalcLogs(c.Request().Context(), c.Param("id"), middleware.UID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, logs)
}
