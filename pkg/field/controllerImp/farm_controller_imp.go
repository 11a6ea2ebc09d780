package controllerImp

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"cropcal/entities"
	"cropcal/pkg/apperr"
	"cropcal/pkg/field/service"
	"cropcal/pkg/middleware"
)

type FarmCtrl struct{ svc service.FarmService }

func New(svc service.FarmService) *FarmCtrl { return &FarmCtrl{svc} }

type createReq struct {
	Name           string   `json:"name" validate:"required"`
	Latitude       float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude      float64  `json:"longitude" validate:"gte=-180,lte=180"`
	TotalFarmSize  float64  `json:"total_farm_size" validate:"gte=0"`
	SoilType       string   `json:"soil_type" validate:"omitempty,oneof=sand loam clay"`
	SoilPH         *float64 `json:"soil_ph" validate:"omitempty,gte=0,lte=14"`
	IrrigationType string   `json:"irrigation_type" validate:"omitempty,oneof=drip sprinkler flood rainfed"`
}

func (h *FarmCtrl) Create(c echo.Context) error {
	var req createReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad json"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	f := &entities.Farm{
		UserID:         middleware.UID(c),
		Name:           req.Name,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		TotalFarmSize:  req.TotalFarmSize,
		SoilType:       req.SoilType,
		SoilPH:         req.SoilPH,
		IrrigationType: req.IrrigationType,
	}
	out, err := h.svc.Register(f)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *FarmCtrl) Get(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad farm id"})
	}
	f, err := h.svc.Get(uint(id), middleware.UID(c))
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, f)
}
