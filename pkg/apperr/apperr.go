// Package apperr holds the error taxonomy shared by the calendar engine and
// its HTTP surface. Callers wrap these with fmt.Errorf("...: %w") and match
// with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidProfile               = errors.New("invalid crop profile")
	ErrInvalidPlantingDate          = errors.New("invalid planting date")
	ErrEnvironmentalDataUnavailable = errors.New("environmental data unavailable")
	ErrRecalculationConflict        = errors.New("recalculation conflict")
	ErrNotFound                     = errors.New("not found")
	ErrInvalidObservation           = errors.New("invalid observation")
	ErrCalendarClosed               = errors.New("calendar closed")
	ErrInvalidEventUpdate           = errors.New("invalid event update")
)

// HTTPStatus maps an error to the status a controller should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidProfile):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidPlantingDate), errors.Is(err, ErrInvalidObservation),
		errors.Is(err, ErrInvalidEventUpdate):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrCalendarClosed), errors.Is(err, ErrRecalculationConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
