package middleware

import (
	"github.com/go-playground/validator/v10"
)

// Validator plugs go-playground/validator into echo's c.Validate.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator { return &Validator{v: validator.New()} }

func (cv *Validator) Validate(i interface{}) error {
	return cv.v.Struct(i)
}
