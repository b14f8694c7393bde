package validator

import (
	"github.com/go-playground/validator/v10"
)

// Validator wraps struct-tag validation applied to request payloads at the
// transport boundary, before they reach any engine.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	return &Validator{validate: validator.New()}
}

func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}
