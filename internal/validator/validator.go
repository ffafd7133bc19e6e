package validator

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

const (
	ErrRequired       = "is required"
	ErrMinValue       = "must be greater than or equal to %s"
	ErrMaxValue       = "must be less than or equal to %s"
	ErrMinItems       = "must contain at least %s item(s)"
	ErrMaxItems       = "must contain at most %s item(s)"
	ErrSeatIdentifier = "must be a row letter followed by a seat number, e.g. A1"
	ErrInvalid        = "is invalid"
)

var seatIdentifierRgx = regexp.MustCompile(`^[A-Za-z][1-9][0-9]{0,2}$`)

func NewValidator() *validator.Validate {
	validator := validator.New(validator.WithRequiredStructEnabled())

	validator.RegisterValidation("seat_identifier", validateSeatIdentifier)

	return validator
}

func validateSeatIdentifier(fl validator.FieldLevel) bool {
	return seatIdentifierRgx.MatchString(fl.Field().String())
}

// ValidationMessage converts validator errors into readable messages
func ValidationMessage(err validator.FieldError) string {
	isCollection := false
	switch err.Kind().String() {
	case "slice", "array", "map":
		isCollection = true
	}

	switch err.Tag() {
	case "required":
		return ErrRequired
	case "min", "gte":
		if isCollection {
			return fmt.Sprintf(ErrMinItems, err.Param())
		}
		return fmt.Sprintf(ErrMinValue, err.Param())
	case "max", "lte":
		if isCollection {
			return fmt.Sprintf(ErrMaxItems, err.Param())
		}
		return fmt.Sprintf(ErrMaxValue, err.Param())
	case "seat_identifier":
		return ErrSeatIdentifier
	default:
		return ErrInvalid
	}
}
