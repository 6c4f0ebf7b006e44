package utils

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// same tags gin reads, so one struct definition serves both the HTTP binding and service calls
	v.SetTagName("binding")
	return v
}

func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errorResponse["input"] = err.Error()
		return errorResponse
	}
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

// ValidateStruct runs binding tags on input and returns a Validation AppError listing failed fields.
func ValidateStruct(input any) error {
	if err := validate.Struct(input); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return NewValidationError("invalid input: %v", err)
		}
		return NewFieldValidationError(ProcessValidationErrors(err))
	}
	return nil
}
