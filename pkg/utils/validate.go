package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FormatValidationError turns validator errors into field messages. Other errors yield nil.
func FormatValidationError(err error) []FieldError {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	result := make([]FieldError, 0, len(validationErrors))
	for _, err := range validationErrors {
		field := fieldPath(err.Namespace())

		var msg string
		switch err.Tag() {
		case "required":
			msg = fmt.Sprintf("%s is required", field)
		case "min":
			msg = fmt.Sprintf("%s must be at least %s", field, err.Param())
		case "max":
			msg = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "len":
			msg = fmt.Sprintf("%s must be exactly %s characters", field, err.Param())
		case "gt":
			msg = fmt.Sprintf("%s must be greater than %s", field, err.Param())
		case "gte":
			msg = fmt.Sprintf("%s must be greater than or equal to %s", field, err.Param())
		case "oneof":
			msg = fmt.Sprintf("%s must be one of [%s]", field, err.Param())
		case "email":
			msg = fmt.Sprintf("%s must be a valid email", field)
		case "e164":
			msg = fmt.Sprintf("%s must be a valid phone number", field)
		case "numeric":
			msg = fmt.Sprintf("%s must contain digits only", field)
		case "url":
			msg = fmt.Sprintf("%s must be a valid URL", field)
		default:
			msg = fmt.Sprintf("%s is invalid", field)
		}

		result = append(result, FieldError{Field: field, Message: msg})
	}

	return result
}

// fieldPath drops the root struct name: "CreateOrderInput.Items[0].Quantity" -> "items[0].quantity".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		namespace = namespace[i+1:]
	}

	return strings.ToLower(namespace)
}
