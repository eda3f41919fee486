// Package validation holds the shared request-schema validator.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"rentonmap/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON/query names instead of Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"json", "query"} {
			name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	return v
}

// FieldError describes a single failed constraint.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// Struct validates s against its `validate` tags. The returned error is a
// VALIDATION_ERROR AppError listing every failing field.
func Struct(s any) error {
	if err := validate.Struct(s); err != nil {
		return toAppError(err)
	}
	return nil
}

// Var validates a single value against a tag expression.
func Var(field any, tag string) error {
	if err := validate.Var(field, tag); err != nil {
		return toAppError(err)
	}
	return nil
}

func toAppError(err error) error {
	fieldErrs := FormatErrors(err)
	if len(fieldErrs) == 0 {
		return models.NewValidationError(err.Error())
	}
	messages := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		messages[i] = fe.Message
	}
	return models.NewValidationError(messages[0], messages...)
}

// FormatErrors converts validator.ValidationErrors into FieldErrors.
// It returns nil for any other error.
func FormatErrors(err error) []FieldError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]FieldError, len(ve))
	for i, fe := range ve {
		out[i] = FieldError{
			Field: fe.Field(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		}
		switch fe.Tag() {
		case "required":
			out[i].Message = fmt.Sprintf("%s is required", fe.Field())
		case "oneof":
			out[i].Message = fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
		case "gt", "gte":
			out[i].Message = fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
		case "min":
			out[i].Message = fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
		case "max":
			out[i].Message = fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
		case "latitude", "longitude":
			out[i].Message = fmt.Sprintf("%s must be a valid %s", fe.Field(), fe.Tag())
		case "numeric", "number":
			out[i].Message = fmt.Sprintf("%s must be a number", fe.Field())
		default:
			out[i].Message = fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag())
		}
	}
	return out
}
