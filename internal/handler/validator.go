package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Aeroer-Live/Note.Lab/internal/apperr"
	"github.com/Aeroer-Live/Note.Lab/internal/auth"
)

// RequestValidator plugs go-playground/validator into echo.Context.Validate
// and turns the first failing field into an *apperr.Error.
type RequestValidator struct {
	v *validator.Validate
}

func NewValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return auth.MeetsPolicy(fl.Field().String())
	})
	return &RequestValidator{v: v}
}

func (rv *RequestValidator) Validate(i any) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var fes validator.ValidationErrors
	if !errors.As(err, &fes) || len(fes) == 0 {
		return apperr.Validation("VALIDATION_ERROR", "Invalid request").With(err)
	}
	return fieldError(fes[0])
}

func fieldError(fe validator.FieldError) *apperr.Error {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return apperr.Validation("MISSING_FIELDS", field+" is required")
	case "email":
		return apperr.Validation("INVALID_EMAIL", "Invalid email format")
	case "password":
		return apperr.Validation("INVALID_PASSWORD", "Password must be at least 8 characters long and contain at least one letter and one number")
	case "uuid", "uuid4":
		return apperr.Validation("INVALID_ID", "Invalid "+field)
	case "max":
		if fe.Kind() == reflect.Slice {
			return apperr.Validation("VALIDATION_ERROR", fmt.Sprintf("%s must contain at most %s items", field, fe.Param()))
		}
		return apperr.Validation("VALIDATION_ERROR", fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
	case "min":
		if fe.Kind() == reflect.Slice {
			return apperr.Validation("VALIDATION_ERROR", fmt.Sprintf("%s must contain at least %s items", field, fe.Param()))
		}
		return apperr.Validation("VALIDATION_ERROR", fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
	case "oneof":
		return apperr.Validation("VALIDATION_ERROR", fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
	}
	return apperr.Validation("VALIDATION_ERROR", "Invalid "+field)
}

// bindValid binds the request body into dst and validates it.
func bindValid(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("INVALID_JSON", "Invalid request body").With(err)
	}
	return c.Validate(dst)
}
