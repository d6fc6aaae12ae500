package http

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Validator adapts go-playground/validator to echo. Field names in errors
// are the JSON names clients send.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate returns a 400 HTTPError naming the first failing field.
func (v *Validator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "required" {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s is required", fe.Field()))
		}
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
