// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package server

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/controlplaneio-fluxcd/aegis/internal/service"
)

var (
	customerIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	majorVersionPattern = regexp.MustCompile(`^[0-9]+$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("customer_id", func(fl validator.FieldLevel) bool {
		return customerIDPattern.MatchString(fl.Field().String())
	})

	_ = v.RegisterValidation("major_version", func(fl validator.FieldLevel) bool {
		return majorVersionPattern.MatchString(service.NormalizeMajorVersion(fl.Field().String()))
	})

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// formatValidationError joins the field errors into a single message.
func formatValidationError(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return strings.Join(msgs, "; ")
}

func formatFieldError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", field, param)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "customer_id":
		return fmt.Sprintf("%s must contain only letters, numbers, underscores and hyphens", field)
	case "major_version":
		return fmt.Sprintf("%s must be a major version number, e.g. '18'", field)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// queryInt parses an integer query parameter within [lo, hi].
// It writes the error response and returns false on failure.
func queryInt(w http.ResponseWriter, r *http.Request, param string, lo, hi, def int) (int, bool) {
	value := r.URL.Query().Get(param)
	if value == "" {
		return def, true
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("%s must be a valid integer", param))
		return 0, false
	}
	if n < lo || n > hi {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("%s must be between %d and %d", param, lo, hi))
		return 0, false
	}
	return n, true
}

// queryEnum parses an optional query parameter restricted to the allowed values.
func queryEnum(w http.ResponseWriter, r *http.Request, param string, allowed []string) (string, bool) {
	value := r.URL.Query().Get(param)
	if value == "" {
		return "", true
	}
	for _, a := range allowed {
		if value == a {
			return value, true
		}
	}
	writeError(w, http.StatusUnprocessableEntity,
		fmt.Sprintf("%s must be one of: %s", param, strings.Join(allowed, ", ")))
	return "", false
}

// queryBool parses an optional boolean query parameter.
func queryBool(w http.ResponseWriter, r *http.Request, param string) (bool, bool) {
	value := r.URL.Query().Get(param)
	if value == "" {
		return false, true
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("%s must be a boolean", param))
		return false, false
	}
	return b, true
}
