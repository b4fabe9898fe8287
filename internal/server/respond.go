// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-logr/logr"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
	"github.com/controlplaneio-fluxcd/aegis/internal/service"
	"github.com/controlplaneio-fluxcd/aegis/internal/store"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of all error responses.
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeServiceError maps the service and store errors to HTTP status codes.
// Unexpected errors are logged and reported without details.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logr.FromContextOrDiscard(r.Context()).Error(err, "request failed")
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, service.ErrAlreadyRevoked):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrCustomerInactive):
		return http.StatusUnprocessableEntity
	}
	return reasonStatus(lkm.ReasonOf(err))
}

// reasonStatus maps a license verification reason to an HTTP status code.
func reasonStatus(reason lkm.Reason) int {
	switch reason {
	case lkm.ReasonMalformed:
		return http.StatusBadRequest
	case lkm.ReasonInvalidSignature, lkm.ReasonUntrustedIssuer:
		return http.StatusUnauthorized
	case lkm.ReasonExpired, lkm.ReasonProductMismatch, lkm.ReasonVersionNotAllowed,
		lkm.ReasonInstanceMismatch, lkm.ReasonPolicyViolation, service.ReasonRevoked:
		return http.StatusForbidden
	case lkm.ReasonBindingContextMissing, lkm.ReasonInvalidParameters:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads the request body into dst and validates it.
// It writes the error response and returns false on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %s", err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, formatValidationError(err))
		return false
	}
	return true
}
