// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
	"github.com/controlplaneio-fluxcd/aegis/internal/service"
	"github.com/controlplaneio-fluxcd/aegis/internal/store"
)

type licenseCreateRequest struct {
	CustomerID      string   `json:"customer_id" validate:"required,max=50"`
	ModuleName      string   `json:"module_name" validate:"required,min=1,max=100"`
	AllowedVersions []string `json:"allowed_major_versions" validate:"required,min=1,dive,required,major_version"`
	LicenseType     string   `json:"license_type" validate:"required,oneof=perpetual subscription demo"`
	DurationDays    *int     `json:"duration_days" validate:"omitempty,gte=1,lte=36500"`
	InstanceDBUUID  string   `json:"instance_db_uuid" validate:"required_with=InstanceDomain"`
	InstanceDomain  string   `json:"instance_domain" validate:"required_with=InstanceDBUUID"`
	Notes           string   `json:"notes"`
}

type revokeRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

type revokeResponse struct {
	Message   string `json:"message"`
	LicenseID string `json:"license_id"`
}

func (s *Server) issueLicenseHandler(w http.ResponseWriter, r *http.Request) {
	var req licenseCreateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	in := service.IssueInput{
		CustomerID:      req.CustomerID,
		ProductName:     req.ModuleName,
		AllowedVersions: req.AllowedVersions,
		Kind:            lkm.Kind(req.LicenseType),
		DurationDays:    req.DurationDays,
		Notes:           req.Notes,
	}
	if req.InstanceDBUUID != "" {
		in.Binding = &lkm.InstanceBinding{
			InstallationID: req.InstanceDBUUID,
			Domain:         req.InstanceDomain,
		}
	}

	l, err := s.svc.IssueLicense(r.Context(), in, requestMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) listLicensesHandler(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(w, r, "page", 1, 1<<31-1, 1)
	if !ok {
		return
	}
	pageSize, ok := queryInt(w, r, "page_size", 1, 100, 50)
	if !ok {
		return
	}
	kind, ok := queryEnum(w, r, "license_type", kindNames())
	if !ok {
		return
	}
	status, ok := queryEnum(w, r, "status", statusNames())
	if !ok {
		return
	}

	q := r.URL.Query()
	result, err := s.svc.ListLicenses(r.Context(), service.LicenseQuery{
		CustomerID:  q.Get("customer_id"),
		ProductName: q.Get("module_name"),
		Kind:        kind,
		Status:      status,
		Page:        page,
		PageSize:    pageSize,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if result.Licenses == nil {
		result.Licenses = []store.License{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getLicenseHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := licenseID(w, r)
	if !ok {
		return
	}
	l, err := s.svc.GetLicense(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) revokeLicenseHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := licenseID(w, r)
	if !ok {
		return
	}
	var req revokeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	l, err := s.svc.RevokeLicense(r.Context(), id, req.Reason, requestMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revokeResponse{
		Message:   "License revoked successfully",
		LicenseID: l.ID,
	})
}

// licenseID reads the license ID path parameter, which must be a UUID.
func licenseID(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "licenseID")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "license ID must be a valid UUID")
		return "", false
	}
	return id.String(), true
}

func kindNames() []string {
	names := make([]string, len(lkm.Kinds))
	for i, k := range lkm.Kinds {
		names[i] = string(k)
	}
	return names
}

func statusNames() []string {
	names := make([]string, len(store.Statuses))
	for i, st := range store.Statuses {
		names[i] = string(st)
	}
	return names
}
