// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package server

import (
	"net/http"

	"github.com/go-logr/logr"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
	"github.com/controlplaneio-fluxcd/aegis/internal/service"
	"github.com/controlplaneio-fluxcd/aegis/internal/store"
)

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
	Database    string `json:"database"`
}

// healthHandler reports 'degraded' with 503 when the store is unreachable.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "healthy",
		Version:     s.opts.Version,
		Environment: s.opts.Environment,
		Database:    "connected",
	}
	status := http.StatusOK
	if err := s.svc.Ping(r.Context()); err != nil {
		logr.FromContextOrDiscard(r.Context()).Error(err, "store ping failed")
		resp.Status = "degraded"
		resp.Database = "disconnected"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type infoResponse struct {
	AppName     string                 `json:"app_name"`
	Version     string                 `json:"version"`
	Environment string                 `json:"environment"`
	Issuer      string                 `json:"issuer"`
	KeyID       string                 `json:"key_id"`
	Sweeper     *service.SweeperStatus `json:"sweeper,omitempty"`
}

func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	resp := infoResponse{
		AppName:     AppName,
		Version:     s.opts.Version,
		Environment: s.opts.Environment,
		Issuer:      s.svc.Issuer().GetIssuer(),
		KeyID:       s.svc.Issuer().GetKeyID(),
	}
	if s.opts.Sweeper != nil {
		status := s.opts.Sweeper.Status(s.opts.Now())
		resp.Sweeper = &status
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) jwksHandler(w http.ResponseWriter, r *http.Request) {
	ks, err := s.svc.PublicKeySet()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	data, err := ks.ToJSON()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/jwk-set+json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(data)
}

type validateRequest struct {
	Token          string `json:"token" validate:"required"`
	ModuleName     string `json:"module_name" validate:"required"`
	Version        string `json:"odoo_version" validate:"required"`
	InstanceDBUUID string `json:"instance_db_uuid"`
	InstanceDomain string `json:"instance_domain"`
}

// validateHandler answers with the validation result and a status code
// derived from the rejection reason.
func (s *Server) validateHandler(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	result, err := s.svc.ValidateLicense(r.Context(), service.ValidateInput{
		Token:          req.Token,
		ProductName:    req.ModuleName,
		ProductVersion: req.Version,
		InstallationID: req.InstanceDBUUID,
		Domain:         req.InstanceDomain,
	}, requestMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.Valid {
		status = reasonStatus(lkm.Reason(result.Reason))
	}
	writeJSON(w, status, result)
}

type fingerprintRequest struct {
	DBUUID string `json:"db_uuid" validate:"required"`
	Domain string `json:"domain" validate:"required"`
}

type fingerprintResponse struct {
	Fingerprint string `json:"fingerprint"`
	DBUUID      string `json:"db_uuid"`
	Domain      string `json:"domain"`
}

func (s *Server) fingerprintHandler(w http.ResponseWriter, r *http.Request) {
	var req fingerprintRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, fingerprintResponse{
		Fingerprint: s.svc.Fingerprint(req.DBUUID, req.Domain),
		DBUUID:      req.DBUUID,
		Domain:      req.Domain,
	})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) auditLogsHandler(w http.ResponseWriter, r *http.Request) {
	skip, ok := queryInt(w, r, "skip", 0, 1<<31-1, 0)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 1, 1000, store.DefaultLimit)
	if !ok {
		return
	}

	events, err := s.svc.AuditLogs(r.Context(), store.AuditFilter{
		Page:      store.Page{Offset: skip, Limit: limit},
		LicenseID: r.URL.Query().Get("license_id"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []store.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}
