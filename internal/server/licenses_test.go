// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package server

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	. "github.com/onsi/gomega"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
	"github.com/controlplaneio-fluxcd/aegis/internal/service"
	"github.com/controlplaneio-fluxcd/aegis/internal/store"
)

func TestIssueLicenseHandler(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createCustomer(t, "acme")
	ts.createCustomer(t, "globex")
	rec := ts.do(t, http.MethodPatch, "/api/v1/customers/globex", map[string]any{"is_active": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("failed to deactivate customer: %d", rec.Code)
	}

	t.Run("issues a bound subscription", func(t *testing.T) {
		g := NewWithT(t)

		l := ts.issueLicense(t, map[string]any{
			"customer_id":            "acme",
			"module_name":            "sale_pro",
			"allowed_major_versions": []string{"18.0", "17"},
			"license_type":           "subscription",
			"duration_days":          30,
			"instance_db_uuid":       "db-1",
			"instance_domain":        "erp.acme.example.com",
		})
		g.Expect(l.CustomerID).To(Equal("acme"))
		g.Expect(l.Kind).To(Equal(lkm.KindSubscription))
		g.Expect(l.AllowedVersions).To(Equal([]string{"17", "18"}))
		g.Expect(l.Status).To(Equal(store.StatusActive))
		g.Expect(l.ExpiresAt).ToNot(BeNil())
		g.Expect(l.InstanceFingerprint).To(Equal(lkm.Fingerprint("db-1", "erp.acme.example.com")))
		g.Expect(l.Token).ToNot(BeEmpty())

		rec := ts.do(t, http.MethodGet, "/api/v1/licenses/"+l.ID, nil)
		g.Expect(rec.Code).To(Equal(http.StatusOK))
		g.Expect(decodeBody[store.License](t, rec).Token).To(Equal(l.Token))
	})

	for _, tt := range []struct {
		name   string
		body   map[string]any
		status int
		detail string
	}{
		{
			name: "unknown customer",
			body: map[string]any{
				"customer_id": "initech", "module_name": "sale_pro",
				"allowed_major_versions": []string{"18"}, "license_type": "perpetual",
			},
			status: http.StatusNotFound,
		},
		{
			name: "inactive customer",
			body: map[string]any{
				"customer_id": "globex", "module_name": "sale_pro",
				"allowed_major_versions": []string{"18"}, "license_type": "perpetual",
			},
			status: http.StatusUnprocessableEntity,
			detail: service.ErrCustomerInactive.Error(),
		},
		{
			name: "invalid version",
			body: map[string]any{
				"customer_id": "acme", "module_name": "sale_pro",
				"allowed_major_versions": []string{"latest"}, "license_type": "perpetual",
			},
			status: http.StatusUnprocessableEntity,
			detail: "allowed_major_versions[0] must be a major version number",
		},
		{
			name: "no versions",
			body: map[string]any{
				"customer_id": "acme", "module_name": "sale_pro",
				"allowed_major_versions": []string{}, "license_type": "perpetual",
			},
			status: http.StatusUnprocessableEntity,
			detail: "allowed_major_versions must be at least 1",
		},
		{
			name: "unknown license type",
			body: map[string]any{
				"customer_id": "acme", "module_name": "sale_pro",
				"allowed_major_versions": []string{"18"}, "license_type": "lifetime",
			},
			status: http.StatusUnprocessableEntity,
			detail: "license_type must be one of: perpetual, subscription, demo",
		},
		{
			name: "subscription without duration",
			body: map[string]any{
				"customer_id": "acme", "module_name": "sale_pro",
				"allowed_major_versions": []string{"18"}, "license_type": "subscription",
			},
			status: http.StatusUnprocessableEntity,
		},
		{
			name: "duration too long",
			body: map[string]any{
				"customer_id": "acme", "module_name": "sale_pro",
				"allowed_major_versions": []string{"18"}, "license_type": "subscription",
				"duration_days": 213504,
			},
			status: http.StatusUnprocessableEntity,
			detail: "duration_days must be less than or equal to 36500",
		},
		{
			name: "partial binding",
			body: map[string]any{
				"customer_id": "acme", "module_name": "sale_pro",
				"allowed_major_versions": []string{"18"}, "license_type": "perpetual",
				"instance_db_uuid": "db-1",
			},
			status: http.StatusUnprocessableEntity,
			detail: "instance_domain is required when InstanceDBUUID is set",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			rec := ts.do(t, http.MethodPost, "/api/v1/licenses", tt.body)
			g.Expect(rec.Code).To(Equal(tt.status), rec.Body.String())
			g.Expect(decodeBody[errorResponse](t, rec).Detail).To(ContainSubstring(tt.detail))
		})
	}
}

func TestGetLicenseHandler(t *testing.T) {
	g := NewWithT(t)
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/licenses/not-a-uuid", nil)
	g.Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))

	rec = ts.do(t, http.MethodGet, "/api/v1/licenses/"+uuid.NewString(), nil)
	g.Expect(rec.Code).To(Equal(http.StatusNotFound))
}

func TestListLicensesHandler(t *testing.T) {
	g := NewWithT(t)
	ts := newTestServer(t, nil)
	ts.createCustomer(t, "acme")
	ts.createCustomer(t, "globex")

	for _, c := range []struct{ customer, module, kind string }{
		{"acme", "sale_pro", "perpetual"},
		{"acme", "stock_pro", "demo"},
		{"globex", "sale_pro", "demo"},
	} {
		ts.issueLicense(t, map[string]any{
			"customer_id":            c.customer,
			"module_name":            c.module,
			"allowed_major_versions": []string{"18"},
			"license_type":           c.kind,
		})
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/licenses?customer_id=acme", nil)
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	page := decodeBody[service.LicensePage](t, rec)
	g.Expect(page.Total).To(Equal(2))
	g.Expect(page.Page).To(Equal(1))
	g.Expect(page.PageSize).To(Equal(50))

	rec = ts.do(t, http.MethodGet, "/api/v1/licenses?license_type=demo&page_size=1&page=2", nil)
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	page = decodeBody[service.LicensePage](t, rec)
	g.Expect(page.Total).To(Equal(2))
	g.Expect(page.TotalPages).To(Equal(2))
	g.Expect(page.Licenses).To(HaveLen(1))

	rec = ts.do(t, http.MethodGet, "/api/v1/licenses?module_name=crm_pro", nil)
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(rec.Body.String()).To(ContainSubstring(`"licenses":[]`))

	rec = ts.do(t, http.MethodGet, "/api/v1/licenses?status=deleted", nil)
	g.Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))

	rec = ts.do(t, http.MethodGet, "/api/v1/licenses?page_size=500", nil)
	g.Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
}

func TestRevokeLicenseHandler(t *testing.T) {
	g := NewWithT(t)
	ts := newTestServer(t, nil)
	ts.createCustomer(t, "acme")
	l := ts.issueLicense(t, map[string]any{
		"customer_id":            "acme",
		"module_name":            "sale_pro",
		"allowed_major_versions": []string{"18"},
		"license_type":           "perpetual",
	})
	path := "/api/v1/licenses/" + l.ID + "/revoke"

	rec := ts.do(t, http.MethodDelete, path, map[string]string{"reason": ""})
	g.Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))

	rec = ts.do(t, http.MethodDelete, path, map[string]string{"reason": "chargeback"})
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(decodeBody[revokeResponse](t, rec)).To(Equal(revokeResponse{
		Message:   "License revoked successfully",
		LicenseID: l.ID,
	}))

	rec = ts.do(t, http.MethodGet, "/api/v1/licenses/"+l.ID, nil)
	revoked := decodeBody[store.License](t, rec)
	g.Expect(revoked.Status).To(Equal(store.StatusRevoked))
	g.Expect(revoked.RevokedReason).To(Equal("chargeback"))

	rec = ts.do(t, http.MethodDelete, path, map[string]string{"reason": "again"})
	g.Expect(rec.Code).To(Equal(http.StatusConflict))

	rec = ts.do(t, http.MethodDelete, "/api/v1/licenses/"+uuid.NewString()+"/revoke", map[string]string{"reason": "x"})
	g.Expect(rec.Code).To(Equal(http.StatusNotFound))
}

func TestValidateHandler(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createCustomer(t, "acme")
	unbound := ts.issueLicense(t, map[string]any{
		"customer_id":            "acme",
		"module_name":            "sale_pro",
		"allowed_major_versions": []string{"17", "18"},
		"license_type":           "perpetual",
	})
	bound := ts.issueLicense(t, map[string]any{
		"customer_id":            "acme",
		"module_name":            "sale_pro",
		"allowed_major_versions": []string{"18"},
		"license_type":           "subscription",
		"duration_days":          365,
		"instance_db_uuid":       "db-1",
		"instance_domain":        "erp.acme.example.com",
	})
	revoked := ts.issueLicense(t, map[string]any{
		"customer_id":            "acme",
		"module_name":            "sale_pro",
		"allowed_major_versions": []string{"18"},
		"license_type":           "perpetual",
	})
	rec := ts.do(t, http.MethodDelete, "/api/v1/licenses/"+revoked.ID+"/revoke", map[string]string{"reason": "refund"})
	if rec.Code != http.StatusOK {
		t.Fatalf("failed to revoke license: %d", rec.Code)
	}

	for _, tt := range []struct {
		name   string
		body   map[string]string
		status int
		valid  bool
		reason string
	}{
		{
			name:   "valid unbound license",
			body:   map[string]string{"token": unbound.Token, "module_name": "sale_pro", "odoo_version": "17.0"},
			status: http.StatusOK,
			valid:  true,
		},
		{
			name: "valid bound license",
			body: map[string]string{
				"token": bound.Token, "module_name": "sale_pro", "odoo_version": "18",
				"instance_db_uuid": "db-1", "instance_domain": "erp.acme.example.com",
			},
			status: http.StatusOK,
			valid:  true,
		},
		{
			name:   "malformed token",
			body:   map[string]string{"token": "not-a-token", "module_name": "sale_pro", "odoo_version": "18"},
			status: http.StatusBadRequest,
			reason: string(lkm.ReasonMalformed),
		},
		{
			name:   "other module",
			body:   map[string]string{"token": unbound.Token, "module_name": "stock_pro", "odoo_version": "18"},
			status: http.StatusForbidden,
			reason: string(lkm.ReasonProductMismatch),
		},
		{
			name:   "version not allowed",
			body:   map[string]string{"token": unbound.Token, "module_name": "sale_pro", "odoo_version": "16"},
			status: http.StatusForbidden,
			reason: string(lkm.ReasonVersionNotAllowed),
		},
		{
			name:   "bound license without instance",
			body:   map[string]string{"token": bound.Token, "module_name": "sale_pro", "odoo_version": "18"},
			status: http.StatusUnprocessableEntity,
			reason: string(lkm.ReasonBindingContextMissing),
		},
		{
			name: "bound license on another instance",
			body: map[string]string{
				"token": bound.Token, "module_name": "sale_pro", "odoo_version": "18",
				"instance_db_uuid": "db-2", "instance_domain": "erp.acme.example.com",
			},
			status: http.StatusForbidden,
			reason: string(lkm.ReasonInstanceMismatch),
		},
		{
			name:   "revoked license",
			body:   map[string]string{"token": revoked.Token, "module_name": "sale_pro", "odoo_version": "18"},
			status: http.StatusForbidden,
			reason: service.ReasonRevoked,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			rec := ts.doWithToken(t, http.MethodPost, "/api/v1/licenses/validate", tt.body, "")
			g.Expect(rec.Code).To(Equal(tt.status), rec.Body.String())

			result := decodeBody[service.ValidationResult](t, rec)
			g.Expect(result.Valid).To(Equal(tt.valid))
			g.Expect(result.Reason).To(Equal(tt.reason))
			if tt.valid {
				g.Expect(result.CustomerName).To(Equal("Customer acme"))
			} else {
				g.Expect(result.Error).ToNot(BeEmpty())
			}
		})
	}

	t.Run("missing fields", func(t *testing.T) {
		g := NewWithT(t)

		rec := ts.doWithToken(t, http.MethodPost, "/api/v1/licenses/validate",
			map[string]string{"token": unbound.Token}, "")
		g.Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
		detail := decodeBody[errorResponse](t, rec).Detail
		g.Expect(detail).To(ContainSubstring("module_name is required"))
		g.Expect(detail).To(ContainSubstring("odoo_version is required"))
	})
}

func TestAdminReportHandlers(t *testing.T) {
	g := NewWithT(t)
	ts := newTestServer(t, nil)
	ts.createCustomer(t, "acme")
	l := ts.issueLicense(t, map[string]any{
		"customer_id":            "acme",
		"module_name":            "sale_pro",
		"allowed_major_versions": []string{"18"},
		"license_type":           "demo",
	})
	rec := ts.doWithToken(t, http.MethodPost, "/api/v1/licenses/validate",
		map[string]string{"token": l.Token, "module_name": "sale_pro", "odoo_version": "18"}, "")
	g.Expect(rec.Code).To(Equal(http.StatusOK))

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/stats", nil)
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	stats := decodeBody[store.Stats](t, rec)
	g.Expect(stats.Customers.Total).To(Equal(1))
	g.Expect(stats.Licenses.Total).To(Equal(1))
	g.Expect(stats.Licenses.ByKind).To(HaveKeyWithValue(lkm.KindDemo, 1))
	g.Expect(stats.AuditLogs.Total).To(Equal(2))

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/audit-logs?license_id="+l.ID, nil)
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	events := decodeBody[[]store.AuditEvent](t, rec)
	g.Expect(events).To(HaveLen(2))
	g.Expect(events[1].EventType).To(Equal(store.EventIssued))
	g.Expect(events[1].IPAddress).To(Equal("192.0.2.1"))

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/audit-logs?limit=1", nil)
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(decodeBody[[]store.AuditEvent](t, rec)).To(HaveLen(1))

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/audit-logs?skip=-1", nil)
	g.Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
}
