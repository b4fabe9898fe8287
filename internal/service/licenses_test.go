// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
	"github.com/controlplaneio-fluxcd/aegis/internal/store"
)

func TestNormalizeMajorVersion(t *testing.T) {
	for in, want := range map[string]string{
		"18":        "18",
		"18.0":      "18",
		" 17.0.3 ":  "17",
		"v16":       "16",
		"saas~17.2": "saas~17.2",
		"":          "",
	} {
		t.Run(fmt.Sprintf("%q", in), func(t *testing.T) {
			g := NewWithT(t)
			g.Expect(NormalizeMajorVersion(in)).To(Equal(want))
		})
	}
}

func TestService_IssueLicense(t *testing.T) {
	ctx := context.Background()
	meta := RequestMeta{IPAddress: "10.0.0.1", UserAgent: "aegis-test"}

	t.Run("stores the signed license", func(t *testing.T) {
		g := NewWithT(t)
		env := newTestEnv(t)
		env.createCustomer(t, "acme")

		l, err := env.svc.IssueLicense(ctx, IssueInput{
			CustomerID:      "acme",
			ProductName:     "payroll",
			AllowedVersions: []string{"18.0", "17"},
			Kind:            lkm.KindSubscription,
			DurationDays:    intPtr(365),
			Binding:         &lkm.InstanceBinding{InstallationID: "db-1", Domain: "erp.example.com"},
			Notes:           "annual",
		}, meta)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(l.Status).To(Equal(store.StatusActive))
		g.Expect(l.AllowedVersions).To(Equal([]string{"17", "18"}))
		g.Expect(l.IssuedAt).To(Equal(testNow))
		g.Expect(l.ExpiresAt).ToNot(BeNil())
		g.Expect(*l.ExpiresAt).To(Equal(testNow.Add(365 * 24 * time.Hour)))
		g.Expect(l.InstanceFingerprint).To(Equal(lkm.Fingerprint("db-1", "erp.example.com")))
		g.Expect(l.KeyID).To(Equal("k1"))

		stored, err := env.svc.GetLicense(ctx, l.ID)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(stored.Token).To(Equal(l.Token))

		claims, err := lkm.Inspect(l.Token)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(claims.ID).To(Equal(l.ID))
		g.Expect(claims.Customer.Name).To(Equal("Customer acme"))

		events, err := env.svc.AuditLogs(ctx, store.AuditFilter{})
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(events).To(HaveLen(1))
		g.Expect(events[0].EventType).To(Equal(store.EventIssued))
		g.Expect(events[0].EventData).To(Equal("License issued: subscription"))
		g.Expect(events[0].IPAddress).To(Equal("10.0.0.1"))
		g.Expect(events[0].UserAgent).To(Equal("aegis-test"))

		g.Expect(env.counterValue(t, "aegis_licenses_issued_total", map[string]string{"kind": "subscription"})).
			To(BeEquivalentTo(1))
	})

	t.Run("applies the default demo duration", func(t *testing.T) {
		g := NewWithT(t)
		env := newTestEnv(t, WithDefaultDemoDuration(14*24*time.Hour))
		env.createCustomer(t, "acme")

		l, err := env.svc.IssueLicense(ctx, IssueInput{
			CustomerID:      "acme",
			ProductName:     "payroll",
			AllowedVersions: []string{"18"},
			Kind:            lkm.KindDemo,
		}, meta)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(*l.ExpiresAt).To(Equal(testNow.Add(14 * 24 * time.Hour)))
	})

	t.Run("accepts the longest duration", func(t *testing.T) {
		g := NewWithT(t)
		env := newTestEnv(t)
		env.createCustomer(t, "acme")

		l, err := env.svc.IssueLicense(ctx, IssueInput{
			CustomerID:      "acme",
			ProductName:     "payroll",
			AllowedVersions: []string{"18"},
			Kind:            lkm.KindSubscription,
			DurationDays:    intPtr(lkm.MaxDurationDays),
		}, meta)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(*l.ExpiresAt).To(Equal(testNow.Add(lkm.MaxDurationDays * 24 * time.Hour)))
		g.Expect(l.ExpiresAt.After(testNow)).To(BeTrue())
	})

	t.Run("perpetual licenses ignore the duration", func(t *testing.T) {
		g := NewWithT(t)
		env := newTestEnv(t)
		env.createCustomer(t, "acme")

		l, err := env.svc.IssueLicense(ctx, IssueInput{
			CustomerID:      "acme",
			ProductName:     "payroll",
			AllowedVersions: []string{"18"},
			Kind:            lkm.KindPerpetual,
			DurationDays:    intPtr(30),
		}, meta)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(l.ExpiresAt).To(BeNil())
	})

	t.Run("fails for unknown or inactive customers", func(t *testing.T) {
		g := NewWithT(t)
		env := newTestEnv(t)

		in := IssueInput{
			CustomerID:      "acme",
			ProductName:     "payroll",
			AllowedVersions: []string{"18"},
			Kind:            lkm.KindPerpetual,
		}
		_, err := env.svc.IssueLicense(ctx, in, meta)
		g.Expect(err).To(MatchError(store.ErrNotFound))

		env.createCustomer(t, "acme")
		inactive := false
		_, err = env.svc.UpdateCustomer(ctx, "acme", CustomerUpdate{Active: &inactive})
		g.Expect(err).ToNot(HaveOccurred())

		_, err = env.svc.IssueLicense(ctx, in, meta)
		g.Expect(err).To(MatchError(ErrCustomerInactive))
	})

	t.Run("fails for invalid parameters", func(t *testing.T) {
		g := NewWithT(t)
		env := newTestEnv(t)
		env.createCustomer(t, "acme")

		_, err := env.svc.IssueLicense(ctx, IssueInput{
			CustomerID:      "acme",
			ProductName:     "payroll",
			AllowedVersions: []string{"18"},
			Kind:            lkm.KindSubscription,
		}, meta)
		g.Expect(err).To(MatchError(lkm.ErrInvalidParameters))

		_, err = env.svc.IssueLicense(ctx, IssueInput{
			CustomerID:      "acme",
			ProductName:     "payroll",
			AllowedVersions: []string{"18"},
			Kind:            lkm.KindPerpetual,
			Binding:         &lkm.InstanceBinding{Domain: "erp.example.com"},
		}, meta)
		g.Expect(err).To(MatchError(lkm.ErrInvalidParameters))

		for _, days := range []int{0, lkm.MaxDurationDays + 1, 213504} {
			_, err = env.svc.IssueLicense(ctx, IssueInput{
				CustomerID:      "acme",
				ProductName:     "payroll",
				AllowedVersions: []string{"18"},
				Kind:            lkm.KindSubscription,
				DurationDays:    intPtr(days),
			}, meta)
			g.Expect(err).To(MatchError(ErrInvalidRequest))
			g.Expect(err).To(MatchError(lkm.ErrInvalidParameters))
		}

		_, total, err := env.store.ListLicenses(ctx, store.LicenseFilter{})
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(total).To(BeZero())
	})
}

func TestService_ValidateLicense(t *testing.T) {
	ctx := context.Background()
	meta := RequestMeta{IPAddress: "10.0.0.2"}

	issue := func(t *testing.T, env *testEnv, kind lkm.Kind, days *int, binding *lkm.InstanceBinding) *store.License {
		t.Helper()
		l, err := env.svc.IssueLicense(ctx, IssueInput{
			CustomerID:      "acme",
			ProductName:     "payroll",
			AllowedVersions: []string{"17", "18"},
			Kind:            kind,
			DurationDays:    days,
			Binding:         binding,
		}, RequestMeta{})
		if err != nil {
			t.Fatalf("failed to issue license: %v", err)
		}
		return l
	}

	t.Run("accepts a valid license", func(t *testing.T) {
		g := NewWithT(t)
		env := newTestEnv(t)
		env.createCustomer(t, "acme")
		l := issue(t, env, lkm.KindSubscription, intPtr(30), nil)

		result, err := env.svc.ValidateLicense(ctx, ValidateInput{
			Token:          l.Token,
			ProductName:    "payroll",
			ProductVersion: "18.0",
		}, meta)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(result.Valid).To(BeTrue())
		g.Expect(result.LicenseID).To(Equal(l.ID))
		g.Expect(result.Kind).To(Equal(lkm.KindSubscription))
		g.Expect(result.CustomerName).To(Equal("Customer acme"))
		g.Expect(*result.ExpiresAt).To(Equal(*l.ExpiresAt))
		g.Expect(result.Reason).To(BeEmpty())

		events, err := env.svc.AuditLogs(ctx, store.AuditFilter{LicenseID: l.ID})
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(events[0].EventType).To(Equal(store.EventValidated))
		g.Expect(events[0].CustomerID).To(Equal("acme"))
		g.Expect(events[0].IPAddress).To(Equal("10.0.0.2"))

		g.Expect(env.counterValue(t, "aegis_license_validations_total",
			map[string]string{"result": "valid", "reason": ""})).To(BeEquivalentTo(1))
	})

	t.Run("reports the rejection reason", func(t *testing.T) {
		g := NewWithT(t)
		env := newTestEnv(t)
		env.createCustomer(t, "acme")
		l := issue(t, env, lkm.KindPerpetual, nil, nil)

		result, err := env.svc.ValidateLicense(ctx, ValidateInput{
			Token:          l.Token,
			ProductName:    "inventory",
			ProductVersion: "18",
		}, meta)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(result.Valid).To(BeFalse())
		g.Expect(result.Reason).To(Equal(string(lkm.ReasonProductMismatch)))
		g.Expect(result.Error).To(ContainSubstring("different module"))
		g.Expect(result.LicenseID).To(Equal(l.ID))

		result, err = env.svc.ValidateLicense(ctx, ValidateInput{
			Token:          l.Token,
			ProductName:    "payroll",
			ProductVersion: "16",
		}, meta)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(result.Reason).To(Equal(string(lkm.ReasonVersionNotAllowed)))

		events, err := env.svc.AuditLogs(ctx, store.AuditFilter{LicenseID: l.ID})
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(events[0].EventType).To(Equal(store.EventValidationFailed))
		g.Expect(events[0].EventData).To(Equal("version=16 reason=VersionNotAllowed"))

		g.Expect(env.counterValue(t, "aegis_license_validations_total",
			map[string]string{"result": "invalid", "reason": "ProductMismatch"})).To(BeEquivalentTo(1))
	})

	t.Run("does not echo unverified claims", func(t *testing.T) {
		g := NewWithT(t)
		env := newTestEnv(t)
		env.createCustomer(t, "acme")
		l := issue(t, env, lkm.KindPerpetual, nil, nil)

		tampered := l.Token[:len(l.Token)-10] + "AAAAAAAAA" + l.Token[len(l.Token)-1:]
		result, err := env.svc.ValidateLicense(ctx, ValidateInput{
			Token:          tampered,
			ProductName:    "payroll",
			ProductVersion: "18",
		}, meta)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(result.Valid).To(BeFalse())
		g.Expect(result.Reason).To(Equal(string(lkm.ReasonInvalidSignature)))
		g.Expect(result.LicenseID).To(BeEmpty())

		result, err = env.svc.ValidateLicense(ctx, ValidateInput{Token: "garbage", ProductName: "payroll"}, meta)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(result.Reason).To(Equal(string(lkm.ReasonMalformed)))
		g.Expect(result.LicenseID).To(BeEmpty())
	})

	t.Run("rejects expired licenses", func(t *testing.T) {
		g := NewWithT(t)
		env := newTestEnv(t)
		env.createCustomer(t, "acme")
		l := issue(t, env, lkm.KindDemo, intPtr(7), nil)

		env.clock.Advance(7 * 24 * time.Hour)
		result, err := env.svc.ValidateLicense(ctx, ValidateInput{
			Token:          l.Token,
			ProductName:    "payroll",
			ProductVersion: "18",
		}, meta)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(result.Reason).To(Equal(string(lkm.ReasonExpired)))
		g.Expect(result.LicenseID).To(Equal(l.ID))
		g.Expect(result.ExpiresAt).ToNot(BeNil())
	})

	t.Run("checks the instance binding", func(t *testing.T) {
		g := NewWithT(t)
		env := newTestEnv(t)
		env.createCustomer(t, "acme")
		l := issue(t, env, lkm.KindPerpetual, nil, &lkm.InstanceBinding{InstallationID: "db-1", Domain: "erp.example.com"})

		for _, tt := range []struct {
			installationID string
			domain         string
			reason         string
		}{
			{installationID: "db-1", domain: "erp.example.com", reason: ""},
			{installationID: "", domain: "", reason: string(lkm.ReasonBindingContextMissing)},
			{installationID: "db-1", domain: "", reason: string(lkm.ReasonBindingContextMissing)},
			{installationID: "db-2", domain: "erp.example.com", reason: string(lkm.ReasonInstanceMismatch)},
		} {
			result, err := env.svc.ValidateLicense(ctx, ValidateInput{
				Token:          l.Token,
				ProductName:    "payroll",
				ProductVersion: "18",
				InstallationID: tt.installationID,
				Domain:         tt.domain,
			}, meta)
			g.Expect(err).ToNot(HaveOccurred())
			g.Expect(result.Reason).To(Equal(tt.reason), "installation %q domain %q", tt.installationID, tt.domain)
			g.Expect(result.Valid).To(Equal(tt.reason == ""))
		}
	})

	t.Run("rejects revoked licenses", func(t *testing.T) {
		g := NewWithT(t)
		cache := &fakeCache{}
		env := newTestEnv(t, WithRevocationCache(cache))
		env.createCustomer(t, "acme")
		l := issue(t, env, lkm.KindPerpetual, nil, nil)

		in := ValidateInput{Token: l.Token, ProductName: "payroll", ProductVersion: "17"}
		result, err := env.svc.ValidateLicense(ctx, in, meta)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(result.Valid).To(BeTrue())

		_, err = env.svc.RevokeLicense(ctx, l.ID, "chargeback", meta)
		g.Expect(err).ToNot(HaveOccurred())

		result, err = env.svc.ValidateLicense(ctx, in, meta)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(result.Valid).To(BeFalse())
		g.Expect(result.Reason).To(Equal(ReasonRevoked))
		g.Expect(result.LicenseID).To(Equal(l.ID))
		g.Expect(cache.lookups).To(Equal(2))
	})
}

func TestService_RevokeLicense(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()
	env := newTestEnv(t)
	env.createCustomer(t, "acme")

	l, err := env.svc.IssueLicense(ctx, IssueInput{
		CustomerID:      "acme",
		ProductName:     "payroll",
		AllowedVersions: []string{"18"},
		Kind:            lkm.KindPerpetual,
	}, RequestMeta{})
	g.Expect(err).ToNot(HaveOccurred())

	_, err = env.svc.RevokeLicense(ctx, l.ID, " ", RequestMeta{})
	g.Expect(err).To(MatchError(ErrInvalidRequest))

	_, err = env.svc.RevokeLicense(ctx, "missing", "fraud", RequestMeta{})
	g.Expect(err).To(MatchError(store.ErrNotFound))

	env.clock.Advance(time.Hour)
	revoked, err := env.svc.RevokeLicense(ctx, l.ID, "fraud", RequestMeta{})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(revoked.Status).To(Equal(store.StatusRevoked))
	g.Expect(revoked.RevokedReason).To(Equal("fraud"))
	g.Expect(*revoked.RevokedAt).To(Equal(testNow.Add(time.Hour)))

	_, err = env.svc.RevokeLicense(ctx, l.ID, "fraud", RequestMeta{})
	g.Expect(err).To(MatchError(ErrAlreadyRevoked))

	events, err := env.svc.AuditLogs(ctx, store.AuditFilter{Page: store.Page{Limit: 1}})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(events[0].EventType).To(Equal(store.EventRevoked))
	g.Expect(events[0].EventData).To(Equal("Revoked: fraud"))

	g.Expect(env.counterValue(t, "aegis_licenses_revoked_total", nil)).To(BeEquivalentTo(1))

	stats, err := env.svc.Stats(ctx)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(stats.Licenses.Revoked).To(Equal(1))
	g.Expect(stats.Licenses.Active).To(BeZero())
}

func TestService_ListLicenses(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()
	env := newTestEnv(t)
	env.createCustomer(t, "acme")

	for range 5 {
		_, err := env.svc.IssueLicense(ctx, IssueInput{
			CustomerID:      "acme",
			ProductName:     "payroll",
			AllowedVersions: []string{"18"},
			Kind:            lkm.KindPerpetual,
		}, RequestMeta{})
		g.Expect(err).ToNot(HaveOccurred())
		env.clock.Advance(time.Minute)
	}

	page, err := env.svc.ListLicenses(ctx, LicenseQuery{Page: 2, PageSize: 2})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(page.Total).To(Equal(5))
	g.Expect(page.TotalPages).To(Equal(3))
	g.Expect(page.Page).To(Equal(2))
	g.Expect(page.Licenses).To(HaveLen(2))

	page, err = env.svc.ListLicenses(ctx, LicenseQuery{PageSize: 1000})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(page.Page).To(Equal(1))
	g.Expect(page.PageSize).To(Equal(100))
	g.Expect(page.Licenses).To(HaveLen(5))
	g.Expect(page.Licenses[0].CreatedAt).To(Equal(testNow.Add(4 * time.Minute)))

	page, err = env.svc.ListLicenses(ctx, LicenseQuery{Kind: string(lkm.KindDemo)})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(page.Total).To(BeZero())
	g.Expect(page.TotalPages).To(BeZero())
	g.Expect(page.PageSize).To(Equal(50))
}

func TestService_PublicKeySet(t *testing.T) {
	g := NewWithT(t)
	env := newTestEnv(t)

	ks, err := env.svc.PublicKeySet()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(ks.Keys).To(HaveLen(1))
	g.Expect(ks.Keys[0].KeyID).To(Equal("k1"))
	g.Expect(ks.Keys[0].Algorithm).To(Equal("EdDSA"))

	g.Expect(env.svc.Fingerprint("db-1", "erp.example.com")).To(Equal(lkm.Fingerprint("db-1", "erp.example.com")))
}
