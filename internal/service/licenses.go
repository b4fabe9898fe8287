// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-logr/logr"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
	"github.com/controlplaneio-fluxcd/aegis/internal/store"
)

// ReasonRevoked is the validation reason of revoked licenses.
const ReasonRevoked = "Revoked"

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// IssueInput holds the parameters of a new license.
type IssueInput struct {
	CustomerID      string
	ProductName     string
	AllowedVersions []string
	Kind            lkm.Kind

	// DurationDays is required for subscription licenses. Demo licenses
	// fall back to the default demo duration. Ignored for perpetual licenses.
	DurationDays *int

	// Binding binds the license to a single installation, if set.
	Binding *lkm.InstanceBinding

	Notes string
}

// ValidateInput holds a license key and the context it is used in.
type ValidateInput struct {
	Token          string
	ProductName    string
	ProductVersion string
	InstallationID string
	Domain         string
}

// ValidationResult is the outcome of a license key validation.
type ValidationResult struct {
	Valid        bool       `json:"valid"`
	LicenseID    string     `json:"license_id,omitempty"`
	Kind         lkm.Kind   `json:"license_type,omitempty"`
	CustomerName string     `json:"customer_name,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// LicenseQuery selects a page of licenses. Page numbers start at 1.
type LicenseQuery struct {
	CustomerID  string
	ProductName string
	Kind        string
	Status      string
	Page        int
	PageSize    int
}

// LicensePage is a page of licenses.
type LicensePage struct {
	Licenses   []store.License `json:"licenses"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// NormalizeMajorVersion returns the major version of v, e.g. '18.0' becomes '18'.
// Values that are not semantic versions are returned trimmed.
func NormalizeMajorVersion(v string) string {
	v = strings.TrimSpace(v)
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return v
	}
	return strconv.FormatUint(parsed.Major(), 10)
}

// IssueLicense signs a license key for an active customer and stores it.
func (s *Service) IssueLicense(ctx context.Context, in IssueInput, meta RequestMeta) (*store.License, error) {
	customer, err := s.store.GetCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	if !customer.Active {
		return nil, fmt.Errorf("customer '%s': %w", customer.ID, ErrCustomerInactive)
	}

	versions := make([]string, len(in.AllowedVersions))
	for i, v := range in.AllowedVersions {
		versions[i] = NormalizeMajorVersion(v)
	}

	req := lkm.IssueRequest{
		CustomerID:      customer.ID,
		CustomerName:    customer.Name,
		ProductName:     in.ProductName,
		AllowedVersions: versions,
		Kind:            in.Kind,
		Binding:         in.Binding,
	}
	switch {
	case in.DurationDays != nil:
		d, err := lkm.DurationFromDays(*in.DurationDays)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		req.Duration = lkm.Some(d)
	case in.Kind == lkm.KindDemo:
		req.Duration = lkm.Some(s.demoTTL)
	}

	signed, err := s.issuer.Issue(req)
	if err != nil {
		return nil, err
	}

	claims := signed.Claims
	now := s.timestamp()
	l := &store.License{
		ID:              claims.ID,
		CustomerID:      customer.ID,
		ProductName:     claims.Product.Name,
		Kind:            claims.Kind,
		AllowedVersions: claims.Product.AllowedVersions,
		IssuedAt:        claims.IssuedAtTime(),
		Status:          store.StatusActive,
		Token:           signed.Token,
		KeyID:           s.issuer.GetKeyID(),
		Notes:           in.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if exp, ok := claims.ExpiresAt(); ok {
		l.ExpiresAt = &exp
	}
	if fp, ok := claims.InstanceFingerprint.Get(); ok {
		l.InstanceFingerprint = fp
	}
	if err := s.store.CreateLicense(ctx, l); err != nil {
		return nil, err
	}

	s.audit(ctx, store.AuditEvent{
		EventType:   store.EventIssued,
		LicenseID:   l.ID,
		CustomerID:  l.CustomerID,
		ProductName: l.ProductName,
		EventData:   fmt.Sprintf("License issued: %s", l.Kind),
	}, meta)
	s.metrics.recordIssued(string(l.Kind))

	logr.FromContextOrDiscard(ctx).Info("license issued",
		"license_id", l.ID,
		"customer_id", l.CustomerID,
		"module", l.ProductName,
		"type", l.Kind)
	return l, nil
}

// GetLicense returns the license with the given ID.
func (s *Service) GetLicense(ctx context.Context, id string) (*store.License, error) {
	return s.store.GetLicense(ctx, id)
}

// ListLicenses returns a page of licenses matching the query, newest first.
func (s *Service) ListLicenses(ctx context.Context, q LicenseQuery) (*LicensePage, error) {
	page := max(q.Page, 1)
	size := q.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	size = min(size, maxPageSize)

	list, total, err := s.store.ListLicenses(ctx, store.LicenseFilter{
		Page:        store.Page{Offset: (page - 1) * size, Limit: size},
		CustomerID:  q.CustomerID,
		ProductName: q.ProductName,
		Kind:        q.Kind,
		Status:      q.Status,
	})
	if err != nil {
		return nil, err
	}
	return &LicensePage{
		Licenses:   list,
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: (total + size - 1) / size,
	}, nil
}

// RevokeLicense marks the license as revoked.
func (s *Service) RevokeLicense(ctx context.Context, id, reason string, meta RequestMeta) (*store.License, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: revocation reason cannot be empty", ErrInvalidRequest)
	}

	l, err := s.store.GetLicense(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Status == store.StatusRevoked {
		return nil, fmt.Errorf("license '%s': %w", id, ErrAlreadyRevoked)
	}

	now := s.timestamp()
	l.Status = store.StatusRevoked
	l.RevokedAt = &now
	l.RevokedReason = reason
	l.UpdatedAt = now
	if err := s.store.UpdateLicense(ctx, l); err != nil {
		return nil, err
	}

	log := logr.FromContextOrDiscard(ctx)
	if s.cache != nil {
		if err := s.cache.MarkRevoked(ctx, l.ID); err != nil {
			log.Error(err, "failed to cache revocation", "license_id", l.ID)
		}
	}

	s.audit(ctx, store.AuditEvent{
		EventType:   store.EventRevoked,
		LicenseID:   l.ID,
		CustomerID:  l.CustomerID,
		ProductName: l.ProductName,
		EventData:   "Revoked: " + reason,
	}, meta)
	s.metrics.recordRevoked()

	log.Info("license revoked", "license_id", l.ID, "reason", reason)
	return l, nil
}

// ValidateLicense verifies the license key against the caller context and
// checks that it was not revoked. Rejections are reported in the result,
// the error is set only when the revocation lookup fails.
func (s *Service) ValidateLicense(ctx context.Context, in ValidateInput, meta RequestMeta) (*ValidationResult, error) {
	target := lkm.Target{
		ProductName:    in.ProductName,
		ProductVersion: NormalizeMajorVersion(in.ProductVersion),
	}
	if in.InstallationID != "" || in.Domain != "" {
		target.Binding = &lkm.InstanceBinding{
			InstallationID: in.InstallationID,
			Domain:         in.Domain,
		}
	}

	claims, err := s.verifier.Verify(in.Token, target)
	if err != nil {
		reason := lkm.ReasonOf(err)
		result := rejected(string(reason), err.Error())
		var customerID string
		// Past the signature check the claims are authentic and can be echoed.
		if reason != lkm.ReasonMalformed && reason != lkm.ReasonInvalidSignature {
			if inspected, ierr := lkm.Inspect(in.Token); ierr == nil {
				describe(result, inspected)
				customerID = inspected.Customer.ID
			}
		}
		s.recordValidation(ctx, result, customerID, in, meta)
		return result, nil
	}

	revoked, err := s.revocationChecker().IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("revocation lookup failed: %w", err)
	}

	var result *ValidationResult
	if revoked {
		result = rejected(ReasonRevoked, "license key has been revoked")
	} else {
		result = &ValidationResult{Valid: true}
	}
	describe(result, claims)
	s.recordValidation(ctx, result, claims.Customer.ID, in, meta)
	return result, nil
}

func rejected(reason, msg string) *ValidationResult {
	return &ValidationResult{Reason: reason, Error: msg}
}

func describe(result *ValidationResult, claims *lkm.Claims) {
	result.LicenseID = claims.ID
	result.Kind = claims.Kind
	result.CustomerName = claims.Customer.Name
	if exp, ok := claims.ExpiresAt(); ok {
		result.ExpiresAt = &exp
	}
}

func (s *Service) recordValidation(ctx context.Context, result *ValidationResult, customerID string,
	in ValidateInput, meta RequestMeta) {
	event := store.AuditEvent{
		EventType:   store.EventValidated,
		LicenseID:   result.LicenseID,
		CustomerID:  customerID,
		ProductName: in.ProductName,
		EventData:   fmt.Sprintf("version=%s", in.ProductVersion),
	}
	if !result.Valid {
		event.EventType = store.EventValidationFailed
		event.EventData = fmt.Sprintf("version=%s reason=%s", in.ProductVersion, result.Reason)
	}
	s.audit(ctx, event, meta)
	s.metrics.recordValidation(result.Valid, result.Reason)

	logr.FromContextOrDiscard(ctx).V(1).Info("license validated",
		"license_id", result.LicenseID,
		"module", in.ProductName,
		"valid", result.Valid,
		"reason", result.Reason)
}
