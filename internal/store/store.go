// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a record with the same ID exists.
	ErrConflict = errors.New("already exists")
)

// DefaultLimit is applied to list queries without a limit.
const DefaultLimit = 100

// Page selects a window of a list query.
type Page struct {
	Offset int
	Limit  int
}

// normalize returns a page with a positive limit and a non-negative offset.
func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// CustomerFilter selects customers.
type CustomerFilter struct {
	Page
	ActiveOnly bool
}

// LicenseFilter selects licenses. Empty fields match any value.
type LicenseFilter struct {
	Page
	CustomerID  string
	ProductName string
	Kind        string
	Status      string
}

// AuditFilter selects audit events.
type AuditFilter struct {
	Page
	LicenseID string
}

// RevocationChecker looks up whether a license ID was revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, licenseID string) (bool, error)
}

// Store persists customers, licenses and audit events.
type Store interface {
	RevocationChecker

	CreateCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	ListCustomers(ctx context.Context, filter CustomerFilter) ([]Customer, error)
	UpdateCustomer(ctx context.Context, c *Customer) error

	// DeleteCustomer removes the customer and its licenses.
	// The audit events are kept without the license reference and the
	// IDs of the revoked licenses keep reporting as revoked.
	DeleteCustomer(ctx context.Context, id string) error

	CreateLicense(ctx context.Context, l *License) error
	GetLicense(ctx context.Context, id string) (*License, error)

	// ListLicenses returns a page of the licenses matching the filter,
	// newest first, and the total number of matches.
	ListLicenses(ctx context.Context, filter LicenseFilter) ([]License, int, error)
	UpdateLicense(ctx context.Context, l *License) error

	// ListExpirable returns the active licenses with an expiry at or before now.
	ListExpirable(ctx context.Context, now time.Time) ([]License, error)

	// ExpireLicense marks the license as expired if it is still active.
	// It reports whether the status changed.
	ExpireLicense(ctx context.Context, id string, at time.Time) (bool, error)

	// AppendAudit records the event and sets its ID.
	AppendAudit(ctx context.Context, e *AuditEvent) error

	// ListAudit returns the audit events, newest first.
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	Stats(ctx context.Context) (*Stats, error)
	Ping(ctx context.Context) error
	Close() error
}
