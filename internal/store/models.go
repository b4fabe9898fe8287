// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package store

import (
	"time"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
)

// Status is the lifecycle state of an issued license.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusRevoked   Status = "revoked"
	StatusSuspended Status = "suspended"
)

// Statuses lists the recognized license statuses.
var Statuses = []Status{StatusActive, StatusExpired, StatusRevoked, StatusSuspended}

// Audit event types.
const (
	EventIssued           = "issued"
	EventValidated        = "validated"
	EventValidationFailed = "validation_failed"
	EventRevoked          = "revoked"
	EventExpired          = "expired"
)

// Customer is a licensee.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Company   string    `json:"company,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// License is the record of an issued license key.
type License struct {
	ID                  string     `json:"id"`
	CustomerID          string     `json:"customer_id"`
	ProductName         string     `json:"module_name"`
	Kind                lkm.Kind   `json:"license_type"`
	AllowedVersions     []string   `json:"allowed_major_versions"`
	IssuedAt            time.Time  `json:"issued_at"`
	ExpiresAt           *time.Time `json:"expires_at"`
	Status              Status     `json:"status"`
	RevokedAt           *time.Time `json:"revoked_at,omitempty"`
	RevokedReason       string     `json:"revoked_reason,omitempty"`
	InstanceFingerprint string     `json:"instance_fingerprint,omitempty"`
	Token               string     `json:"token"`
	KeyID               string     `json:"key_id"`
	Notes               string     `json:"notes,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsExpiredAt reports whether the license has an expiry at or before now.
func (l *License) IsExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// AuditEvent records a license operation.
type AuditEvent struct {
	ID          int64     `json:"id"`
	EventType   string    `json:"event_type"`
	LicenseID   string    `json:"license_id,omitempty"`
	CustomerID  string    `json:"customer_id,omitempty"`
	ProductName string    `json:"module_name,omitempty"`
	EventData   string    `json:"event_data,omitempty"`
	IPAddress   string    `json:"ip_address,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CustomerStats counts the customers by state.
type CustomerStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

// LicenseStats counts the licenses by state and kind.
type LicenseStats struct {
	Total   int              `json:"total"`
	Active  int              `json:"active"`
	Revoked int              `json:"revoked"`
	ByKind  map[lkm.Kind]int `json:"by_type"`
}

// AuditStats counts the audit events.
type AuditStats struct {
	Total int `json:"total"`
}

// Stats is the aggregated view of the store.
type Stats struct {
	Customers CustomerStats `json:"customers"`
	Licenses  LicenseStats  `json:"licenses"`
	AuditLogs AuditStats    `json:"audit_logs"`
}

func newLicenseStats() LicenseStats {
	byKind := make(map[lkm.Kind]int, len(lkm.Kinds))
	for _, k := range lkm.Kinds {
		byKind[k] = 0
	}
	return LicenseStats{ByKind: byKind}
}
