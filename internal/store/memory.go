// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps all records in memory.
// It is safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	customers   map[string]*Customer
	licenses    map[string]*License
	tombstones  map[string]time.Time
	audit       []AuditEvent
	nextAuditID int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers:   make(map[string]*Customer),
		licenses:    make(map[string]*License),
		tombstones:  make(map[string]time.Time),
		nextAuditID: 1,
	}
}

func (m *MemoryStore) CreateCustomer(_ context.Context, c *Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[c.ID]; ok {
		return fmt.Errorf("customer '%s' %w", c.ID, ErrConflict)
	}
	cp := *c
	m.customers[c.ID] = &cp
	return nil
}

func (m *MemoryStore) GetCustomer(_ context.Context, id string) (*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer '%s' %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) ListCustomers(_ context.Context, filter CustomerFilter) ([]Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []Customer
	for _, c := range m.customers {
		if filter.ActiveOnly && !c.Active {
			continue
		}
		list = append(list, *c)
	}
	slices.SortFunc(list, func(a, b Customer) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return paginate(list, filter.Page), nil
}

func (m *MemoryStore) UpdateCustomer(_ context.Context, c *Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[c.ID]; !ok {
		return fmt.Errorf("customer '%s' %w", c.ID, ErrNotFound)
	}
	cp := *c
	m.customers[c.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteCustomer(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[id]; !ok {
		return fmt.Errorf("customer '%s' %w", id, ErrNotFound)
	}
	delete(m.customers, id)

	deleted := make(map[string]bool)
	for lid, l := range m.licenses {
		if l.CustomerID != id {
			continue
		}
		if l.Status == StatusRevoked {
			m.tombstones[lid] = *cmp.Or(l.RevokedAt, &l.UpdatedAt)
		}
		deleted[lid] = true
		delete(m.licenses, lid)
	}
	for i := range m.audit {
		if deleted[m.audit[i].LicenseID] {
			m.audit[i].LicenseID = ""
		}
	}
	return nil
}

func (m *MemoryStore) CreateLicense(_ context.Context, l *License) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[l.CustomerID]; !ok {
		return fmt.Errorf("customer '%s' %w", l.CustomerID, ErrNotFound)
	}
	if _, ok := m.licenses[l.ID]; ok {
		return fmt.Errorf("license '%s' %w", l.ID, ErrConflict)
	}
	m.licenses[l.ID] = cloneLicense(l)
	return nil
}

func (m *MemoryStore) GetLicense(_ context.Context, id string) (*License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.licenses[id]
	if !ok {
		return nil, fmt.Errorf("license '%s' %w", id, ErrNotFound)
	}
	return cloneLicense(l), nil
}

func (m *MemoryStore) ListLicenses(_ context.Context, filter LicenseFilter) ([]License, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []License
	for _, l := range m.licenses {
		if !filter.matches(l) {
			continue
		}
		list = append(list, *cloneLicense(l))
	}
	slices.SortFunc(list, func(a, b License) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return paginate(list, filter.Page), len(list), nil
}

func (f LicenseFilter) matches(l *License) bool {
	return (f.CustomerID == "" || f.CustomerID == l.CustomerID) &&
		(f.ProductName == "" || f.ProductName == l.ProductName) &&
		(f.Kind == "" || f.Kind == string(l.Kind)) &&
		(f.Status == "" || f.Status == string(l.Status))
}

func (m *MemoryStore) UpdateLicense(_ context.Context, l *License) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.licenses[l.ID]; !ok {
		return fmt.Errorf("license '%s' %w", l.ID, ErrNotFound)
	}
	m.licenses[l.ID] = cloneLicense(l)
	return nil
}

func (m *MemoryStore) IsRevoked(_ context.Context, licenseID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.tombstones[licenseID]; ok {
		return true, nil
	}
	l, ok := m.licenses[licenseID]
	return ok && l.Status == StatusRevoked, nil
}

func (m *MemoryStore) ListExpirable(_ context.Context, now time.Time) ([]License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []License
	for _, l := range m.licenses {
		if l.Status == StatusActive && l.IsExpiredAt(now) {
			list = append(list, *cloneLicense(l))
		}
	}
	slices.SortFunc(list, func(a, b License) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return list, nil
}

func (m *MemoryStore) ExpireLicense(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.licenses[id]
	if !ok {
		return false, fmt.Errorf("license '%s' %w", id, ErrNotFound)
	}
	if l.Status != StatusActive {
		return false, nil
	}
	l.Status = StatusExpired
	l.UpdatedAt = at
	return true, nil
}

func (m *MemoryStore) AppendAudit(_ context.Context, e *AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.ID = m.nextAuditID
	m.nextAuditID++
	m.audit = append(m.audit, *e)
	return nil
}

func (m *MemoryStore) ListAudit(_ context.Context, filter AuditFilter) ([]AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []AuditEvent
	for _, e := range slices.Backward(m.audit) {
		if filter.LicenseID != "" && e.LicenseID != filter.LicenseID {
			continue
		}
		list = append(list, e)
	}
	return paginate(list, filter.Page), nil
}

func (m *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{Licenses: newLicenseStats()}
	for _, c := range m.customers {
		stats.Customers.Total++
		if c.Active {
			stats.Customers.Active++
		} else {
			stats.Customers.Inactive++
		}
	}
	for _, l := range m.licenses {
		stats.Licenses.Total++
		stats.Licenses.ByKind[l.Kind]++
		switch l.Status {
		case StatusActive:
			stats.Licenses.Active++
		case StatusRevoked:
			stats.Licenses.Revoked++
		}
	}
	stats.AuditLogs.Total = len(m.audit)
	return stats, nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func cloneLicense(l *License) *License {
	cp := *l
	cp.AllowedVersions = slices.Clone(l.AllowedVersions)
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		cp.ExpiresAt = &t
	}
	if l.RevokedAt != nil {
		t := *l.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}

func paginate[T any](list []T, page Page) []T {
	page = page.normalize()
	if page.Offset >= len(list) {
		return []T{}
	}
	end := min(page.Offset+page.Limit, len(list))
	return list[page.Offset:end]
}
