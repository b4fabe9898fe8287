// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-logr/logr"
	"github.com/gosimple/slug"
	"github.com/wI2L/jsondiff"

	"github.com/controlplaneio-fluxcd/aegis/internal/store"
)

const (
	maxCustomerIDLength   = 50
	maxCustomerNameLength = 200
)

var customerIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// CustomerInput holds the fields of a new customer.
// The ID is derived from the name when empty.
type CustomerInput struct {
	ID      string
	Name    string
	Email   string
	Company string
	Phone   string
	Address string
	Notes   string
}

// CustomerUpdate holds the customer fields to change. Nil fields are left untouched.
type CustomerUpdate struct {
	Name    *string
	Email   *string
	Company *string
	Phone   *string
	Address *string
	Notes   *string
	Active  *bool
}

// CustomerID returns the customer ID for the given name, e.g.
// 'ACME Corp.' becomes 'acme-corp'.
func CustomerID(name string) string {
	id := slug.Make(name)
	if len(id) > maxCustomerIDLength {
		id = strings.TrimRight(id[:maxCustomerIDLength], "-")
	}
	return id
}

func validateCustomerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: customer name cannot be empty", ErrInvalidRequest)
	}
	if len(name) > maxCustomerNameLength {
		return fmt.Errorf("%w: customer name must be at most %d characters", ErrInvalidRequest, maxCustomerNameLength)
	}
	return nil
}

// CreateCustomer stores a new active customer.
func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (*store.Customer, error) {
	if err := validateCustomerName(in.Name); err != nil {
		return nil, err
	}

	id := in.ID
	if id == "" {
		id = CustomerID(in.Name)
	}
	if len(id) > maxCustomerIDLength || !customerIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: customer ID '%s' must be 1 to %d letters, digits, '-' or '_'",
			ErrInvalidRequest, id, maxCustomerIDLength)
	}

	now := s.timestamp()
	c := &store.Customer{
		ID:        id,
		Name:      in.Name,
		Email:     in.Email,
		Company:   in.Company,
		Phone:     in.Phone,
		Address:   in.Address,
		Notes:     in.Notes,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateCustomer(ctx, c); err != nil {
		return nil, err
	}

	logr.FromContextOrDiscard(ctx).Info("customer created", "customer_id", c.ID)
	return c, nil
}

// GetCustomer returns the customer with the given ID.
func (s *Service) GetCustomer(ctx context.Context, id string) (*store.Customer, error) {
	return s.store.GetCustomer(ctx, id)
}

// ListCustomers returns a page of customers ordered by ID.
func (s *Service) ListCustomers(ctx context.Context, filter store.CustomerFilter) ([]store.Customer, error) {
	return s.store.ListCustomers(ctx, filter)
}

// UpdateCustomer applies the update to the customer with the given ID.
func (s *Service) UpdateCustomer(ctx context.Context, id string, upd CustomerUpdate) (*store.Customer, error) {
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *c

	if upd.Name != nil {
		if err := validateCustomerName(*upd.Name); err != nil {
			return nil, err
		}
		c.Name = *upd.Name
	}
	setIfNotNil(&c.Email, upd.Email)
	setIfNotNil(&c.Company, upd.Company)
	setIfNotNil(&c.Phone, upd.Phone)
	setIfNotNil(&c.Address, upd.Address)
	setIfNotNil(&c.Notes, upd.Notes)
	setIfNotNil(&c.Active, upd.Active)
	changes, err := customerChanges(before, *c)
	if err != nil {
		return nil, err
	}
	c.UpdatedAt = s.timestamp()

	if err := s.store.UpdateCustomer(ctx, c); err != nil {
		return nil, err
	}

	logr.FromContextOrDiscard(ctx).Info("customer updated", "customer_id", c.ID, "changes", changes.String())
	return c, nil
}

// customerChanges returns the JSON patch that turns before into after.
func customerChanges(before, after store.Customer) (jsondiff.Patch, error) {
	patch, err := jsondiff.Compare(before, after, jsondiff.Rationalize())
	if err != nil {
		return nil, fmt.Errorf("failed to compute customer changes: %w", err)
	}
	return patch, nil
}

// DeleteCustomer removes the customer and its licenses.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if err := s.store.DeleteCustomer(ctx, id); err != nil {
		return err
	}

	logr.FromContextOrDiscard(ctx).Info("customer deleted", "customer_id", id)
	return nil
}

func setIfNotNil[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
