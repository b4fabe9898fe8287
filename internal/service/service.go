// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
	"github.com/controlplaneio-fluxcd/aegis/internal/store"
)

var (
	// ErrInvalidRequest is returned when the request parameters are invalid.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrCustomerInactive is returned when issuing a license for an inactive customer.
	ErrCustomerInactive = errors.New("customer is not active")

	// ErrAlreadyRevoked is returned when revoking a revoked license.
	ErrAlreadyRevoked = errors.New("license is already revoked")
)

// RevocationCache speeds up the revocation lookups of the validation path.
type RevocationCache interface {
	store.RevocationChecker
	MarkRevoked(ctx context.Context, licenseID string) error
}

// RequestMeta describes the caller of an operation, recorded in the audit log.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Service orchestrates the license operations on top of the store,
// the license issuer and the license verifier.
type Service struct {
	store    store.Store
	issuer   *lkm.Issuer
	verifier *lkm.Verifier
	cache    RevocationCache
	metrics  *Metrics
	demoTTL  time.Duration
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRevocationCache puts the cache in front of the store revocation lookups.
func WithRevocationCache(cache RevocationCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithMetrics sets the collectors updated by the service.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithDefaultDemoDuration sets the duration of demo licenses issued without one.
func WithDefaultDemoDuration(d time.Duration) Option {
	return func(s *Service) {
		s.demoTTL = d
	}
}

// WithClock sets the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New returns a Service. The verifier must trust the issuer's key.
func New(st store.Store, issuer *lkm.Issuer, verifier *lkm.Verifier, opts ...Option) *Service {
	s := &Service{
		store:    st,
		issuer:   issuer,
		verifier: verifier,
		metrics:  NewMetrics(nil),
		demoTTL:  30 * 24 * time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issuer returns the license issuer.
func (s *Service) Issuer() *lkm.Issuer {
	return s.issuer
}

// PublicKeySet returns the JWKS holding the verification key.
func (s *Service) PublicKeySet() (*lkm.EdKeySet, error) {
	ks := lkm.NewPublicKeySet()
	if err := ks.AddPublicKey(s.verifier.PublicKey()); err != nil {
		return nil, err
	}
	return ks, nil
}

// Ping checks the store connection.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Stats returns the aggregated counters of the store.
func (s *Service) Stats(ctx context.Context) (*store.Stats, error) {
	return s.store.Stats(ctx)
}

// AuditLogs returns the audit events, newest first.
func (s *Service) AuditLogs(ctx context.Context, filter store.AuditFilter) ([]store.AuditEvent, error) {
	return s.store.ListAudit(ctx, filter)
}

// Fingerprint returns the instance fingerprint of an installation.
func (s *Service) Fingerprint(installationID, domain string) string {
	return lkm.Fingerprint(installationID, domain)
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}

// audit records the event, failures are logged and do not fail the operation.
func (s *Service) audit(ctx context.Context, e store.AuditEvent, meta RequestMeta) {
	e.IPAddress = meta.IPAddress
	e.UserAgent = meta.UserAgent
	e.CreatedAt = s.timestamp()
	if err := s.store.AppendAudit(ctx, &e); err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "failed to record audit event", "event_type", e.EventType, "license_id", e.LicenseID)
	}
}

func (s *Service) revocationChecker() store.RevocationChecker {
	if s.cache != nil {
		return s.cache
	}
	return s.store
}
