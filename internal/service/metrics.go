// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Validation result label values.
const (
	resultValid   = "valid"
	resultInvalid = "invalid"
)

// Metrics holds the license server collectors.
type Metrics struct {
	issued      *prometheus.CounterVec
	validations *prometheus.CounterVec
	revoked     prometheus.Counter
	expired     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil registerer leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		issued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_licenses_issued_total",
				Help: "The number of issued licenses by license type.",
			},
			[]string{"kind"},
		),
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_license_validations_total",
				Help: "The number of license validations by result and rejection reason.",
			},
			[]string{"result", "reason"},
		),
		revoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_licenses_revoked_total",
			Help: "The number of revoked licenses.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_licenses_expired_total",
			Help: "The number of licenses marked as expired by the sweeper.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.issued, m.validations, m.revoked, m.expired)
	}
	return m
}

func (m *Metrics) recordIssued(kind string) {
	m.issued.WithLabelValues(kind).Inc()
}

func (m *Metrics) recordValidation(valid bool, reason string) {
	result := resultValid
	if !valid {
		result = resultInvalid
	}
	m.validations.WithLabelValues(result, reason).Inc()
}

func (m *Metrics) recordRevoked() {
	m.revoked.Inc()
}

func (m *Metrics) recordExpired(n int) {
	m.expired.Add(float64(n))
}
