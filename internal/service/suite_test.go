// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
	"github.com/controlplaneio-fluxcd/aegis/internal/store"
)

const testIssuer = "aegis.example.com"

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	svc   *Service
	store *store.MemoryStore
	clock *testClock
	reg   *prometheus.Registry
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	pub, priv, err := lkm.NewKeyPair("k1")
	if err != nil {
		t.Fatalf("failed to generate keys: %v", err)
	}

	clock := &testClock{now: testNow}
	issuer, err := lkm.NewIssuer(testIssuer, priv, lkm.WithIssuerClock(clock.Now))
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	verifier, err := lkm.NewVerifier(testIssuer, pub, lkm.WithVerifierClock(clock.Now))
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}

	st := store.NewMemoryStore()
	reg := prometheus.NewRegistry()
	opts = append([]Option{WithMetrics(NewMetrics(reg)), WithClock(clock.Now)}, opts...)

	return &testEnv{
		svc:   New(st, issuer, verifier, opts...),
		store: st,
		clock: clock,
		reg:   reg,
	}
}

// counterValue returns the value of the counter with the given name and labels.
func (e *testEnv) counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := e.reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func (e *testEnv) createCustomer(t *testing.T, id string) *store.Customer {
	t.Helper()
	c, err := e.svc.CreateCustomer(context.Background(), CustomerInput{ID: id, Name: "Customer " + id})
	if err != nil {
		t.Fatalf("failed to create customer: %v", err)
	}
	return c
}

func intPtr(v int) *int {
	return &v
}

type fakeCache struct {
	mu      sync.Mutex
	revoked map[string]bool
	lookups int
}

func (f *fakeCache) IsRevoked(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.revoked[id], nil
}

func (f *fakeCache) MarkRevoked(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revoked == nil {
		f.revoked = make(map[string]bool)
	}
	f.revoked[id] = true
	return nil
}
