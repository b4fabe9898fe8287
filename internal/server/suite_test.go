// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
	"github.com/controlplaneio-fluxcd/aegis/internal/service"
	"github.com/controlplaneio-fluxcd/aegis/internal/store"
)

const testIssuer = "aegis.example.com"

var (
	testNow    = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	testSecret = []byte("0123456789abcdef0123456789abcdef")
)

type testServer struct {
	handler http.Handler
	store   store.Store
	reg     *prometheus.Registry
	token   string
}

// unhealthyStore fails the connection checks.
type unhealthyStore struct {
	store.Store
}

func (unhealthyStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func newTestServer(t *testing.T, st store.Store, mutate ...func(*Options)) *testServer {
	t.Helper()

	pub, priv, err := lkm.NewKeyPair("k1")
	if err != nil {
		t.Fatalf("failed to generate keys: %v", err)
	}
	now := func() time.Time { return testNow }
	issuer, err := lkm.NewIssuer(testIssuer, priv, lkm.WithIssuerClock(now))
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	verifier, err := lkm.NewVerifier(testIssuer, pub, lkm.WithVerifierClock(now))
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}

	if st == nil {
		st = store.NewMemoryStore()
	}
	reg := prometheus.NewRegistry()
	svc := service.New(st, issuer, verifier,
		service.WithMetrics(service.NewMetrics(reg)),
		service.WithClock(now))

	opts := Options{
		Version:     "v1.0.0-test",
		Environment: "test",
		AuthSecret:  testSecret,
		Gatherer:    reg,
		Now:         now,
	}
	for _, m := range mutate {
		m(&opts)
	}

	token, err := NewAdminToken(testSecret, "admin@example.com", time.Hour, testNow)
	if err != nil {
		t.Fatalf("failed to create admin token: %v", err)
	}

	return &testServer{
		handler: New(svc, logr.Discard(), opts).Handler(),
		store:   st,
		reg:     reg,
		token:   token,
	}
}

// do sends the request with the admin token and an optional JSON body.
func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return ts.doWithToken(t, method, path, body, ts.token)
}

func (ts *testServer) doWithToken(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func (ts *testServer) createCustomer(t *testing.T, id string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/customers", map[string]any{"id": id, "name": "Customer " + id})
	if rec.Code != http.StatusCreated {
		t.Fatalf("failed to create customer: %d %s", rec.Code, rec.Body.String())
	}
}

func (ts *testServer) issueLicense(t *testing.T, body map[string]any) store.License {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/licenses", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("failed to issue license: %d %s", rec.Code, rec.Body.String())
	}
	return decodeBody[store.License](t, rec)
}
