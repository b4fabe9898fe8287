// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/gomega"
)

func TestNewAdminToken(t *testing.T) {
	g := NewWithT(t)

	token, err := NewAdminToken(testSecret, "ops", time.Hour, testNow)
	g.Expect(err).ToNot(HaveOccurred())

	claims, err := ParseAdminToken(testSecret, token, testNow.Add(30*time.Minute))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(claims.Role).To(Equal(AdminRole))
	g.Expect(claims.Subject).To(Equal("ops"))

	_, err = ParseAdminToken(testSecret, token, testNow.Add(2*time.Hour))
	g.Expect(err).To(MatchError(jwt.ErrTokenExpired))

	_, err = ParseAdminToken([]byte("another-secret-another-secret-xx"), token, testNow)
	g.Expect(err).To(MatchError(jwt.ErrTokenSignatureInvalid))

	_, err = NewAdminToken(nil, "ops", time.Hour, testNow)
	g.Expect(err).To(MatchError(ContainSubstring("secret cannot be empty")))

	_, err = NewAdminToken(testSecret, "ops", 0, testNow)
	g.Expect(err).To(MatchError(ContainSubstring("TTL must be positive")))
}

func TestAdminAuthMiddleware(t *testing.T) {
	ts := newTestServer(t, nil)

	expired, err := NewAdminToken(testSecret, "ops", time.Hour, testNow.Add(-2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	viewer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Role: "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    adminTokenIssuer,
			Subject:   "viewer",
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
	}).SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Role:             AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: adminTokenIssuer},
	}).SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name   string
		token  string
		status int
	}{
		{name: "valid admin token", token: ts.token, status: http.StatusOK},
		{name: "missing token", token: "", status: http.StatusUnauthorized},
		{name: "garbage token", token: "not-a-jwt", status: http.StatusUnauthorized},
		{name: "expired token", token: expired, status: http.StatusUnauthorized},
		{name: "token without expiry", token: noExpiry, status: http.StatusUnauthorized},
		{name: "non admin role", token: viewer, status: http.StatusForbidden},
	} {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			rec := ts.doWithToken(t, http.MethodGet, "/api/v1/admin/stats", nil, tt.token)
			g.Expect(rec.Code).To(Equal(tt.status))
			if tt.status == http.StatusUnauthorized {
				g.Expect(rec.Header().Get("WWW-Authenticate")).To(HavePrefix("Bearer"))
			}
		})
	}
}
