// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// AdminRole is the role claim required by the admin endpoints.
	AdminRole = "admin"

	adminTokenIssuer = "aegis-admin"
)

// AdminClaims are the claims of an admin API token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewAdminToken returns an HS256 signed admin token for the subject.
func NewAdminToken(secret []byte, subject string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("admin token secret cannot be empty")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("admin token TTL must be positive, got %s", ttl)
	}
	claims := AdminClaims{
		Role: AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    adminTokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseAdminToken verifies the token signature, issuer and expiry.
func ParseAdminToken(secret []byte, raw string, now time.Time) (*AdminClaims, error) {
	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(adminTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (s *Server) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		log := logr.FromContextOrDiscard(r.Context())
		claims, err := ParseAdminToken(s.opts.AuthSecret, raw, s.opts.Now())
		if err != nil {
			log.V(1).Info("admin token rejected", "error", err.Error())
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if claims.Role != AdminRole {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}

		ctx := logr.NewContext(r.Context(), log.WithValues("admin", claims.Subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
