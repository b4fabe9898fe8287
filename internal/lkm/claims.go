// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package lkm

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Kind is the type of license.
type Kind string

const (
	// KindPerpetual licenses never expire.
	KindPerpetual Kind = "perpetual"

	// KindSubscription licenses expire after the subscription duration.
	KindSubscription Kind = "subscription"

	// KindDemo licenses are time limited evaluation licenses.
	KindDemo Kind = "demo"
)

// Kinds lists the recognized license kinds.
var Kinds = []Kind{KindPerpetual, KindSubscription, KindDemo}

// IsValid reports whether k is a recognized license kind.
func (k Kind) IsValid() bool {
	return slices.Contains(Kinds, k)
}

// RequiresExpiry reports whether licenses of this kind must expire.
func (k Kind) RequiresExpiry() bool {
	return k == KindSubscription || k == KindDemo
}

// ParseKind returns the Kind for the given name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", newError(ReasonInvalidParameters, "license type must be one of %v, got %q", Kinds, s)
	}
	return k, nil
}

// Customer identifies the licensee.
type Customer struct {
	// ID is the customer identifier.
	ID string `json:"id"`

	// Name is the customer display name.
	Name string `json:"name"`
}

// Product identifies the licensed module and the
// major versions of the host application it may run on.
type Product struct {
	// Name is the technical name of the licensed module.
	Name string `json:"technical_name"`

	// AllowedVersions is the list of allowed major versions
	// of the host application, e.g. ["17", "18"].
	AllowedVersions []string `json:"allowed_major_versions"`
}

// Claims represents the payload of a license key. It contains the
// standard claims defined in RFC 7519 (JSON Web Token) and the
// custom claims of the license.
// RFC7519: https://datatracker.ietf.org/doc/rfc7519
//
// The field order of the struct is the canonical serialization order
// of the claims and must not change.
type Claims struct {
	// ID is the unique identifier UUID v6 for the license key
	// (RFC 7519 JTI claim).
	// +required
	ID string `json:"jti"`

	// Issuer is the identifier of the entity that issued the license key
	// (RFC 7519 ISS claim).
	// +required
	Issuer string `json:"iss"`

	// IssuedAt is the time when the license key was issued in Unix timestamp format
	// (RFC 7519 IAT claim).
	// +required
	IssuedAt int64 `json:"iat"`

	// Expiry is the expiration time of the license key in Unix timestamp format
	// (RFC 7519 EXP claim). It is absent for perpetual licenses.
	// +optional
	Expiry Optional[int64] `json:"exp,omitzero"`

	// Kind is the license type.
	// +required
	Kind Kind `json:"license_type"`

	// Customer is the licensee.
	// +required
	Customer Customer `json:"customer"`

	// Product is the licensed module.
	// +required
	Product Product `json:"module"`

	// InstanceFingerprint binds the license key to a single installation.
	// +optional
	InstanceFingerprint Optional[string] `json:"instance_fingerprint,omitzero"`
}

// ExpiresAt returns the expiry time and whether the license key expires.
func (c *Claims) ExpiresAt() (time.Time, bool) {
	exp, ok := c.Expiry.Get()
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(exp, 0).UTC(), true
}

// IssuedAtTime returns the issued at claim as time.
func (c *Claims) IssuedAtTime() time.Time {
	return time.Unix(c.IssuedAt, 0).UTC()
}

// IsBound reports whether the license key is bound to an installation.
func (c *Claims) IsBound() bool {
	return c.InstanceFingerprint.IsPresent()
}

// AllowsVersion reports whether the given major version is allowed.
func (c *Claims) AllowsVersion(version string) bool {
	return slices.Contains(c.Product.AllowedVersions, version)
}

// ToJSON returns the canonical JSON encoding of the claims.
func (c *Claims) ToJSON() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal license claims: %w", err)
	}
	return data, nil
}

// String returns an indented JSON representation of the claims.
func (c Claims) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "invalid license key"
	}
	return string(data)
}

// claimsFromJSON decodes the claims from a token payload.
func claimsFromJSON(payload []byte) (*Claims, error) {
	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, newError(ReasonMalformed, "failed to parse claims: %v", err)
	}
	return &c, nil
}

// canonicalVersions returns a sorted copy of versions without duplicates.
func canonicalVersions(versions []string) []string {
	out := slices.Clone(versions)
	slices.Sort(out)
	return slices.Compact(out)
}
