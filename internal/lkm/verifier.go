// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package lkm

import (
	"time"

	"github.com/go-jose/go-jose/v4"
)

// Target is the context a license key is verified against.
type Target struct {
	// ProductName is the technical name of the module requesting access.
	ProductName string

	// ProductVersion is the major version of the host application.
	ProductVersion string

	// Binding identifies the installation of the caller.
	// It is required only for license keys bound to an instance.
	Binding *InstanceBinding
}

// expectation holds what a license key is checked against
// during a single verification.
type expectation struct {
	issuer string
	target Target
	now    time.Time
}

// check is a single verification rule, a pure function
// of the claims and the expectation.
type check func(claims *Claims, want expectation) error

// checks is the verification pipeline, executed in order.
// The first failing check determines the error returned to the caller.
var checks = []check{
	checkMandatoryClaims,
	checkExpiry,
	checkIssuer,
	checkProduct,
	checkVersion,
	checkBinding,
	checkKindPolicy,
}

// Verifier validates license keys signed by a trusted issuer.
// A Verifier is immutable and safe for concurrent use.
type Verifier struct {
	issuer string
	key    *EdPublicKey
	now    func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithVerifierClock sets the clock used for the expiry check.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a Verifier trusting the given issuer and public key.
func NewVerifier(issuer string, key *EdPublicKey, opts ...VerifierOption) (*Verifier, error) {
	if issuer == "" {
		return nil, newError(ReasonKeyLoadFailure, "trusted issuer cannot be empty")
	}
	if key == nil || len(key.Key) == 0 {
		return nil, newError(ReasonKeyLoadFailure, "public key is required")
	}

	v := &Verifier{
		issuer: issuer,
		key:    key,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// NewVerifierFromFile creates a Verifier with the public key read from a PEM file.
func NewVerifierFromFile(issuer, publicKeyPath, keyID string, opts ...VerifierOption) (*Verifier, error) {
	key, err := EdPublicKeyFromFile(publicKeyPath, keyID)
	if err != nil {
		return nil, err
	}
	return NewVerifier(issuer, key, opts...)
}

// GetIssuer returns the trusted issuer identity.
func (v *Verifier) GetIssuer() string {
	return v.issuer
}

// PublicKey returns the verification key.
func (v *Verifier) PublicKey() *EdPublicKey {
	return v.key
}

// Verify checks the token signature and runs the verification pipeline
// against the target. On success, it returns the license claims.
// Revocation is not checked, callers must look up the license ID
// after Verify succeeds.
func (v *Verifier) Verify(token string, target Target) (*Claims, error) {
	now := v.now()

	payload, err := verifySignedToken(token, v.key)
	if err != nil {
		return nil, err
	}

	claims, err := claimsFromJSON(payload)
	if err != nil {
		return nil, err
	}

	want := expectation{
		issuer: v.issuer,
		target: target,
		now:    now,
	}
	for _, c := range checks {
		if err := c(claims, want); err != nil {
			return nil, err
		}
	}

	return claims, nil
}

// Inspect decodes the claims of a token without verifying the signature.
// The result must only be used for display purposes, never to grant access.
func Inspect(token string) (*Claims, error) {
	jws, err := parseSignedToken(token)
	if err != nil {
		return nil, err
	}
	return claimsFromJSON(jws.UnsafePayloadWithoutVerification())
}

// InspectHeader returns the protected header of a token without verifying the signature.
func InspectHeader(token string) (*jose.Header, error) {
	jws, err := parseSignedToken(token)
	if err != nil {
		return nil, err
	}
	return &jws.Signatures[0].Protected, nil
}

func checkMandatoryClaims(claims *Claims, _ expectation) error {
	switch {
	case claims.ID == "":
		return newError(ReasonMalformed, "missing license ID (jti) claim")
	case claims.Issuer == "":
		return newError(ReasonMalformed, "missing issuer (iss) claim")
	case claims.IssuedAt <= 0:
		return newError(ReasonMalformed, "missing issued at (iat) claim")
	}
	return nil
}

func checkExpiry(claims *Claims, want expectation) error {
	expiry, ok := claims.Expiry.Get()
	if !ok {
		return nil
	}
	if want.now.Unix() >= expiry {
		return newError(ReasonExpired, "expired at %s",
			time.Unix(expiry, 0).UTC().Format(time.RFC3339))
	}
	return nil
}

func checkIssuer(claims *Claims, want expectation) error {
	if claims.Issuer != want.issuer {
		return newError(ReasonUntrustedIssuer, "issuer %q is not trusted", claims.Issuer)
	}
	return nil
}

func checkProduct(claims *Claims, want expectation) error {
	if claims.Product.Name != want.target.ProductName {
		return newError(ReasonProductMismatch, "license key is for %q, not %q",
			claims.Product.Name, want.target.ProductName)
	}
	return nil
}

func checkVersion(claims *Claims, want expectation) error {
	if !claims.AllowsVersion(want.target.ProductVersion) {
		return newError(ReasonVersionNotAllowed, "version %q not in %v",
			want.target.ProductVersion, claims.Product.AllowedVersions)
	}
	return nil
}

// checkBinding enforces the instance binding only when
// the claims carry a fingerprint.
func checkBinding(claims *Claims, want expectation) error {
	fingerprint, ok := claims.InstanceFingerprint.Get()
	if !ok {
		return nil
	}
	if !want.target.Binding.IsComplete() {
		return newError(ReasonBindingContextMissing,
			"installation ID and domain are required")
	}
	if want.target.Binding.Fingerprint() != fingerprint {
		return newError(ReasonInstanceMismatch, "fingerprint %s does not match", fingerprint)
	}
	return nil
}

// checkKindPolicy rejects demo license keys without expiry.
func checkKindPolicy(claims *Claims, _ expectation) error {
	if claims.Kind == KindDemo && !claims.Expiry.IsPresent() {
		return newError(ReasonPolicyViolation, "demo license keys must expire")
	}
	return nil
}
