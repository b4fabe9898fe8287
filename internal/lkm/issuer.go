// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package lkm

import (
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
)

// IssueRequest holds the parameters of a license key.
type IssueRequest struct {
	// CustomerID is the customer identifier.
	CustomerID string

	// CustomerName is the customer display name.
	CustomerName string

	// ProductName is the technical name of the licensed module.
	ProductName string

	// AllowedVersions is the set of allowed major versions.
	AllowedVersions []string

	// Kind is the license type.
	Kind Kind

	// Duration is the validity period, required for subscription and demo
	// licenses and ignored for perpetual licenses.
	Duration Optional[time.Duration]

	// Binding binds the license to a single installation, if set.
	Binding *InstanceBinding
}

// MaxDurationDays is the longest validity period a license can be issued for.
const MaxDurationDays = 36500

// DurationFromDays converts a validity period in days to a duration,
// rejecting values outside [1, MaxDurationDays].
func DurationFromDays(days int) (time.Duration, error) {
	if days < 1 || days > MaxDurationDays {
		return 0, newError(ReasonInvalidParameters, "duration must be between 1 and %d days, got %d", MaxDurationDays, days)
	}
	return time.Duration(days) * 24 * time.Hour, nil
}

// SignedLicense is an issued license key.
type SignedLicense struct {
	// Token is the signed JWT.
	Token string

	// Claims is the payload of the token.
	Claims Claims
}

// Issuer signs license keys with an Ed25519 private key.
// An Issuer is immutable and safe for concurrent use.
type Issuer struct {
	issuer string
	key    *EdPrivateKey
	now    func() time.Time
	newID  func() (string, error)
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerClock sets the clock used for the issued at and expiry claims.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

// WithIDGenerator sets the function that generates the license IDs.
func WithIDGenerator(newID func() (string, error)) IssuerOption {
	return func(i *Issuer) {
		i.newID = newID
	}
}

// NewIssuer creates an Issuer for the given issuer identity and private key.
func NewIssuer(issuer string, key *EdPrivateKey, opts ...IssuerOption) (*Issuer, error) {
	if issuer == "" {
		return nil, newError(ReasonInvalidParameters, "issuer (iss) cannot be empty")
	}
	if key == nil || len(key.Key) == 0 {
		return nil, newError(ReasonKeyLoadFailure, "private key is required")
	}

	i := &Issuer{
		issuer: issuer,
		key:    key,
		now:    time.Now,
		newID:  newLicenseID,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// NewIssuerFromFile creates an Issuer with the private key read from a PEM file.
func NewIssuerFromFile(issuer, privateKeyPath, keyID string, opts ...IssuerOption) (*Issuer, error) {
	key, err := EdPrivateKeyFromFile(privateKeyPath, keyID)
	if err != nil {
		return nil, err
	}
	return NewIssuer(issuer, key, opts...)
}

// GetIssuer returns the issuer identity.
func (i *Issuer) GetIssuer() string {
	return i.issuer
}

// GetKeyID returns the ID of the signing key.
func (i *Issuer) GetKeyID() string {
	return i.key.KeyID
}

// PublicKey returns the public key matching the signing key.
func (i *Issuer) PublicKey() *EdPublicKey {
	return i.key.Public()
}

// NewClaims validates the request and builds the claims of a license key.
func (i *Issuer) NewClaims(req IssueRequest) (*Claims, error) {
	if err := validateIssueRequest(req); err != nil {
		return nil, err
	}

	id, err := i.newID()
	if err != nil {
		return nil, newError(ReasonInvalidParameters, "failed to generate license ID: %v", err)
	}

	issuedAt := i.now().Unix()
	claims := &Claims{
		ID:       id,
		Issuer:   i.issuer,
		IssuedAt: issuedAt,
		Kind:     req.Kind,
		Customer: Customer{
			ID:   req.CustomerID,
			Name: req.CustomerName,
		},
		Product: Product{
			Name:            req.ProductName,
			AllowedVersions: canonicalVersions(req.AllowedVersions),
		},
	}

	if req.Kind.RequiresExpiry() {
		d, _ := req.Duration.Get()
		seconds := int64(math.Ceil(d.Seconds()))
		claims.Expiry = Some(issuedAt + seconds)
	}

	if req.Binding != nil {
		claims.InstanceFingerprint = Some(req.Binding.Fingerprint())
	}

	return claims, nil
}

// Issue builds the claims for the request and signs them.
func (i *Issuer) Issue(req IssueRequest) (*SignedLicense, error) {
	claims, err := i.NewClaims(req)
	if err != nil {
		return nil, err
	}

	token, err := i.Sign(claims)
	if err != nil {
		return nil, err
	}

	return &SignedLicense{
		Token:  token,
		Claims: *claims,
	}, nil
}

// Sign returns the claims as a JWT signed with the issuer's private key.
func (i *Issuer) Sign(claims *Claims) (string, error) {
	payload, err := claims.ToJSON()
	if err != nil {
		return "", err
	}
	return GenerateSignedToken(payload, i.key)
}

// validateIssueRequest checks the request parameters.
func validateIssueRequest(req IssueRequest) error {
	if !req.Kind.IsValid() {
		return newError(ReasonInvalidParameters, "license type must be one of %v, got %q", Kinds, req.Kind)
	}
	if req.CustomerID == "" {
		return newError(ReasonInvalidParameters, "customer ID cannot be empty")
	}
	if req.CustomerName == "" {
		return newError(ReasonInvalidParameters, "customer name cannot be empty")
	}
	if req.ProductName == "" {
		return newError(ReasonInvalidParameters, "module name cannot be empty")
	}
	if len(req.AllowedVersions) == 0 {
		return newError(ReasonInvalidParameters, "allowed versions cannot be empty")
	}
	if slices.Contains(req.AllowedVersions, "") {
		return newError(ReasonInvalidParameters, "allowed versions cannot contain an empty version")
	}

	d, ok := req.Duration.Get()
	if req.Kind.RequiresExpiry() && !ok {
		return newError(ReasonInvalidParameters, "%s licenses require a duration", req.Kind)
	}
	if ok && d <= 0 {
		return newError(ReasonInvalidParameters, "duration must be positive, got %s", d)
	}
	if ok && d > MaxDurationDays*24*time.Hour {
		return newError(ReasonInvalidParameters, "duration cannot exceed %d days", MaxDurationDays)
	}

	if req.Binding != nil && !req.Binding.IsComplete() {
		return newError(ReasonInvalidParameters, "instance binding requires both installation ID and domain")
	}
	return nil
}

// newLicenseID returns a chronologically sortable UUID v6.
func newLicenseID() (string, error) {
	id, err := uuid.NewV6()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
