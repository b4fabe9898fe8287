// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package lkm

import (
	"errors"
	"fmt"
)

// Reason classifies why a license key was rejected.
type Reason string

const (
	// ReasonMalformed is used when the token or its claims cannot be decoded,
	// or when a mandatory claim is missing.
	ReasonMalformed Reason = "Malformed"

	// ReasonInvalidSignature is used when the signature does not match the
	// verification key.
	ReasonInvalidSignature Reason = "InvalidSignature"

	// ReasonExpired is used when the expiry claim is in the past.
	ReasonExpired Reason = "Expired"

	// ReasonUntrustedIssuer is used when the issuer claim does not match
	// the trusted issuer.
	ReasonUntrustedIssuer Reason = "UntrustedIssuer"

	// ReasonProductMismatch is used when the license is for another module.
	ReasonProductMismatch Reason = "ProductMismatch"

	// ReasonVersionNotAllowed is used when the host major version
	// is not part of the allowed versions.
	ReasonVersionNotAllowed Reason = "VersionNotAllowed"

	// ReasonBindingContextMissing is used when the license is bound to an
	// installation but the caller did not supply the installation details.
	ReasonBindingContextMissing Reason = "BindingContextMissing"

	// ReasonInstanceMismatch is used when the license is bound to
	// a different installation.
	ReasonInstanceMismatch Reason = "InstanceMismatch"

	// ReasonPolicyViolation is used when the claims break a license type policy.
	ReasonPolicyViolation Reason = "PolicyViolation"

	// ReasonInvalidParameters is used when a license cannot be issued
	// with the given parameters.
	ReasonInvalidParameters Reason = "InvalidParameters"

	// ReasonKeyLoadFailure is used when the key material cannot be loaded.
	ReasonKeyLoadFailure Reason = "KeyLoadFailure"
)

var reasonMessages = map[Reason]string{
	ReasonMalformed:             "malformed license key",
	ReasonInvalidSignature:      "invalid license key signature",
	ReasonExpired:               "license key has expired",
	ReasonUntrustedIssuer:       "license key issuer is not trusted",
	ReasonProductMismatch:       "license key is for a different module",
	ReasonVersionNotAllowed:     "version not allowed by license key",
	ReasonBindingContextMissing: "license key is bound to an instance, but instance details not provided",
	ReasonInstanceMismatch:      "license key is bound to a different instance",
	ReasonPolicyViolation:       "license key violates the license type policy",
	ReasonInvalidParameters:     "invalid license parameters",
	ReasonKeyLoadFailure:        "failed to load key",
}

// Error is the error type returned by the Issuer, the Verifier and the key loaders.
// Errors are compared by Reason, the Detail is informative only.
type Error struct {
	Reason Reason
	Detail string
}

// Error returns the message of the reason followed by the detail, if any.
func (e *Error) Error() string {
	msg, ok := reasonMessages[e.Reason]
	if !ok {
		msg = string(e.Reason)
	}
	if e.Detail == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", msg, e.Detail)
}

// Is reports whether the target is an *Error with the same Reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

var (
	ErrMalformed             = &Error{Reason: ReasonMalformed}
	ErrInvalidSignature      = &Error{Reason: ReasonInvalidSignature}
	ErrExpired               = &Error{Reason: ReasonExpired}
	ErrUntrustedIssuer       = &Error{Reason: ReasonUntrustedIssuer}
	ErrProductMismatch       = &Error{Reason: ReasonProductMismatch}
	ErrVersionNotAllowed     = &Error{Reason: ReasonVersionNotAllowed}
	ErrBindingContextMissing = &Error{Reason: ReasonBindingContextMissing}
	ErrInstanceMismatch      = &Error{Reason: ReasonInstanceMismatch}
	ErrPolicyViolation       = &Error{Reason: ReasonPolicyViolation}
	ErrInvalidParameters     = &Error{Reason: ReasonInvalidParameters}
	ErrKeyLoadFailure        = &Error{Reason: ReasonKeyLoadFailure}
)

// newError returns an *Error with the given reason and a formatted detail.
func newError(reason Reason, format string, args ...any) *Error {
	return &Error{
		Reason: reason,
		Detail: fmt.Sprintf(format, args...),
	}
}

// ReasonOf returns the Reason of the first *Error in the err chain,
// or an empty Reason if there is none.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
