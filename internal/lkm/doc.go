// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package lkm (License Key Management) issues and verifies the signed,
// time-bounded license keys that gate access to the modules of a host
// application.
//
// The lkm package is built on industry-standard cryptographic primitives:
//
//   - Ed25519 digital signatures compliant with FIPS 186-5
//   - SHA-256 hashing for instance fingerprints
//   - PEM encoded PKCS #8 and PKIX keys for key material on disk
//   - JSON Web Key (JWK) format for publishing verification keys
//   - JSON Web Token (JWT) format following RFC 7519 for standardized claims
//   - UUID v6 for unique, chronologically sortable license identifiers
//
// A license key carries the customer, the module technical name, the set of
// allowed major versions of the host application and the license type:
//
//   - perpetual licenses never carry an expiry claim
//   - subscription and demo licenses always expire
//   - licenses can optionally be bound to a single installation through a
//     fingerprint of the installation ID and domain
//
// The Issuer and Verifier types hold their key material immutably and are
// safe for concurrent use. The Verifier walks an ordered list of checks and
// stops at the first failure, so callers always observe the same error for
// the same token and target. Revocation is not part of the verification
// pipeline, callers look up the license ID in their own revocation store
// after Verify succeeds.
package lkm
