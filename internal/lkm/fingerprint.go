// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package lkm

import (
	_ "crypto/sha256"

	"github.com/opencontainers/go-digest"
)

// FingerprintAlgorithm is the digest algorithm used for instance fingerprints.
const FingerprintAlgorithm = digest.SHA256

// InstanceBinding identifies a single installation of the host application.
type InstanceBinding struct {
	// InstallationID is the unique identifier of the installation,
	// e.g. the database UUID.
	InstallationID string `json:"installation_id"`

	// Domain is the domain name the installation is served on.
	Domain string `json:"domain"`
}

// IsComplete reports whether both the installation ID and the domain are set.
func (b *InstanceBinding) IsComplete() bool {
	return b != nil && b.InstallationID != "" && b.Domain != ""
}

// Fingerprint returns the instance fingerprint of the binding.
func (b *InstanceBinding) Fingerprint() string {
	return Fingerprint(b.InstallationID, b.Domain)
}

// Fingerprint computes the instance fingerprint for the given installation ID
// and domain in the format 'sha256:<hex>'. The installation ID always comes
// before the domain in the digested string.
func Fingerprint(installationID, domain string) string {
	return FingerprintAlgorithm.FromString(installationID + ":" + domain).String()
}
