// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package lkm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// RevocationKeySet is an offline ledger of revoked license keys.
// It can be published next to the issuer JWKS and checked by
// relying parties that cannot reach the license server.
type RevocationKeySet struct {
	// Issuer is the identifier of the entity that issued the license keys.
	Issuer string `json:"issuer"`

	// Keys maps the revoked license IDs to their revocation unix timestamps.
	Keys map[string]int64 `json:"keys"`
}

// NewRevocationKeySet creates an empty RevocationKeySet.
func NewRevocationKeySet(issuer string) *RevocationKeySet {
	return &RevocationKeySet{
		Issuer: issuer,
		Keys:   make(map[string]int64),
	}
}

// AddKey records the license ID as revoked at the given time.
// Adding an already revoked license updates its timestamp.
func (r *RevocationKeySet) AddKey(licenseID string, revokedAt time.Time) error {
	parsedUUID, err := uuid.Parse(licenseID)
	if err != nil {
		return fmt.Errorf("invalid license ID %q: %w", licenseID, err)
	}
	if parsedUUID.Version() != uuid.Version(6) {
		return fmt.Errorf("license ID %q must be a UUID v6", licenseID)
	}

	r.Keys[licenseID] = revokedAt.Unix()
	return nil
}

// RevokedAt returns the revocation time of the license ID, if revoked.
func (r *RevocationKeySet) RevokedAt(licenseID string) (time.Time, bool) {
	ts, ok := r.Keys[licenseID]
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(ts, 0).UTC(), true
}

// IsRevoked reports whether the license ID is in the set.
// The set is held in memory, the context is unused.
func (r *RevocationKeySet) IsRevoked(_ context.Context, licenseID string) (bool, error) {
	_, ok := r.Keys[licenseID]
	return ok, nil
}

// ToJSON serializes the RevocationKeySet to JSON format.
func (r *RevocationKeySet) ToJSON() ([]byte, error) {
	return json.MarshalIndent(*r, "", "  ")
}

// WriteFile writes the RevocationKeySet to a file in JSON format.
// If the file already exists, the keys are merged with the existing set.
func (r *RevocationKeySet) WriteFile(filename string) error {
	toWrite := r

	if _, err := os.Stat(filename); err == nil {
		existing, err := RevocationKeySetFromFile(filename)
		if err != nil {
			return fmt.Errorf("failed to parse existing revocation file: %w", err)
		}
		if existing.Issuer != r.Issuer {
			return fmt.Errorf("issuer mismatch: existing %q, current %q", existing.Issuer, r.Issuer)
		}

		for licenseID, ts := range r.Keys {
			existing.Keys[licenseID] = ts
		}
		toWrite = existing
	}

	data, err := toWrite.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize revocation set: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write revocation file: %w", err)
	}
	return nil
}

// RevocationKeySetFromJSON deserializes a RevocationKeySet.
// It returns an error if the issuer is missing.
func RevocationKeySetFromJSON(data []byte) (*RevocationKeySet, error) {
	var rks RevocationKeySet
	if err := json.Unmarshal(data, &rks); err != nil {
		return nil, err
	}
	if rks.Issuer == "" {
		return nil, fmt.Errorf("missing issuer")
	}
	if rks.Keys == nil {
		rks.Keys = make(map[string]int64)
	}
	return &rks, nil
}

// RevocationKeySetFromFile reads a RevocationKeySet from a JSON file.
func RevocationKeySetFromFile(filename string) (*RevocationKeySet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read revocation file: %w", err)
	}
	return RevocationKeySetFromJSON(data)
}
