// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package lkm

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-jose/go-jose/v4"
)

const keyUseSignature = "sig"

// EdKeySet is the JWKS document published by the license server.
// Clients select the verification key by the kid header of a license key.
type EdKeySet struct {
	Keys []jose.JSONWebKey `json:"keys"`
}

// NewPublicKeySet returns an empty key set.
func NewPublicKeySet() *EdKeySet {
	return &EdKeySet{Keys: []jose.JSONWebKey{}}
}

func (k *EdKeySet) has(keyID string) bool {
	for _, jwk := range k.Keys {
		if jwk.KeyID == keyID {
			return true
		}
	}
	return false
}

// AddPublicKey puts the key at the front of the set, so that the
// newest signing key is listed first. Key IDs must be unique.
func (k *EdKeySet) AddPublicKey(key *EdPublicKey) error {
	switch {
	case key == nil:
		return errors.New("public key is required")
	case key.KeyID == "":
		return errors.New("key ID is required")
	case k.has(key.KeyID):
		return fmt.Errorf("key with ID %s already exists in the set", key.KeyID)
	}

	k.Keys = append([]jose.JSONWebKey{{
		Key:       key.Key,
		KeyID:     key.KeyID,
		Algorithm: string(jose.EdDSA),
		Use:       keyUseSignature,
	}}, k.Keys...)
	return nil
}

// PublicKey returns the Ed25519 signing key with the given ID.
func (k *EdKeySet) PublicKey(keyID string) (*EdPublicKey, error) {
	for _, jwk := range k.Keys {
		if jwk.KeyID != keyID {
			continue
		}
		if jwk.Algorithm != string(jose.EdDSA) || jwk.Use != keyUseSignature {
			return nil, newError(ReasonKeyLoadFailure,
				"key %s must have alg %s and use %s, got alg %q and use %q",
				keyID, jose.EdDSA, keyUseSignature, jwk.Algorithm, jwk.Use)
		}
		pub, ok := jwk.Key.(ed25519.PublicKey)
		if !ok {
			return nil, newError(ReasonKeyLoadFailure, "key %s is not an Ed25519 public key", keyID)
		}
		return &EdPublicKey{Key: pub, KeyID: jwk.KeyID}, nil
	}
	return nil, newError(ReasonKeyLoadFailure, "no public key found with ID %s", keyID)
}

func (k *EdKeySet) ToJSON() ([]byte, error) {
	return json.MarshalIndent(k, "", "  ")
}

// WriteFile saves the set as JSON. The keys of an existing file are kept
// after the new ones, a key ID present in both is an error.
func (k *EdKeySet) WriteFile(filePath string) error {
	if len(k.Keys) == 0 {
		return errors.New("cannot write an empty key set")
	}

	out := &EdKeySet{Keys: k.Keys}
	existing, err := EdKeySetFromFile(filePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("failed to read existing key set: %w", err)
	default:
		for _, jwk := range k.Keys {
			if existing.has(jwk.KeyID) {
				return fmt.Errorf("key with ID %s already exists in file %s", jwk.KeyID, filePath)
			}
		}
		out.Keys = append(append([]jose.JSONWebKey{}, k.Keys...), existing.Keys...)
	}

	data, err := out.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}

// EdKeySetFromJSON decodes a non-empty JWKS document.
func EdKeySetFromJSON(data []byte) (*EdKeySet, error) {
	ks := &EdKeySet{}
	if err := json.Unmarshal(data, ks); err != nil {
		return nil, fmt.Errorf("invalid key set: %w", err)
	}
	if len(ks.Keys) == 0 {
		return nil, errors.New("key set has no keys")
	}
	return ks, nil
}

func EdKeySetFromFile(filePath string) (*EdKeySet, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return EdKeySetFromJSON(data)
}

// EdPublicKeyFromSet decodes a JWKS document and returns the key with the given ID.
func EdPublicKeyFromSet(data []byte, keyID string) (*EdPublicKey, error) {
	ks, err := EdKeySetFromJSON(data)
	if err != nil {
		return nil, newError(ReasonKeyLoadFailure, "%v", err)
	}
	return ks.PublicKey(keyID)
}
