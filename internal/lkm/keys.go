// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package lkm

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

const (
	pemTypePrivateKey = "PRIVATE KEY"
	pemTypePublicKey  = "PUBLIC KEY"
)

// EdPublicKey is an envelope for an Ed25519 public key,
// and its key ID.
type EdPublicKey struct {
	// Key is the Ed25519 public key.
	Key ed25519.PublicKey

	// KeyID is the unique identifier for the key.
	KeyID string
}

// EdPrivateKey is an envelope for an Ed25519 private key,
// and its key ID.
type EdPrivateKey struct {
	// Key is the Ed25519 private key.
	Key ed25519.PrivateKey

	// KeyID is the unique identifier for the key.
	KeyID string
}

// Public returns the public key matching the private key.
func (k *EdPrivateKey) Public() *EdPublicKey {
	return &EdPublicKey{
		Key:   k.Key.Public().(ed25519.PublicKey),
		KeyID: k.KeyID,
	}
}

// MarshalPEM encodes the private key in PKCS #8 PEM format.
func (k *EdPrivateKey) MarshalPEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePrivateKey, Bytes: der}), nil
}

// MarshalPEM encodes the public key in PKIX PEM format.
func (k *EdPublicKey) MarshalPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(k.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePublicKey, Bytes: der}), nil
}

// EdPrivateKeyFromPEM parses an Ed25519 private key in PKCS #8 PEM format.
func EdPrivateKeyFromPEM(data []byte, keyID string) (*EdPrivateKey, error) {
	if keyID == "" {
		return nil, newError(ReasonKeyLoadFailure, "key ID is required")
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypePrivateKey {
		return nil, newError(ReasonKeyLoadFailure, "no %s PEM block found", pemTypePrivateKey)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, newError(ReasonKeyLoadFailure, "failed to parse private key: %v", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, newError(ReasonKeyLoadFailure, "key is not an Ed25519 private key")
	}
	return &EdPrivateKey{Key: key, KeyID: keyID}, nil
}

// EdPublicKeyFromPEM parses an Ed25519 public key in PKIX PEM format.
func EdPublicKeyFromPEM(data []byte, keyID string) (*EdPublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypePublicKey {
		return nil, newError(ReasonKeyLoadFailure, "no %s PEM block found", pemTypePublicKey)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, newError(ReasonKeyLoadFailure, "failed to parse public key: %v", err)
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, newError(ReasonKeyLoadFailure, "key is not an Ed25519 public key")
	}
	return &EdPublicKey{Key: key, KeyID: keyID}, nil
}

// EdPrivateKeyFromFile reads an Ed25519 private key from a PEM file.
func EdPrivateKeyFromFile(filePath, keyID string) (*EdPrivateKey, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, newError(ReasonKeyLoadFailure, "private key not found: %v", err)
	}
	return EdPrivateKeyFromPEM(data, keyID)
}

// EdPublicKeyFromFile reads an Ed25519 public key from a PEM file.
func EdPublicKeyFromFile(filePath, keyID string) (*EdPublicKey, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, newError(ReasonKeyLoadFailure, "public key not found: %v", err)
	}
	return EdPublicKeyFromPEM(data, keyID)
}
