// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package lkm

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// NewKeyPair generates a new Ed25519 key pair with the given key ID.
// If the key ID is empty, it is generated using a UUID v6.
func NewKeyPair(keyID string) (*EdPublicKey, *EdPrivateKey, error) {
	if keyID == "" {
		kid, err := uuid.NewV6()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate key ID: %w", err)
		}
		keyID = kid.String()
	}

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	return &EdPublicKey{Key: publicKey, KeyID: keyID},
		&EdPrivateKey{Key: privateKey, KeyID: keyID},
		nil
}

// KeyPairPaths returns the private and public PEM file paths
// for the given key ID in the output directory.
func KeyPairPaths(outputDir, keyID string) (privateKeyPath, publicKeyPath string) {
	privateKeyPath = filepath.Join(outputDir, fmt.Sprintf("%s.private.pem", keyID))
	publicKeyPath = filepath.Join(outputDir, fmt.Sprintf("%s.public.pem", keyID))
	return
}

// WriteKeyPair writes the key pair in PEM format to the output directory.
// The private key is readable by the owner only (0600) and is never
// overwritten, the public key is readable by everyone (0644).
// It returns the paths of the written files.
func WriteKeyPair(outputDir string, publicKey *EdPublicKey, privateKey *EdPrivateKey) (string, string, error) {
	if privateKey == nil {
		return "", "", fmt.Errorf("private key is required")
	}
	if publicKey == nil {
		return "", "", fmt.Errorf("public key is required")
	}

	privateKeyPath, publicKeyPath := KeyPairPaths(outputDir, privateKey.KeyID)

	privatePEM, err := privateKey.MarshalPEM()
	if err != nil {
		return "", "", err
	}
	publicPEM, err := publicKey.MarshalPEM()
	if err != nil {
		return "", "", err
	}

	// Prevent overwriting an existing private key.
	if _, err := os.Stat(privateKeyPath); !os.IsNotExist(err) {
		return "", "", fmt.Errorf("file %s already exists, refusing to overwrite", privateKeyPath)
	}

	if err := os.WriteFile(privateKeyPath, privatePEM, 0600); err != nil {
		return "", "", fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(publicKeyPath, publicPEM, 0644); err != nil {
		return "", "", fmt.Errorf("failed to write public key: %w", err)
	}

	return privateKeyPath, publicKeyPath, nil
}
