// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
)

const (
	privateKeyEnvVar = "AEGIS_PRIVATE_KEY"
	publicKeyEnvVar  = "AEGIS_PUBLIC_KEY"
	keySetEnvVar     = "AEGIS_PUBLIC_JWKS"
	authSecretEnvVar = "AEGIS_AUTH_SECRET"
)

// isDir validates that the given path exists and is a directory
func isDir(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("directory %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("failed to check path %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path %s is not a directory", path)
	}
	return nil
}

// loadDocument reads a document from an HTTP URL, a file path or an environment variable.
// It returns nil if neither the location nor the variable is set.
func loadDocument(ctx context.Context, location, envVarName string, contentType lkm.ContentType) ([]byte, error) {
	switch {
	case isURL(location):
		return lkm.Fetch(ctx, location,
			lkm.FetchOpt.WithContentType(contentType),
			lkm.FetchOpt.WithUserAgent("aegis/"+VERSION))
	case location != "":
		// Load from file or /dev/stdin
		return os.ReadFile(location)
	case envVarName != "" && os.Getenv(envVarName) != "":
		return []byte(os.Getenv(envVarName)), nil
	default:
		return nil, nil
	}
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// loadPrivateKey reads the PEM private key from a file or the
// AEGIS_PRIVATE_KEY environment variable. URLs are rejected.
func loadPrivateKey(ctx context.Context, path, keyID string) (*lkm.EdPrivateKey, error) {
	if isURL(path) {
		return nil, fmt.Errorf("private key cannot be loaded from a URL")
	}
	data, err := loadDocument(ctx, path, privateKeyEnvVar, "")
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("private key must be specified with --private-key flag or %s environment variable",
			privateKeyEnvVar)
	}
	return lkm.EdPrivateKeyFromPEM(data, keyID)
}

// loadPublicKey reads the public key for the given key ID, either from
// a PEM file or from a JWKS. The JWKS takes precedence when both are set.
func loadPublicKey(ctx context.Context, pemPath, keySetPath, keyID string) (*lkm.EdPublicKey, error) {
	jwks, err := loadDocument(ctx, keySetPath, keySetEnvVar, lkm.ContentTypeKeySet)
	if err != nil {
		return nil, err
	}
	if jwks != nil {
		return lkm.EdPublicKeyFromSet(jwks, keyID)
	}

	data, err := loadDocument(ctx, pemPath, publicKeyEnvVar, lkm.ContentTypePublicKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("public key must be specified with --public-key or --key-set flag, "+
			"or %s or %s environment variable", publicKeyEnvVar, keySetEnvVar)
	}
	return lkm.EdPublicKeyFromPEM(data, keyID)
}

// readToken reads a license key from file, trimming the surrounding whitespace.
func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read license file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
