// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package lkm

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

// signatureAlgorithms is the list of accepted JWS algorithms.
var signatureAlgorithms = []jose.SignatureAlgorithm{jose.EdDSA}

// GenerateSignedToken signs the payload with EdDSA and returns the compact JWS.
// The kid header carries the private key ID so verifiers can pick the
// matching key from a JWKS.
func GenerateSignedToken(payload []byte, privateKey *EdPrivateKey) (string, error) {
	if privateKey == nil {
		return "", fmt.Errorf("private key is required")
	}

	opts := (&jose.SignerOptions{}).
		WithType("JWT").
		WithHeader(jose.HeaderKey("kid"), privateKey.KeyID)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: privateKey.Key}, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign license key: %w", err)
	}
	return jws.CompactSerialize()
}

// parseSignedToken parses a JWT in compact serialization.
// Any parse failure is reported as a Malformed error.
func parseSignedToken(token string) (*jose.JSONWebSignature, error) {
	token = strings.TrimSpace(token)
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return nil, newError(ReasonMalformed, "token must have three segments")
	}
	// Each segment must be the canonical encoding of its bytes, otherwise
	// the unused bits of the last character could be altered freely.
	for i, seg := range segments {
		if _, err := base64.RawURLEncoding.Strict().DecodeString(seg); err != nil {
			return nil, newError(ReasonMalformed, "segment %d is not canonical base64url", i+1)
		}
	}

	jws, err := jose.ParseSignedCompact(token, signatureAlgorithms)
	if err != nil {
		return nil, newError(ReasonMalformed, "failed to parse signed token")
	}
	if len(jws.Signatures) == 0 {
		return nil, newError(ReasonMalformed, "no signatures found")
	}
	return jws, nil
}

// verifySignedToken checks the token signature with the public key
// and returns the verified payload.
func verifySignedToken(token string, publicKey *EdPublicKey) ([]byte, error) {
	jws, err := parseSignedToken(token)
	if err != nil {
		return nil, err
	}

	payload, err := jws.Verify(publicKey.Key)
	if err != nil {
		return nil, newError(ReasonInvalidSignature, "failed to verify signature")
	}
	return payload, nil
}

// GetKeyIDFromToken extracts the KID header from a signed JWT token.
func GetKeyIDFromToken(token string) (string, error) {
	jws, err := parseSignedToken(token)
	if err != nil {
		return "", err
	}

	kid := jws.Signatures[0].Protected.KeyID
	if kid == "" {
		return "", newError(ReasonMalformed, "no public key ID found")
	}

	return kid, nil
}
