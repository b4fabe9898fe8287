// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/controlplaneio-fluxcd/aegis/internal/config"
	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
	"github.com/controlplaneio-fluxcd/aegis/internal/service"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [LICENSE_FILE]",
	Short: "Verify a signed license key offline",
	Example: `  # Verify a license key with a public key file
  aegis verify license.jwt \
  --public-key=./aegis-2025.public.pem \
  --module=sale_pro \
  --version=18

  # Verify a bound license key against the server JWKS and revocation set
  aegis verify license.jwt \
  --key-set=https://license.example.com/.well-known/jwks.json \
  --revocation-set=./revoked.rks \
  --module=sale_pro \
  --version=18 \
  --db-uuid=8f7e2c1a-5b3d-4e6f-9a8b-7c6d5e4f3a2b \
  --domain=erp.acme.com
`,
	Args: cobra.ExactArgs(1),
	RunE: verifyCmdRun,
}

type verifyFlags struct {
	publicKeyPath     string
	keySetPath        string
	revocationSetPath string
	issuer            string
	module            string
	version           string
	dbUUID            string
	domain            string
}

var verifyArgs = verifyFlags{issuer: config.DefaultIssuer}

func init() {
	verifyCmd.Flags().StringVarP(&verifyArgs.publicKeyPath, "public-key", "p", "",
		"path or URL of the Ed25519 public key in PEM format")
	verifyCmd.Flags().StringVarP(&verifyArgs.keySetPath, "key-set", "k", "",
		"path or URL of the public key set in JWKS format")
	verifyCmd.Flags().StringVar(&verifyArgs.revocationSetPath, "revocation-set", "",
		"path or URL of the revocation set")
	verifyCmd.Flags().StringVar(&verifyArgs.issuer, "issuer", config.DefaultIssuer,
		"trusted issuer of the license key")
	verifyCmd.Flags().StringVarP(&verifyArgs.module, "module", "m", "",
		"technical name of the module requesting access (required)")
	verifyCmd.Flags().StringVar(&verifyArgs.version, "version", "",
		"major version of the host application (required)")
	verifyCmd.Flags().StringVar(&verifyArgs.dbUUID, "db-uuid", "",
		"database UUID of the installation")
	verifyCmd.Flags().StringVar(&verifyArgs.domain, "domain", "",
		"domain of the installation")
	rootCmd.AddCommand(verifyCmd)
}

func verifyCmdRun(cmd *cobra.Command, args []string) error {
	if verifyArgs.module == "" {
		return fmt.Errorf("--module flag is required")
	}
	if verifyArgs.version == "" {
		return fmt.Errorf("--version flag is required")
	}

	token, err := readToken(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	// The key ID is read from the token header to select the key from the JWKS.
	keyID, err := lkm.GetKeyIDFromToken(token)
	if err != nil {
		return fmt.Errorf("failed to verify license key: %w", err)
	}
	publicKey, err := loadPublicKey(ctx, verifyArgs.publicKeyPath, verifyArgs.keySetPath, keyID)
	if err != nil {
		return err
	}
	verifier, err := lkm.NewVerifier(verifyArgs.issuer, publicKey)
	if err != nil {
		return err
	}

	target := lkm.Target{
		ProductName:    verifyArgs.module,
		ProductVersion: service.NormalizeMajorVersion(verifyArgs.version),
	}
	if verifyArgs.dbUUID != "" || verifyArgs.domain != "" {
		target.Binding = &lkm.InstanceBinding{
			InstallationID: verifyArgs.dbUUID,
			Domain:         verifyArgs.domain,
		}
	}

	claims, err := verifier.Verify(token, target)
	if err != nil {
		return fmt.Errorf("failed to verify license key: %w", err)
	}

	if verifyArgs.revocationSetPath != "" {
		data, err := loadDocument(ctx, verifyArgs.revocationSetPath, "", lkm.ContentTypeRevocationSet)
		if err != nil {
			return fmt.Errorf("failed to load revocation set: %w", err)
		}
		rks, err := lkm.RevocationKeySetFromJSON(data)
		if err != nil {
			return fmt.Errorf("failed to parse revocation set: %w", err)
		}
		if rks.Issuer != verifyArgs.issuer {
			return fmt.Errorf("revocation set issuer '%s' does not match '%s'", rks.Issuer, verifyArgs.issuer)
		}
		if revokedAt, ok := rks.RevokedAt(claims.ID); ok {
			return fmt.Errorf("license key %s was revoked at %s", claims.ID, revokedAt.UTC().Format(time.RFC3339))
		}
	}

	rootCmd.Println("✔ license key is valid")
	rootCmd.Println(claims.String())
	return nil
}
