// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke [LICENSE_FILE]",
	Short: "Add a license key to a revocation set file",
	Example: `  # Revoke a license key and save to the revocation set
  aegis revoke license1.jwt --output=revoked.rks

  # Revoke another license key, merging with the existing set
  aegis revoke license2.jwt --output=revoked.rks
`,
	Args: cobra.ExactArgs(1),
	RunE: revokeCmdRun,
}

type revokeFlags struct {
	outputPath string
}

var revokeArgs revokeFlags

func init() {
	revokeCmd.Flags().StringVarP(&revokeArgs.outputPath, "output", "o", "",
		"path to output revocation set file (required)")
	rootCmd.AddCommand(revokeCmd)
}

func revokeCmdRun(cmd *cobra.Command, args []string) error {
	if revokeArgs.outputPath == "" {
		return fmt.Errorf("--output flag is required")
	}

	token, err := readToken(args[0])
	if err != nil {
		return err
	}

	// The signature is not verified, revoking a forged key is harmless.
	claims, err := lkm.Inspect(token)
	if err != nil {
		return fmt.Errorf("failed to read license key: %w", err)
	}
	if claims.ID == "" {
		return fmt.Errorf("license key is missing the jti claim")
	}
	if claims.Issuer == "" {
		return fmt.Errorf("license key is missing the iss claim")
	}

	rks := lkm.NewRevocationKeySet(claims.Issuer)
	if err := rks.AddKey(claims.ID, time.Now()); err != nil {
		return fmt.Errorf("failed to add license key to revocation set: %w", err)
	}
	if err := rks.WriteFile(revokeArgs.outputPath); err != nil {
		return fmt.Errorf("failed to write revocation set: %w", err)
	}

	rootCmd.Printf("✔ license key %s revoked and saved to: %s\n", claims.ID, revokeArgs.outputPath)
	return nil
}
