// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Compute the fingerprint of an installation",
	Example: `  aegis fingerprint --db-uuid=8f7e2c1a-5b3d-4e6f-9a8b-7c6d5e4f3a2b --domain=erp.acme.com
`,
	Args: cobra.NoArgs,
	RunE: fingerprintCmdRun,
}

type fingerprintFlags struct {
	dbUUID string
	domain string
}

var fingerprintArgs fingerprintFlags

func init() {
	fingerprintCmd.Flags().StringVar(&fingerprintArgs.dbUUID, "db-uuid", "",
		"database UUID of the installation (required)")
	fingerprintCmd.Flags().StringVar(&fingerprintArgs.domain, "domain", "",
		"domain of the installation (required)")
	rootCmd.AddCommand(fingerprintCmd)
}

func fingerprintCmdRun(cmd *cobra.Command, args []string) error {
	if fingerprintArgs.dbUUID == "" {
		return fmt.Errorf("--db-uuid flag is required")
	}
	if fingerprintArgs.domain == "" {
		return fmt.Errorf("--domain flag is required")
	}
	rootCmd.Println(lkm.Fingerprint(fingerprintArgs.dbUUID, fingerprintArgs.domain))
	return nil
}
