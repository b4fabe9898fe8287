// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"github.com/spf13/cobra"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen [KEY_ID]",
	Short: "Generate an Ed25519 key pair in PEM format for signing and verification",
	Example: `  # Generate a key pair in the current directory
  aegis keygen aegis-2025

  # Generate a key pair with a random key ID
  aegis keygen --output-dir=/etc/aegis/keys
`,
	Args: cobra.MaximumNArgs(1),
	RunE: keygenCmdRun,
}

type keygenFlags struct {
	outputDir string
}

var keygenArgs = keygenFlags{outputDir: "."}

func init() {
	keygenCmd.Flags().StringVarP(&keygenArgs.outputDir, "output-dir", "o", ".",
		"path to output directory (defaults to current directory)")
	rootCmd.AddCommand(keygenCmd)
}

func keygenCmdRun(cmd *cobra.Command, args []string) error {
	var keyID string
	if len(args) == 1 {
		keyID = args[0]
	}

	if err := isDir(keygenArgs.outputDir); err != nil {
		return err
	}

	publicKey, privateKey, err := lkm.NewKeyPair(keyID)
	if err != nil {
		return err
	}

	privateKeyPath, publicKeyPath, err := lkm.WriteKeyPair(keygenArgs.outputDir, publicKey, privateKey)
	if err != nil {
		return err
	}

	rootCmd.Printf("✔ private key written to: %s\n", privateKeyPath)
	rootCmd.Printf("✔ public key written to: %s\n", publicKeyPath)
	rootCmd.Printf("✔ key ID: %s\n", privateKey.KeyID)
	return nil
}
