// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
)

var jwksCmd = &cobra.Command{
	Use:   "jwks",
	Short: "Export a PEM public key as a JSON Web Key Set",
	Example: `  # Print the JWKS of a public key
  aegis jwks --public-key=./aegis-2025.public.pem --key-id=aegis-2025

  # Write the JWKS to a file
  aegis jwks --public-key=./aegis-2025.public.pem --key-id=aegis-2025 --output=public.jwks
`,
	Args: cobra.NoArgs,
	RunE: jwksCmdRun,
}

type jwksFlags struct {
	publicKeyPath string
	keyID         string
	outputPath    string
}

var jwksArgs jwksFlags

func init() {
	jwksCmd.Flags().StringVarP(&jwksArgs.publicKeyPath, "public-key", "p", "",
		"path or URL of the Ed25519 public key in PEM format")
	jwksCmd.Flags().StringVar(&jwksArgs.keyID, "key-id", "",
		"ID of the key (required)")
	jwksCmd.Flags().StringVarP(&jwksArgs.outputPath, "output", "o", "",
		"path to the output file, defaults to stdout")
	rootCmd.AddCommand(jwksCmd)
}

func jwksCmdRun(cmd *cobra.Command, args []string) error {
	if jwksArgs.keyID == "" {
		return fmt.Errorf("--key-id flag is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	data, err := loadDocument(ctx, jwksArgs.publicKeyPath, publicKeyEnvVar, lkm.ContentTypePublicKey)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("public key must be specified with --public-key flag or %s environment variable",
			publicKeyEnvVar)
	}
	publicKey, err := lkm.EdPublicKeyFromPEM(data, jwksArgs.keyID)
	if err != nil {
		return err
	}

	ks := lkm.NewPublicKeySet()
	if err := ks.AddPublicKey(publicKey); err != nil {
		return err
	}

	if jwksArgs.outputPath != "" {
		if err := ks.WriteFile(jwksArgs.outputPath); err != nil {
			return err
		}
		rootCmd.Printf("✔ public key set written to: %s\n", jwksArgs.outputPath)
		return nil
	}

	out, err := ks.ToJSON()
	if err != nil {
		return err
	}
	rootCmd.Println(string(out))
	return nil
}
