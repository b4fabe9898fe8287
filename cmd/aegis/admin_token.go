// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/controlplaneio-fluxcd/aegis/internal/config"
	"github.com/controlplaneio-fluxcd/aegis/internal/server"
)

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Generate a bearer token for the admin API",
	Example: `  # Generate a token with the secret from the server configuration
  aegis admin-token --config=/etc/aegis/config.yaml --subject=ops@example.com

  # Generate a token valid for 15 minutes with the secret from env
  export AEGIS_AUTH_SECRET="..."
  aegis admin-token --ttl=15m
`,
	Args: cobra.NoArgs,
	RunE: adminTokenCmdRun,
}

type adminTokenFlags struct {
	configPath string
	subject    string
	ttl        time.Duration
}

var adminTokenArgs = adminTokenFlags{subject: "admin"}

func init() {
	adminTokenCmd.Flags().StringVarP(&adminTokenArgs.configPath, "config", "c", "",
		"path to the server configuration file")
	adminTokenCmd.Flags().StringVar(&adminTokenArgs.subject, "subject", "admin",
		"subject of the token")
	adminTokenCmd.Flags().DurationVar(&adminTokenArgs.ttl, "ttl", 0,
		"lifetime of the token, defaults to the configured auth.tokenTTL or 1h")
	rootCmd.AddCommand(adminTokenCmd)
}

func adminTokenCmdRun(cmd *cobra.Command, args []string) error {
	secret := os.Getenv(authSecretEnvVar)
	ttl := time.Hour
	if adminTokenArgs.configPath != "" {
		spec, err := config.Load(adminTokenArgs.configPath)
		if err != nil {
			return err
		}
		secret = spec.Auth.Secret
		ttl = spec.Auth.TokenTTL.Duration
	}
	if adminTokenArgs.ttl > 0 {
		ttl = adminTokenArgs.ttl
	}

	if secret == "" {
		return fmt.Errorf("secret must be specified with --config flag or %s environment variable", authSecretEnvVar)
	}
	if len(secret) < config.MinAuthSecretLength {
		return fmt.Errorf("secret must be at least %d characters long", config.MinAuthSecretLength)
	}

	token, err := server.NewAdminToken([]byte(secret), adminTokenArgs.subject, ttl, time.Now())
	if err != nil {
		return err
	}
	rootCmd.Println(token)
	return nil
}
