// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/controlplaneio-fluxcd/aegis/internal/config"
	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
	"github.com/controlplaneio-fluxcd/aegis/internal/service"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a signed license key offline",
	Example: `  # Issue a perpetual license key for a module
  aegis issue \
  --private-key=./aegis-2025.private.pem \
  --key-id=aegis-2025 \
  --customer-id=acme \
  --customer-name="ACME Corp." \
  --module=sale_pro \
  --versions=17,18 \
  --output=license.jwt

  # Issue a one year subscription bound to an installation
  export AEGIS_PRIVATE_KEY="$(cat ./aegis-2025.private.pem)"
  aegis issue --key-id=aegis-2025 \
  --customer-id=acme \
  --customer-name="ACME Corp." \
  --module=sale_pro \
  --versions=18 \
  --type=subscription \
  --duration=365 \
  --db-uuid=8f7e2c1a-5b3d-4e6f-9a8b-7c6d5e4f3a2b \
  --domain=erp.acme.com
`,
	Args: cobra.NoArgs,
	RunE: issueCmdRun,
}

type issueFlags struct {
	privateKeyPath string
	keyID          string
	issuer         string
	customerID     string
	customerName   string
	module         string
	versions       []string
	licenseType    string
	duration       int
	dbUUID         string
	domain         string
	outputPath     string
}

var issueArgs = issueFlags{
	issuer:      config.DefaultIssuer,
	licenseType: string(lkm.KindPerpetual),
}

func init() {
	issueCmd.Flags().StringVarP(&issueArgs.privateKeyPath, "private-key", "k", "",
		"path to the Ed25519 private key in PEM format")
	issueCmd.Flags().StringVar(&issueArgs.keyID, "key-id", "",
		"ID of the signing key (required)")
	issueCmd.Flags().StringVar(&issueArgs.issuer, "issuer", config.DefaultIssuer,
		"issuer of the license key")
	issueCmd.Flags().StringVar(&issueArgs.customerID, "customer-id", "",
		"customer identifier (required)")
	issueCmd.Flags().StringVar(&issueArgs.customerName, "customer-name", "",
		"customer display name (required)")
	issueCmd.Flags().StringVarP(&issueArgs.module, "module", "m", "",
		"technical name of the licensed module (required)")
	issueCmd.Flags().StringSliceVar(&issueArgs.versions, "versions", nil,
		"allowed major versions (required)")
	issueCmd.Flags().StringVarP(&issueArgs.licenseType, "type", "t", string(lkm.KindPerpetual),
		"license type, one of perpetual, subscription or demo")
	issueCmd.Flags().IntVarP(&issueArgs.duration, "duration", "d", 0,
		"license duration in days, required for subscription and demo licenses")
	issueCmd.Flags().StringVar(&issueArgs.dbUUID, "db-uuid", "",
		"database UUID of the installation to bind the license to")
	issueCmd.Flags().StringVar(&issueArgs.domain, "domain", "",
		"domain of the installation to bind the license to")
	issueCmd.Flags().StringVarP(&issueArgs.outputPath, "output", "o", "",
		"path to the output file, defaults to stdout")
	rootCmd.AddCommand(issueCmd)
}

func issueCmdRun(cmd *cobra.Command, args []string) error {
	if issueArgs.keyID == "" {
		return fmt.Errorf("--key-id flag is required")
	}
	if issueArgs.customerID == "" {
		return fmt.Errorf("--customer-id flag is required")
	}
	if issueArgs.customerName == "" {
		return fmt.Errorf("--customer-name flag is required")
	}
	if issueArgs.module == "" {
		return fmt.Errorf("--module flag is required")
	}
	if len(issueArgs.versions) == 0 {
		return fmt.Errorf("--versions flag is required")
	}
	kind, err := lkm.ParseKind(issueArgs.licenseType)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	privateKey, err := loadPrivateKey(ctx, issueArgs.privateKeyPath, issueArgs.keyID)
	if err != nil {
		return err
	}
	issuer, err := lkm.NewIssuer(issueArgs.issuer, privateKey)
	if err != nil {
		return err
	}

	versions := make([]string, len(issueArgs.versions))
	for i, v := range issueArgs.versions {
		versions[i] = service.NormalizeMajorVersion(v)
	}

	req := lkm.IssueRequest{
		CustomerID:      issueArgs.customerID,
		CustomerName:    issueArgs.customerName,
		ProductName:     issueArgs.module,
		AllowedVersions: versions,
		Kind:            kind,
	}
	if issueArgs.duration != 0 {
		d, err := lkm.DurationFromDays(issueArgs.duration)
		if err != nil {
			return err
		}
		req.Duration = lkm.Some(d)
	}
	if issueArgs.dbUUID != "" || issueArgs.domain != "" {
		req.Binding = &lkm.InstanceBinding{
			InstallationID: issueArgs.dbUUID,
			Domain:         issueArgs.domain,
		}
	}

	signed, err := issuer.Issue(req)
	if err != nil {
		return fmt.Errorf("failed to issue license key: %w", err)
	}

	if issueArgs.outputPath == "" {
		rootCmd.Println(signed.Token)
		return nil
	}
	if err := os.WriteFile(issueArgs.outputPath, []byte(signed.Token), 0644); err != nil {
		return fmt.Errorf("failed to write license key to file: %w", err)
	}
	rootCmd.Printf("✔ license key %s written to: %s\n", signed.Claims.ID, issueArgs.outputPath)
	return nil
}
