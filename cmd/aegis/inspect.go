// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [LICENSE_FILE]",
	Short: "Print the claims of a license key without verifying the signature",
	Example: `  # Print the license key claims as a table
  aegis inspect license.jwt

  # Print the license key claims as JSON
  aegis inspect license.jwt --output=json
`,
	Args: cobra.ExactArgs(1),
	RunE: inspectCmdRun,
}

type inspectFlags struct {
	output string
}

var inspectArgs = inspectFlags{output: "table"}

func init() {
	inspectCmd.Flags().StringVarP(&inspectArgs.output, "output", "o", "table",
		"output format, one of table or json")
	rootCmd.AddCommand(inspectCmd)
}

func inspectCmdRun(cmd *cobra.Command, args []string) error {
	if inspectArgs.output != "table" && inspectArgs.output != "json" {
		return fmt.Errorf("unsupported output format '%s'", inspectArgs.output)
	}

	token, err := readToken(args[0])
	if err != nil {
		return err
	}
	header, err := lkm.InspectHeader(token)
	if err != nil {
		return fmt.Errorf("failed to inspect license key: %w", err)
	}
	claims, err := lkm.Inspect(token)
	if err != nil {
		return fmt.Errorf("failed to inspect license key: %w", err)
	}

	if inspectArgs.output == "json" {
		rootCmd.Println(claims.String())
		return nil
	}

	expires := "never"
	if exp, ok := claims.ExpiresAt(); ok {
		expires = exp.UTC().Format(time.RFC3339)
	}
	fingerprint := "-"
	if fp, ok := claims.InstanceFingerprint.Get(); ok {
		fingerprint = fp
	}

	rows := [][]string{
		{"id", claims.ID},
		{"key id", header.KeyID},
		{"algorithm", header.Algorithm},
		{"issuer", claims.Issuer},
		{"customer", fmt.Sprintf("%s (%s)", claims.Customer.Name, claims.Customer.ID)},
		{"module", claims.Product.Name},
		{"versions", strings.Join(claims.Product.AllowedVersions, ", ")},
		{"type", string(claims.Kind)},
		{"issued", claims.IssuedAtTime().UTC().Format(time.RFC3339)},
		{"expires", expires},
		{"fingerprint", fingerprint},
	}
	printTable(rootCmd.OutOrStdout(), []string{"claim", "value"}, rows)
	return nil
}

func printTable(writer io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(writer)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(rows)
	table.Render()
}
