// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gestvenv/gestvenv/internal/model"
	"github.com/gestvenv/gestvenv/pkg/cliutil"
)

func init() {
	var full bool
	var repair bool
	var autoFix bool

	cmd := &cobra.Command{
		Use:   "check NAME",
		Short: "Diagnose an environment's health",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if repair {
				report, success, err := app.Repair(cmd.Context(), args[0], autoFix)
				if err != nil {
					return err
				}
				printReport(cmd, report)
				fmt.Fprintf(cmd.OutOrStdout(), "repair success: %v\n", success)
				return nil
			}

			report, err := app.Check(cmd.Context(), args[0], full)
			if err != nil {
				return err
			}
			printReport(cmd, report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Run the slower full diagnostic, including package import checks")
	cmd.Flags().BoolVar(&repair, "repair", false, "Attempt to repair any issues found")
	cmd.Flags().BoolVar(&autoFix, "auto-fix", false, "With --repair, apply the repair actions; without it --repair only reports recommendations")
	argparser.AddCommand(cmd)
}

func printReport(cmd *cobra.Command, report model.DiagnosticReport) {
	fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", report.OverallStatus)
	for _, issue := range report.Issues {
		fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s: %s\n", issue.Level, issue.Category, issue.Description)
	}
}
