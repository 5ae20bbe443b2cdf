// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gestvenv/gestvenv/internal/export"
	"github.com/gestvenv/gestvenv/pkg/cliutil"
)

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or export environment configuration",

		Args: cliutil.OnlySubcommands,
		RunE: cliutil.RunSubcommands,
	}

	var format string
	var outPath string
	exportCmd := &cobra.Command{
		Use:   "export NAME",
		Short: "Export an environment's dependency state",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := app.Export(args[0], export.Format(format))
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(outPath, data, 0o644)
		},
	}
	exportCmd.Flags().StringVar(&format, "format", "requirements", "Export format: requirements, pyproject, json, yaml")
	exportCmd.Flags().StringVar(&outPath, "output", "", "Write to this file instead of stdout")
	configCmd.AddCommand(exportCmd)

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current process-wide configuration",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", *app.Config)
			return nil
		},
	}
	configCmd.AddCommand(showCmd)

	argparser.AddCommand(configCmd)
}
