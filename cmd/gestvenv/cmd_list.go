// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gestvenv/gestvenv/pkg/cliutil"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all managed environments",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			envs := app.List()
			if len(envs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no environments")
				return nil
			}
			for _, env := range envs {
				marker := " "
				if env.IsActive {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-24s %-8s %-6s %s\n", marker, env.Name, env.PythonVersion, env.BackendType, env.Health)
			}
			return nil
		},
	}
	argparser.AddCommand(cmd)
}
