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
	activate := &cobra.Command{
		Use:   "activate NAME",
		Short: "Print the shell command to activate an environment",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			activation, err := app.Activate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), activation)
			return nil
		},
	}
	argparser.AddCommand(activate)

	deactivate := &cobra.Command{
		Use:   "deactivate",
		Short: "Clear the active environment marker",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Deactivate(cmd.Context())
		},
	}
	argparser.AddCommand(deactivate)
}
