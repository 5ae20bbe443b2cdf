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
	var preference string
	cmd := &cobra.Command{
		Use:   "backend NAME",
		Short: "Show which backend would be selected for an environment",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := app.Backend(cmd.Context(), args[0], preference)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
	cmd.Flags().StringVar(&preference, "prefer", "auto", "Backend preference to evaluate against")
	argparser.AddCommand(cmd)
}
