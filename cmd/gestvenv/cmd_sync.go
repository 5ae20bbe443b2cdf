// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gestvenv/gestvenv/internal/lifecycle"
	"github.com/gestvenv/gestvenv/pkg/cliutil"
)

func init() {
	var groups []string
	var strict bool

	cmd := &cobra.Command{
		Use:   "sync NAME",
		Short: "Reconcile an environment's installed packages with its pyproject.toml",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Sync(cmd.Context(), args[0], lifecycle.SyncOptions{Groups: groups, Strict: strict})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%q synced: %d packages\n", env.Name, len(env.Packages))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&groups, "group", nil, "Optional-dependency groups to include")
	cmd.Flags().BoolVar(&strict, "strict", false, "Remove packages not declared in pyproject.toml")
	argparser.AddCommand(cmd)
}
