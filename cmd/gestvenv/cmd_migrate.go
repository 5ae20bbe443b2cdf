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
		Use:   "migrate SRC DST",
		Short: "Clone an environment's package set into a new environment",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Migrate(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %q from %q (%d packages)\n", env.Name, args[0], len(env.Packages))
			return nil
		},
	}
	argparser.AddCommand(cmd)
}
