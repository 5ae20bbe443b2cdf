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
		Use:   "version",
		Short: "Print the gestvenv version",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), app.VersionString())
			return nil
		},
	}
	argparser.AddCommand(cmd)
}
