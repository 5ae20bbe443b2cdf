// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/spf13/cobra"

	"github.com/gestvenv/gestvenv/pkg/cliutil"
)

func init() {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete an environment",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Delete(cmd.Context(), args[0], force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Confirm the destructive delete; without it the delete is refused")
	argparser.AddCommand(cmd)
}
