// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gestvenv/gestvenv/internal/lifecycle"
	"github.com/gestvenv/gestvenv/pkg/cliutil"
)

func init() {
	var upgrade bool
	var editable bool
	var forceOnline bool
	var timeout time.Duration

	install := &cobra.Command{
		Use:   "install NAME PACKAGE...",
		Short: "Install one or more packages into an environment",
		Args:  cliutil.WrapPositionalArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, failed, err := app.Install(cmd.Context(), args[0], args[1:], lifecycle.InstallOptions{
				Upgrade:     upgrade,
				Editable:    editable,
				ForceOnline: forceOnline,
				Timeout:     timeout,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%q now has %d packages\n", env.Name, len(env.Packages))
			if len(failed) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "failed: %v\n", failed)
			}
			return nil
		},
	}
	install.Flags().BoolVar(&upgrade, "upgrade", false, "Upgrade if already installed")
	install.Flags().BoolVar(&editable, "editable", false, "Install in editable mode")
	install.Flags().BoolVar(&forceOnline, "force-online", false, "Skip the cache and always install from the network")
	install.Flags().DurationVar(&timeout, "timeout", 0, "Per-package install timeout")
	argparser.AddCommand(install)

	update := &cobra.Command{
		Use:   "update NAME PACKAGE...",
		Short: "Update one or more packages in an environment",
		Args:  cliutil.WrapPositionalArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, failed, err := app.Update(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%q now has %d packages\n", env.Name, len(env.Packages))
			if len(failed) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "failed: %v\n", failed)
			}
			return nil
		},
	}
	argparser.AddCommand(update)

	remove := &cobra.Command{
		Use:   "remove NAME PACKAGE...",
		Short: "Remove one or more packages from an environment",
		Args:  cliutil.WrapPositionalArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, failed, err := app.Remove(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%q now has %d packages\n", env.Name, len(env.Packages))
			if len(failed) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "failed: %v\n", failed)
			}
			return nil
		},
	}
	argparser.AddCommand(remove)
}
