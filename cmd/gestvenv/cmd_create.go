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
	var pythonVersion string
	var pyprojectPath string
	var backendPreference string
	var groups []string
	var packages []string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a new virtual environment",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Create(cmd.Context(), args[0], pythonVersion, lifecycle.CreateOptions{
				PyprojectPath:     pyprojectPath,
				DependencyGroups:  groups,
				InitialPackages:   packages,
				BackendPreference: backendPreference,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %q at %s (backend=%s, health=%s)\n", env.Name, env.Path, env.BackendType, env.Health)
			return nil
		},
	}
	cmd.Flags().StringVar(&pythonVersion, "python", "3.11", "Python version, as MAJOR.MINOR or MAJOR.MINOR.PATCH")
	cmd.Flags().StringVar(&pyprojectPath, "pyproject", "", "Path to a pyproject.toml to seed dependencies from")
	cmd.Flags().StringVar(&backendPreference, "backend", "auto", "Backend preference (auto, pip, uv, poetry, pdm)")
	cmd.Flags().StringSliceVar(&groups, "group", nil, "Optional-dependency groups to install from pyproject")
	cmd.Flags().StringSliceVar(&packages, "package", nil, "Additional packages to install on creation")

	argparser.AddCommand(cmd)
}
