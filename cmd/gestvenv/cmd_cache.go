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
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or maintain the shared package cache",

		Args: cliutil.OnlySubcommands,
		RunE: cliutil.RunSubcommands,
	}

	var maxAgeDays int
	var maxSizeMB int64
	var keepMinVersions int
	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Evict old, low-use cache entries until under the size limit",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			removed, freed, err := app.CleanCache(maxAgeDays, maxSizeMB, keepMinVersions)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries, freed %d bytes\n", removed, freed)
			return nil
		},
	}
	cleanCmd.Flags().IntVar(&maxAgeDays, "max-age-days", 90, "Evict versions older than this many days")
	cleanCmd.Flags().Int64Var(&maxSizeMB, "max-size-mb", 5000, "Target cache size ceiling in MB")
	cleanCmd.Flags().IntVar(&keepMinVersions, "keep-min-versions", 2, "Always keep at least this many versions per package")
	cacheCmd.AddCommand(cleanCmd)

	var exportIncludeArtifacts bool
	exportCmd := &cobra.Command{
		Use:   "export OUT_FILE",
		Short: "Export the cache to a zip archive",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.ExportCache(args[0], exportIncludeArtifacts)
		},
	}
	exportCmd.Flags().BoolVar(&exportIncludeArtifacts, "include-artifacts", true, "Include cached package artifacts, not just the index")
	cacheCmd.AddCommand(exportCmd)

	var importMerge bool
	importCmd := &cobra.Command{
		Use:   "import IN_FILE",
		Short: "Import a cache archive",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.ImportCache(args[0], importMerge)
		},
	}
	importCmd.Flags().BoolVar(&importMerge, "merge", false, "Merge into the existing cache instead of replacing it")
	cacheCmd.AddCommand(importCmd)

	argparser.AddCommand(cacheCmd)
}
