// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Command gestvenv manages isolated Python virtual environments backed by
// pip, uv, poetry, or pdm.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/gestvenv/gestvenv/internal/backend"
	"github.com/gestvenv/gestvenv/internal/cache"
	"github.com/gestvenv/gestvenv/internal/config"
	"github.com/gestvenv/gestvenv/internal/diagnostic"
	"github.com/gestvenv/gestvenv/internal/lifecycle"
	"github.com/gestvenv/gestvenv/internal/manager"
	"github.com/gestvenv/gestvenv/internal/platform"
	"github.com/gestvenv/gestvenv/internal/registry"
	"github.com/gestvenv/gestvenv/pkg/cliutil"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var argparser = &cobra.Command{
	Use:   "gestvenv {[flags]|SUBCOMMAND...}",
	Short: "Manage Python virtual environments",

	Args: cliutil.OnlySubcommands,
	RunE: cliutil.RunSubcommands,

	SilenceErrors: true, // main() handles this after .ExecuteContext() returns
	SilenceUsage:  true, // our FlagErrorFunc handles it
}

// app is the wired EnvironmentManager every command file's RunE reaches
// into. It is built once in main(), before argparser.ExecuteContext runs.
var app *manager.Manager

func init() {
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
}

// appDir resolves the platform-conventional application directory holding
// config.json, environments.json, environments/, cache/, per spec.md §6
// "Persisted-state layout".
func appDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "gestvenv"), nil
}

func buildManager() (*manager.Manager, error) {
	dir, err := appDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	environmentsDir := filepath.Join(dir, "environments")
	cfg, err := config.Load(filepath.Join(dir, "config.json"), environmentsDir)
	if err != nil {
		return nil, err
	}

	reg, err := registry.Open(filepath.Join(dir, "environments.json"))
	if err != nil {
		return nil, err
	}
	store, err := cache.Open(filepath.Join(dir, "cache"))
	if err != nil {
		return nil, err
	}

	p := platform.New()
	sel := backend.NewSelector(
		backend.NewUv(p),
		backend.NewPoetry(p),
		backend.NewPdm(p),
		backend.NewPip(p, "python3"),
	)
	lc := lifecycle.New(p, sel, store, reg, environmentsDir)
	diag := diagnostic.New(p, sel, store, filepath.Join(dir, "diagnostic-snapshots"))

	return manager.New(lc, diag, reg, sel, store, &cfg, version), nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	m, err := buildManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gestvenv: error: %v\n", err)
		os.Exit(1)
	}
	app = m

	if err := argparser.ExecuteContext(ctx); err != nil {
		if ctx.Err() != nil {
			os.Exit(130)
		}
		fmt.Fprintf(argparser.ErrOrStderr(), "%s: error: %v\n", argparser.CommandPath(), err)
		dlog.Errorf(ctx, "%v", err)
		os.Exit(1)
	}
}
