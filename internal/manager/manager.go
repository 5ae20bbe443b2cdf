// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package manager implements EnvironmentManager, the single façade the CLI
// collaborator talks to. Each method maps one-to-one onto a CLI command,
// per spec.md §6.
package manager

import (
	"context"

	"github.com/gestvenv/gestvenv/internal/backend"
	"github.com/gestvenv/gestvenv/internal/cache"
	"github.com/gestvenv/gestvenv/internal/diagnostic"
	"github.com/gestvenv/gestvenv/internal/export"
	"github.com/gestvenv/gestvenv/internal/gestvenverr"
	"github.com/gestvenv/gestvenv/internal/lifecycle"
	"github.com/gestvenv/gestvenv/internal/model"
	"github.com/gestvenv/gestvenv/internal/platform"
	"github.com/gestvenv/gestvenv/internal/registry"
)

// Manager is the EnvironmentManager façade: one method per CLI command
// named in spec.md §6 (`create`, `list`, `activate`, `deactivate`,
// `delete`, `info`, `install`, `sync`, `check`, `backend`, `config`,
// `migrate`, `version`).
type Manager struct {
	Lifecycle  *lifecycle.Lifecycle
	Diagnostic *diagnostic.Engine
	Registry   *registry.Registry
	Selector   *backend.Selector
	Cache      *cache.Store
	Config     *model.Config

	// Version is the build-reported version string for the `version`
	// command.
	Version string
}

// New wires a Manager over its collaborators.
func New(lc *lifecycle.Lifecycle, diag *diagnostic.Engine, reg *registry.Registry, sel *backend.Selector, c *cache.Store, cfg *model.Config, version string) *Manager {
	return &Manager{
		Lifecycle:  lc,
		Diagnostic: diag,
		Registry:   reg,
		Selector:   sel,
		Cache:      c,
		Config:     cfg,
		Version:    version,
	}
}

// Create maps onto the `create` command.
func (m *Manager) Create(ctx context.Context, name, pythonVersion string, opts lifecycle.CreateOptions) (model.EnvironmentInfo, error) {
	return m.Lifecycle.Create(ctx, name, pythonVersion, opts)
}

// List maps onto the `list` command.
func (m *Manager) List() []model.EnvironmentInfo {
	return m.Lifecycle.List()
}

// Activate maps onto the `activate` command, returning the shell command
// the CLI must itself evaluate to enter the environment.
func (m *Manager) Activate(ctx context.Context, name string) (string, error) {
	return m.Lifecycle.Activate(ctx, name)
}

// Deactivate maps onto the `deactivate` command.
func (m *Manager) Deactivate(ctx context.Context) error {
	return m.Lifecycle.Deactivate(ctx)
}

// Delete maps onto the `delete` command. Per spec.md §7, destructive
// commands require an explicit force flag; absence aborts rather than
// proceeding.
func (m *Manager) Delete(ctx context.Context, name string, force bool) error {
	if !force {
		return gestvenverr.New(gestvenverr.Validation, "delete requires --force")
	}
	return m.Lifecycle.Delete(ctx, name)
}

// Info maps onto the `info` command.
func (m *Manager) Info(name string) (model.EnvironmentInfo, error) {
	return m.Lifecycle.Info(name)
}

// Install maps onto the `install` command.
func (m *Manager) Install(ctx context.Context, name string, requirements []string, opts lifecycle.InstallOptions) (model.EnvironmentInfo, []string, error) {
	return m.Lifecycle.InstallPackages(ctx, name, requirements, opts)
}

// Update maps onto the `update` command.
func (m *Manager) Update(ctx context.Context, name string, requirements []string) (model.EnvironmentInfo, []string, error) {
	return m.Lifecycle.UpdatePackages(ctx, name, requirements)
}

// Remove maps onto the `remove` command.
func (m *Manager) Remove(ctx context.Context, name string, requirements []string) (model.EnvironmentInfo, []string, error) {
	return m.Lifecycle.RemovePackages(ctx, name, requirements)
}

// Sync maps onto the `sync` command.
func (m *Manager) Sync(ctx context.Context, name string, opts lifecycle.SyncOptions) (model.EnvironmentInfo, error) {
	return m.Lifecycle.Sync(ctx, name, opts)
}

// Check maps onto the `check` command.
func (m *Manager) Check(ctx context.Context, name string, full bool) (model.DiagnosticReport, error) {
	env, err := m.Lifecycle.Info(name)
	if err != nil {
		return model.DiagnosticReport{}, err
	}
	mode := diagnostic.ModeQuick
	if full {
		mode = diagnostic.ModeFull
	}
	return m.Diagnostic.Diagnose(ctx, env, mode), nil
}

// Repair maps onto `check --repair`.
func (m *Manager) Repair(ctx context.Context, name string, autoFix bool) (model.DiagnosticReport, bool, error) {
	env, err := m.Lifecycle.Info(name)
	if err != nil {
		return model.DiagnosticReport{}, false, err
	}
	return m.Diagnostic.Repair(ctx, env, autoFix, func(repairCtx context.Context, action string) error {
		return m.applyRepairAction(repairCtx, env, action)
	})
}

// applyRepairAction invokes the Lifecycle routine that corresponds to one
// repair-action token, per spec.md §4.7.
func (m *Manager) applyRepairAction(ctx context.Context, env model.EnvironmentInfo, action string) error {
	switch action {
	case model.ActionRecreateEnvironment:
		if err := m.Lifecycle.Delete(ctx, env.Name); err != nil && !gestvenverr.Is(err, gestvenverr.NotFound) {
			return err
		}
		_, err := m.Lifecycle.Create(ctx, env.Name, env.PythonVersion, lifecycle.CreateOptions{
			BackendPreference: string(env.BackendType),
		})
		return err
	case model.ActionReinstallInterpreter, model.ActionInstallInstaller, model.ActionRepairInstaller,
		model.ActionRepairStructure, model.ActionRepairActivationScript, model.ActionFixPermissions:
		// These require host-level intervention (reinstalling a system
		// Python, restoring filesystem permissions) that the core does
		// not perform on the caller's behalf; recreating the environment
		// is the only repair the core can safely automate for them too.
		if err := m.Lifecycle.Delete(ctx, env.Name); err != nil && !gestvenverr.Is(err, gestvenverr.NotFound) {
			return err
		}
		_, err := m.Lifecycle.Create(ctx, env.Name, env.PythonVersion, lifecycle.CreateOptions{
			BackendPreference: string(env.BackendType),
		})
		return err
	case model.ActionInstallMissingPackages:
		if env.PyProjectInfo == nil {
			return nil
		}
		_, _, err := m.Lifecycle.InstallPackages(ctx, env.Name, env.PyProjectInfo.Dependencies, lifecycle.InstallOptions{})
		return err
	case model.ActionReinstallBrokenPackages:
		names := make([]string, 0, len(env.Packages))
		for _, pkg := range env.Packages {
			names = append(names, pkg.Name)
		}
		_, _, err := m.Lifecycle.UpdatePackages(ctx, env.Name, names)
		return err
	default:
		return gestvenverr.New(gestvenverr.Validation, "unknown repair action %q", action)
	}
}

// Backend maps onto the `backend` command, reporting the backend selected
// for name under the given backend preference.
func (m *Manager) Backend(ctx context.Context, name string, preference string) (string, error) {
	env, err := m.Lifecycle.Info(name)
	if err != nil {
		return "", err
	}
	b, err := m.Selector.Select(ctx, preference, &env, "", nil)
	if err != nil {
		return "", err
	}
	return b.Name(), nil
}

// Export maps onto the export half of the `config`/data-portability
// surface: renders name's EnvironmentInfo in the requested format.
func (m *Manager) Export(name string, format export.Format) ([]byte, error) {
	env, err := m.Lifecycle.Info(name)
	if err != nil {
		return nil, err
	}
	return export.Render(env, format)
}

// Migrate maps onto the `migrate` command: recreate dst from src's current
// package set, exercising Lifecycle.Clone.
func (m *Manager) Migrate(ctx context.Context, src, dst string) (model.EnvironmentInfo, error) {
	return m.Lifecycle.Clone(ctx, src, dst)
}

// VersionString maps onto the `version` command.
func (m *Manager) VersionString() string {
	return m.Version
}

// CleanCache maps onto the `cache clean` command.
func (m *Manager) CleanCache(maxAgeDays int, maxSizeMB int64, keepMinVersions int) (int, int64, error) {
	return m.Cache.Clean(maxAgeDays, maxSizeMB, keepMinVersions)
}

// ExportCache/ImportCache round-trip the Cache Store's contents as a zip
// archive, per spec.md §4.2.
func (m *Manager) ExportCache(destPath string, includeArtifacts bool) error {
	return m.Cache.ExportCache(destPath, includeArtifacts)
}

func (m *Manager) ImportCache(srcPath string, merge bool) error {
	return m.Cache.ImportCache(srcPath, merge)
}

// ResolvePython resolves a Python version spec to an interpreter path
// through a fresh Platform Adapter, so callers do not need to import
// internal/platform themselves.
func (m *Manager) ResolvePython(ctx context.Context, spec string) (string, error) {
	return platform.New().ResolvePython(ctx, spec)
}
