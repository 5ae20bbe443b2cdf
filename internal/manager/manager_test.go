// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package manager_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestvenv/gestvenv/internal/backend"
	"github.com/gestvenv/gestvenv/internal/cache"
	"github.com/gestvenv/gestvenv/internal/diagnostic"
	"github.com/gestvenv/gestvenv/internal/export"
	"github.com/gestvenv/gestvenv/internal/lifecycle"
	"github.com/gestvenv/gestvenv/internal/manager"
	"github.com/gestvenv/gestvenv/internal/model"
	"github.com/gestvenv/gestvenv/internal/platform"
	"github.com/gestvenv/gestvenv/internal/registry"
)

type fakeBackend struct {
	name     string
	packages []model.PackageInfo
}

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) Capabilities() model.BackendCapabilities {
	return model.BackendCapabilities{PerformanceScore: 5, SupportedFormats: []model.SourceFileType{model.SourceRequirementsTxt}}
}
func (f *fakeBackend) IsAvailable(context.Context) bool { return true }
func (f *fakeBackend) CreateEnvironment(_ context.Context, envPath, _ string) error {
	for _, dir := range []string{"bin", "lib", "include"} {
		if err := os.MkdirAll(filepath.Join(envPath, dir), 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(filepath.Join(envPath, "pyvenv.cfg"), []byte("home = /usr\n"), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(envPath, "bin", "activate"), []byte("# activate\n"), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(envPath, "bin", "pip"), []byte("#!/bin/sh\necho pip 0\n"), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(envPath, "bin", "python3"), []byte("#!/bin/sh\n"), 0o755)
}
func (f *fakeBackend) InstallPackage(_ context.Context, _, requirement string, _ backend.InstallOptions) (backend.InstallResult, error) {
	f.packages = append(f.packages, model.PackageInfo{Name: requirement, Version: "1.0.0", BackendUsed: f.name})
	return backend.InstallResult{BackendUsed: f.name, PackagesInstalled: []string{requirement}}, nil
}
func (f *fakeBackend) UninstallPackage(_ context.Context, _, name string) error {
	kept := f.packages[:0]
	for _, p := range f.packages {
		if p.Name != name {
			kept = append(kept, p)
		}
	}
	f.packages = kept
	return nil
}
func (f *fakeBackend) UpdatePackage(context.Context, string, string) error { return nil }
func (f *fakeBackend) ListPackages(context.Context, string) ([]model.PackageInfo, error) {
	return f.packages, nil
}
func (f *fakeBackend) SyncFromPyproject(context.Context, string, string, []string) (backend.InstallResult, error) {
	return backend.InstallResult{}, nil
}
func (f *fakeBackend) InstallFromRequirements(context.Context, string, string) (backend.InstallResult, error) {
	return backend.InstallResult{}, nil
}
func (f *fakeBackend) CreateLockFile(context.Context, string) error          { return nil }
func (f *fakeBackend) InstallFromLock(context.Context, string, string) error { return nil }

var _ backend.PackageBackend = (*fakeBackend)(nil)

func newTestManager(t *testing.T) *manager.Manager {
	t.Helper()
	root := t.TempDir()

	reg, err := registry.Open(filepath.Join(root, "environments.json"))
	require.NoError(t, err)
	store, err := cache.Open(filepath.Join(root, "cache"))
	require.NoError(t, err)
	fb := &fakeBackend{name: "pip"}
	sel := backend.NewSelector(fb)
	p := platform.New()
	lc := lifecycle.New(p, sel, store, reg, filepath.Join(root, "environments"))
	diag := diagnostic.New(p, sel, store, filepath.Join(root, "diagnostic-snapshots"))
	cfg := &model.Config{}

	return manager.New(lc, diag, reg, sel, store, cfg, "0.1.0-test")
}

func TestManagerCreateListInfo(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	_, err := m.Create(context.Background(), "demo", "3.11", lifecycle.CreateOptions{})
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 1)

	info, err := m.Info("demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", info.Name)
}

func TestManagerDeleteRequiresForce(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	_, err := m.Create(context.Background(), "demo", "3.11", lifecycle.CreateOptions{})
	require.NoError(t, err)

	assert.Error(t, m.Delete(context.Background(), "demo", false))
	assert.NoError(t, m.Delete(context.Background(), "demo", true))
}

func TestManagerInstallAndExport(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	_, err := m.Create(context.Background(), "demo", "3.11", lifecycle.CreateOptions{})
	require.NoError(t, err)

	_, failed, err := m.Install(context.Background(), "demo", []string{"requests"}, lifecycle.InstallOptions{})
	require.NoError(t, err)
	assert.Empty(t, failed)

	data, err := m.Export("demo", export.FormatRequirements)
	require.NoError(t, err)
	assert.Contains(t, string(data), "requests")
}

func TestManagerCheckAndRepair(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	_, err := m.Create(context.Background(), "demo", "3.11", lifecycle.CreateOptions{})
	require.NoError(t, err)

	report, err := m.Check(context.Background(), "demo", false)
	require.NoError(t, err)
	assert.Equal(t, model.HealthHealthy, report.OverallStatus)

	_, _, err = m.Repair(context.Background(), "demo", false)
	require.NoError(t, err)
}

func TestManagerVersionString(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	assert.Equal(t, "0.1.0-test", m.VersionString())
}
