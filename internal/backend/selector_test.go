// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestvenv/gestvenv/internal/model"
)

// fakeBackend is a minimal PackageBackend double for Selector tests.
type fakeBackend struct {
	name      string
	available bool
	caps      model.BackendCapabilities
}

func (f *fakeBackend) Name() string                           { return f.name }
func (f *fakeBackend) Capabilities() model.BackendCapabilities { return f.caps }
func (f *fakeBackend) IsAvailable(context.Context) bool        { return f.available }
func (f *fakeBackend) CreateEnvironment(context.Context, string, string) error { return nil }
func (f *fakeBackend) InstallPackage(context.Context, string, string, InstallOptions) (InstallResult, error) {
	return InstallResult{}, nil
}
func (f *fakeBackend) UninstallPackage(context.Context, string, string) error { return nil }
func (f *fakeBackend) UpdatePackage(context.Context, string, string) error    { return nil }
func (f *fakeBackend) ListPackages(context.Context, string) ([]model.PackageInfo, error) {
	return nil, nil
}
func (f *fakeBackend) SyncFromPyproject(context.Context, string, string, []string) (InstallResult, error) {
	return InstallResult{}, nil
}
func (f *fakeBackend) InstallFromRequirements(context.Context, string, string) (InstallResult, error) {
	return InstallResult{}, nil
}
func (f *fakeBackend) CreateLockFile(context.Context, string) error          { return nil }
func (f *fakeBackend) InstallFromLock(context.Context, string, string) error { return nil }

var _ PackageBackend = (*fakeBackend)(nil)

func TestSelectorExplicitPreference(t *testing.T) {
	t.Parallel()
	uv := &fakeBackend{name: "uv", available: true}
	pip := &fakeBackend{name: "pip", available: true}
	sel := NewSelector(uv, pip)

	got, err := sel.Select(context.Background(), "pip", nil, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "pip", got.Name())
}

func TestSelectorFallsBackWhenPreferenceUnavailable(t *testing.T) {
	t.Parallel()
	uv := &fakeBackend{name: "uv", available: false}
	pip := &fakeBackend{name: "pip", available: true}
	sel := NewSelector(uv, pip)

	got, err := sel.Select(context.Background(), "uv", nil, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "pip", got.Name())
}

func TestSelectorLockFileFromEnvironmentInfo(t *testing.T) {
	t.Parallel()
	uv := &fakeBackend{name: "uv", available: true}
	poetry := &fakeBackend{name: "poetry", available: true}
	sel := NewSelector(uv, poetry)

	env := &model.EnvironmentInfo{LockFilePath: "/project/poetry.lock"}
	got, err := sel.Select(context.Background(), "auto", env, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "poetry", got.Name())
}

func TestSelectorProjectDirRequirementsTxt(t *testing.T) {
	t.Parallel()
	uv := &fakeBackend{name: "uv", available: true}
	pip := &fakeBackend{name: "pip", available: true}
	sel := NewSelector(uv, pip)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("requests\n"), 0o644))

	got, err := sel.Select(context.Background(), "auto", nil, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "pip", got.Name())
}

func TestSelectorDefaultFixedOrder(t *testing.T) {
	t.Parallel()
	poetry := &fakeBackend{name: "poetry", available: true}
	pip := &fakeBackend{name: "pip", available: true}
	sel := NewSelector(poetry, pip)

	got, err := sel.Select(context.Background(), "auto", nil, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "poetry", got.Name())
}

func TestSelectorNoneAvailableFallsBackToPip(t *testing.T) {
	t.Parallel()
	uv := &fakeBackend{name: "uv", available: false}
	poetry := &fakeBackend{name: "poetry", available: false}
	pip := &fakeBackend{name: "pip", available: true}
	sel := NewSelector(uv, poetry, pip)

	got, err := sel.Select(context.Background(), "auto", nil, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "pip", got.Name())
}

func TestSelectorNoBackendAvailable(t *testing.T) {
	t.Parallel()
	pip := &fakeBackend{name: "pip", available: false}
	sel := NewSelector(pip)

	_, err := sel.Select(context.Background(), "auto", nil, "", nil)
	assert.Error(t, err)
}

func TestSelectorCapabilityRequirements(t *testing.T) {
	t.Parallel()
	uv := &fakeBackend{name: "uv", available: true, caps: model.BackendCapabilities{LockFiles: true, PerformanceScore: 9}}
	pip := &fakeBackend{name: "pip", available: true, caps: model.BackendCapabilities{LockFiles: false, PerformanceScore: 5}}
	sel := NewSelector(uv, pip)

	got, err := sel.Select(context.Background(), "auto", nil, "", &CapabilityRequirements{LockFiles: true})
	require.NoError(t, err)
	assert.Equal(t, "uv", got.Name())
}
