// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"

	"github.com/gestvenv/gestvenv/internal/model"
	"github.com/gestvenv/gestvenv/internal/platform"
)

// stubBackend is shared machinery for backends whose capability descriptors
// participate in selection but whose core operations are not yet
// implemented, per spec.md §4.3 ("core operations are stubs that return
// structured 'not implemented' results").
type stubBackend struct {
	adapter *platform.Adapter
	binary  string
	name    string
	caps    model.BackendCapabilities

	probe availabilityProbe
}

func (b *stubBackend) Name() string                       { return b.name }
func (b *stubBackend) Capabilities() model.BackendCapabilities { return b.caps }
func (b *stubBackend) IsAvailable(ctx context.Context) bool {
	return b.probe.check(ctx, b.adapter, b.binary, "--version")
}

func (b *stubBackend) CreateEnvironment(ctx context.Context, envPath, pythonVersion string) error {
	return notImplemented(b.name, "create_environment")
}
func (b *stubBackend) InstallPackage(ctx context.Context, envPath, requirement string, opts InstallOptions) (InstallResult, error) {
	return InstallResult{BackendUsed: b.name}, notImplemented(b.name, "install_package")
}
func (b *stubBackend) UninstallPackage(ctx context.Context, envPath, name string) error {
	return notImplemented(b.name, "uninstall_package")
}
func (b *stubBackend) UpdatePackage(ctx context.Context, envPath, name string) error {
	return notImplemented(b.name, "update_package")
}
func (b *stubBackend) ListPackages(ctx context.Context, envPath string) ([]model.PackageInfo, error) {
	return nil, notImplemented(b.name, "list_packages")
}
func (b *stubBackend) SyncFromPyproject(ctx context.Context, envPath, pyprojectPath string, groups []string) (InstallResult, error) {
	return InstallResult{BackendUsed: b.name}, notImplemented(b.name, "sync_from_pyproject")
}
func (b *stubBackend) InstallFromRequirements(ctx context.Context, envPath, reqPath string) (InstallResult, error) {
	return InstallResult{BackendUsed: b.name}, notImplemented(b.name, "install_from_requirements")
}
func (b *stubBackend) CreateLockFile(ctx context.Context, pyprojectPath string) error {
	return notImplemented(b.name, "create_lock_file")
}
func (b *stubBackend) InstallFromLock(ctx context.Context, envPath, lockPath string) error {
	return notImplemented(b.name, "install_from_lock")
}

// Poetry declares its capability descriptor for selection purposes; its
// operations are not yet implemented against the poetry CLI.
type Poetry struct{ stubBackend }

func NewPoetry(adapter *platform.Adapter) *Poetry {
	return &Poetry{stubBackend{
		adapter: adapter,
		binary:  "poetry",
		name:    "poetry",
		caps: model.BackendCapabilities{
			LockFiles:        true,
			DependencyGroups: true,
			ParallelInstall:  false,
			EditableInstalls: true,
			Workspace:        false,
			PyprojectSync:    true,
			SupportedFormats: []model.SourceFileType{model.SourcePyprojectToml, model.SourcePoetryLock},
			MaxParallelJobs:  1,
			PerformanceScore: 6,
		},
	}}
}

// Pdm declares its capability descriptor for selection purposes; its
// operations are not yet implemented against the pdm CLI.
type Pdm struct{ stubBackend }

func NewPdm(adapter *platform.Adapter) *Pdm {
	return &Pdm{stubBackend{
		adapter: adapter,
		binary:  "pdm",
		name:    "pdm",
		caps: model.BackendCapabilities{
			LockFiles:        true,
			DependencyGroups: true,
			ParallelInstall:  true,
			EditableInstalls: true,
			Workspace:        true,
			PyprojectSync:    true,
			SupportedFormats: []model.SourceFileType{model.SourcePyprojectToml},
			MaxParallelJobs:  4,
			PerformanceScore: 7,
		},
	}}
}

var _ PackageBackend = (*Poetry)(nil)
var _ PackageBackend = (*Pdm)(nil)
