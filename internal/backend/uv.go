// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gestvenv/gestvenv/internal/gestvenverr"
	"github.com/gestvenv/gestvenv/internal/model"
	"github.com/gestvenv/gestvenv/internal/platform"
)

// Uv wraps the single `uv` binary. Preferred for performance per spec.md §4.3.
type Uv struct {
	Adapter *platform.Adapter
	Binary  string

	probe availabilityProbe
}

func NewUv(adapter *platform.Adapter) *Uv {
	return &Uv{Adapter: adapter, Binary: "uv"}
}

func (b *Uv) Name() string { return "uv" }

func (b *Uv) Capabilities() model.BackendCapabilities {
	return model.BackendCapabilities{
		LockFiles:        true,
		DependencyGroups: true,
		ParallelInstall:  true,
		EditableInstalls: true,
		Workspace:        true,
		PyprojectSync:    true,
		SupportedFormats: []model.SourceFileType{model.SourcePyprojectToml, model.SourceUvLock, model.SourceRequirementsTxt},
		MaxParallelJobs:  8,
		PerformanceScore: 9,
	}
}

func (b *Uv) IsAvailable(ctx context.Context) bool {
	return b.probe.check(ctx, b.Adapter, b.Binary, "--version")
}

func (b *Uv) CreateEnvironment(ctx context.Context, envPath, pythonVersion string) error {
	args := []string{b.Binary, "venv", envPath}
	if pythonVersion != "" {
		args = append(args, "--python", pythonVersion)
	}
	res, err := b.Adapter.Run(ctx, args, platform.RunOptions{Timeout: 60 * time.Second})
	if err != nil {
		return err
	}
	if res.Status != platform.StatusCompleted {
		return gestvenverr.WrapBackend(b.Name(), tail(res.Stderr), nil, "creating environment at %q", envPath)
	}
	return nil
}

func (b *Uv) InstallPackage(ctx context.Context, envPath, requirement string, opts InstallOptions) (InstallResult, error) {
	if err := validateRequirement(requirement); err != nil {
		return InstallResult{BackendUsed: b.Name(), PackagesFailed: []string{requirement}}, err
	}
	interp, err := b.Adapter.InterpreterPath(envPath)
	if err != nil {
		return InstallResult{BackendUsed: b.Name()}, err
	}
	args := []string{b.Binary, "pip", "install", "--python", interp}
	if opts.Upgrade {
		args = append(args, "--upgrade")
	}
	if opts.Editable {
		args = append(args, "-e")
	}
	args = append(args, requirement)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	res, err := b.Adapter.Run(ctx, args, platform.RunOptions{Timeout: timeout})
	if err != nil {
		return InstallResult{BackendUsed: b.Name(), PackagesFailed: []string{requirement}}, err
	}
	result := InstallResult{BackendUsed: b.Name(), Output: res.Combined, Duration: res.Duration}
	if res.Status == platform.StatusCompleted {
		result.PackagesInstalled = []string{requirementName(requirement)}
		return result, nil
	}
	result.PackagesFailed = []string{requirementName(requirement)}
	return result, gestvenverr.WrapBackend(b.Name(), tail(res.Stderr), nil, "installing %q", requirement)
}

func (b *Uv) UninstallPackage(ctx context.Context, envPath, name string) error {
	interp, err := b.Adapter.InterpreterPath(envPath)
	if err != nil {
		return err
	}
	res, err := b.Adapter.Run(ctx, []string{b.Binary, "pip", "uninstall", "--python", interp, name}, platform.RunOptions{Timeout: 30 * time.Second})
	if err != nil {
		return err
	}
	if res.Status != platform.StatusCompleted {
		return gestvenverr.WrapBackend(b.Name(), tail(res.Stderr), nil, "uninstalling %q", name)
	}
	return nil
}

func (b *Uv) UpdatePackage(ctx context.Context, envPath, name string) error {
	interp, err := b.Adapter.InterpreterPath(envPath)
	if err != nil {
		return err
	}
	res, err := b.Adapter.Run(ctx, []string{b.Binary, "pip", "install", "--python", interp, "--upgrade", name}, platform.RunOptions{Timeout: 60 * time.Second})
	if err != nil {
		return err
	}
	if res.Status != platform.StatusCompleted {
		return gestvenverr.WrapBackend(b.Name(), tail(res.Stderr), nil, "updating %q", name)
	}
	return nil
}

type uvListEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (b *Uv) ListPackages(ctx context.Context, envPath string) ([]model.PackageInfo, error) {
	interp, err := b.Adapter.InterpreterPath(envPath)
	if err != nil {
		return nil, err
	}
	res, err := b.Adapter.Run(ctx, []string{b.Binary, "pip", "list", "--python", interp, "--format", "json"}, platform.RunOptions{Timeout: 30 * time.Second})
	if err != nil {
		return nil, err
	}
	if res.Status != platform.StatusCompleted {
		return nil, gestvenverr.WrapBackend(b.Name(), tail(res.Stderr), nil, "listing packages in %q", envPath)
	}
	var entries []uvListEntry
	if err := json.Unmarshal([]byte(res.Stdout), &entries); err != nil {
		return nil, gestvenverr.Wrap(gestvenverr.Backend, err, "parsing uv pip list output")
	}
	packages := make([]model.PackageInfo, 0, len(entries))
	for _, e := range entries {
		packages = append(packages, model.PackageInfo{
			Name:        e.Name,
			Version:     e.Version,
			Source:      "pypi",
			BackendUsed: b.Name(),
			InstalledAt: time.Now(),
		})
	}
	return packages, nil
}

func (b *Uv) SyncFromPyproject(ctx context.Context, envPath, pyprojectPath string, groups []string) (InstallResult, error) {
	interp, err := b.Adapter.InterpreterPath(envPath)
	if err != nil {
		return InstallResult{BackendUsed: b.Name()}, err
	}
	args := []string{b.Binary, "pip", "sync", "--python", interp, pyprojectPath}
	for _, g := range groups {
		args = append(args, "--group", g)
	}
	res, err := b.Adapter.Run(ctx, args, platform.RunOptions{Timeout: 300 * time.Second})
	if err != nil {
		return InstallResult{BackendUsed: b.Name()}, err
	}
	result := InstallResult{BackendUsed: b.Name(), Output: res.Combined, Duration: res.Duration}
	if res.Status != platform.StatusCompleted {
		return result, gestvenverr.WrapBackend(b.Name(), tail(res.Stderr), nil, "syncing from %q", pyprojectPath)
	}
	return result, nil
}

func (b *Uv) InstallFromRequirements(ctx context.Context, envPath, reqPath string) (InstallResult, error) {
	interp, err := b.Adapter.InterpreterPath(envPath)
	if err != nil {
		return InstallResult{BackendUsed: b.Name()}, err
	}
	res, err := b.Adapter.Run(ctx, []string{b.Binary, "pip", "install", "--python", interp, "-r", reqPath}, platform.RunOptions{Timeout: 300 * time.Second})
	if err != nil {
		return InstallResult{BackendUsed: b.Name()}, err
	}
	result := InstallResult{BackendUsed: b.Name(), Output: res.Combined, Duration: res.Duration}
	if res.Status != platform.StatusCompleted {
		return result, gestvenverr.WrapBackend(b.Name(), tail(res.Stderr), nil, "installing from %q", reqPath)
	}
	return result, nil
}

func (b *Uv) CreateLockFile(ctx context.Context, pyprojectPath string) error {
	dir := strings.TrimSuffix(pyprojectPath, "/pyproject.toml")
	res, err := b.Adapter.Run(ctx, []string{b.Binary, "lock"}, platform.RunOptions{Timeout: 120 * time.Second, Cwd: dir})
	if err != nil {
		return err
	}
	if res.Status != platform.StatusCompleted {
		return gestvenverr.WrapBackend(b.Name(), tail(res.Stderr), nil, "locking %q", pyprojectPath)
	}
	return nil
}

func (b *Uv) InstallFromLock(ctx context.Context, envPath, lockPath string) error {
	interp, err := b.Adapter.InterpreterPath(envPath)
	if err != nil {
		return err
	}
	res, err := b.Adapter.Run(ctx, []string{b.Binary, "pip", "sync", "--python", interp, lockPath}, platform.RunOptions{Timeout: 300 * time.Second})
	if err != nil {
		return err
	}
	if res.Status != platform.StatusCompleted {
		return gestvenverr.WrapBackend(b.Name(), tail(res.Stderr), nil, "installing from lock %q", lockPath)
	}
	return nil
}

var _ PackageBackend = (*Uv)(nil)
