// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bufio"
	"context"
	"os"
	"strings"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/gestvenv/gestvenv/internal/gestvenverr"
	"github.com/gestvenv/gestvenv/internal/model"
	"github.com/gestvenv/gestvenv/internal/platform"
)

// Pip wraps the standard library's venv/pip tooling. It is always available
// if a Python interpreter is, per spec.md §4.3.
type Pip struct {
	Adapter    *platform.Adapter
	Interpreter string // interpreter used to bootstrap new environments, e.g. "python3"

	probe availabilityProbe
}

func NewPip(adapter *platform.Adapter, interpreter string) *Pip {
	if interpreter == "" {
		interpreter = "python3"
	}
	return &Pip{Adapter: adapter, Interpreter: interpreter}
}

func (b *Pip) Name() string { return "pip" }

func (b *Pip) Capabilities() model.BackendCapabilities {
	return model.BackendCapabilities{
		LockFiles:        false,
		DependencyGroups: false,
		ParallelInstall:  false,
		EditableInstalls: true,
		Workspace:        false,
		PyprojectSync:    false,
		SupportedFormats: []model.SourceFileType{model.SourceRequirementsTxt},
		MaxParallelJobs:  1,
		PerformanceScore: 5,
	}
}

func (b *Pip) IsAvailable(ctx context.Context) bool {
	return b.probe.check(ctx, b.Adapter, b.Interpreter, "--version")
}

func (b *Pip) venvEnv(envPath string) []string {
	env := os.Environ()
	filtered := env[:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "PYTHONHOME=") {
			continue
		}
		filtered = append(filtered, kv)
	}
	return append(filtered, "VIRTUAL_ENV="+envPath)
}

// CreateEnvironment runs `<python> -m venv <path>`, falling back to the
// virtualenv module if venv itself is unavailable, then upgrades pip.
func (b *Pip) CreateEnvironment(ctx context.Context, envPath, pythonVersion string) error {
	res, err := b.Adapter.Run(ctx, []string{b.Interpreter, "-m", "venv", envPath}, platform.RunOptions{Timeout: 120 * time.Second})
	if err != nil {
		return err
	}
	if res.Status != platform.StatusCompleted {
		dlog.Warnf(ctx, "pip: venv module failed, falling back to virtualenv: %s", res.Stderr)
		res, err = b.Adapter.Run(ctx, []string{b.Interpreter, "-m", "virtualenv", envPath}, platform.RunOptions{Timeout: 120 * time.Second})
		if err != nil {
			return err
		}
		if res.Status != platform.StatusCompleted {
			return gestvenverr.WrapBackend(b.Name(), tail(res.Stderr), nil, "creating environment at %q", envPath)
		}
	}

	interp, err := b.Adapter.InterpreterPath(envPath)
	if err != nil {
		return err
	}
	upgrade, err := b.Adapter.Run(ctx, []string{interp, "-m", "pip", "install", "--upgrade", "pip"}, platform.RunOptions{
		Timeout: 60 * time.Second,
		Env:     b.venvEnv(envPath),
	})
	if err != nil {
		return err
	}
	if upgrade.Status != platform.StatusCompleted {
		dlog.Warnf(ctx, "pip: post-create pip upgrade failed: %s", upgrade.Stderr)
	}
	return nil
}

func tail(s string) string {
	const maxLen = 2000
	if len(s) <= maxLen {
		return s
	}
	return s[len(s)-maxLen:]
}

func (b *Pip) InstallPackage(ctx context.Context, envPath, requirement string, opts InstallOptions) (InstallResult, error) {
	if err := validateRequirement(requirement); err != nil {
		return InstallResult{BackendUsed: b.Name(), PackagesFailed: []string{requirement}}, err
	}
	interp, err := b.Adapter.InterpreterPath(envPath)
	if err != nil {
		return InstallResult{BackendUsed: b.Name()}, err
	}
	args := []string{interp, "-m", "pip", "install"}
	if opts.Upgrade {
		args = append(args, "--upgrade")
	}
	if opts.Editable {
		args = append(args, "-e")
	}
	args = append(args, requirement)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	res, err := b.Adapter.Run(ctx, args, platform.RunOptions{Timeout: timeout, Env: b.venvEnv(envPath)})
	if err != nil {
		return InstallResult{BackendUsed: b.Name(), PackagesFailed: []string{requirement}}, err
	}
	result := InstallResult{BackendUsed: b.Name(), Output: res.Combined, Duration: res.Duration}
	if res.Status == platform.StatusCompleted {
		result.PackagesInstalled = []string{requirementName(requirement)}
	} else {
		result.PackagesFailed = []string{requirementName(requirement)}
		return result, gestvenverr.WrapBackend(b.Name(), tail(res.Stderr), nil, "installing %q", requirement)
	}
	return result, nil
}

func (b *Pip) UninstallPackage(ctx context.Context, envPath, name string) error {
	interp, err := b.Adapter.InterpreterPath(envPath)
	if err != nil {
		return err
	}
	res, err := b.Adapter.Run(ctx, []string{interp, "-m", "pip", "uninstall", "-y", name}, platform.RunOptions{
		Timeout: 60 * time.Second, Env: b.venvEnv(envPath),
	})
	if err != nil {
		return err
	}
	if res.Status != platform.StatusCompleted {
		return gestvenverr.WrapBackend(b.Name(), tail(res.Stderr), nil, "uninstalling %q", name)
	}
	return nil
}

func (b *Pip) UpdatePackage(ctx context.Context, envPath, name string) error {
	interp, err := b.Adapter.InterpreterPath(envPath)
	if err != nil {
		return err
	}
	res, err := b.Adapter.Run(ctx, []string{interp, "-m", "pip", "install", "--upgrade", name}, platform.RunOptions{
		Timeout: 120 * time.Second, Env: b.venvEnv(envPath),
	})
	if err != nil {
		return err
	}
	if res.Status != platform.StatusCompleted {
		return gestvenverr.WrapBackend(b.Name(), tail(res.Stderr), nil, "updating %q", name)
	}
	return nil
}

func (b *Pip) ListPackages(ctx context.Context, envPath string) ([]model.PackageInfo, error) {
	interp, err := b.Adapter.InterpreterPath(envPath)
	if err != nil {
		return nil, err
	}
	res, err := b.Adapter.Run(ctx, []string{interp, "-m", "pip", "list", "--format=freeze"}, platform.RunOptions{
		Timeout: 30 * time.Second, Env: b.venvEnv(envPath),
	})
	if err != nil {
		return nil, err
	}
	if res.Status != platform.StatusCompleted {
		return nil, gestvenverr.WrapBackend(b.Name(), tail(res.Stderr), nil, "listing packages in %q", envPath)
	}
	return parseFreezeOutput(res.Stdout, b.Name()), nil
}

func parseFreezeOutput(output, backendName string) []model.PackageInfo {
	var packages []model.PackageInfo
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "==") {
			parts := strings.SplitN(line, "==", 2)
			packages = append(packages, model.PackageInfo{
				Name:        parts[0],
				Version:     parts[1],
				Source:      "pypi",
				BackendUsed: backendName,
				InstalledAt: time.Now(),
			})
		}
	}
	return packages
}

func (b *Pip) SyncFromPyproject(ctx context.Context, envPath, pyprojectPath string, groups []string) (InstallResult, error) {
	return InstallResult{BackendUsed: b.Name()}, notImplemented(b.Name(), "sync_from_pyproject")
}

func (b *Pip) InstallFromRequirements(ctx context.Context, envPath, reqPath string) (InstallResult, error) {
	interp, err := b.Adapter.InterpreterPath(envPath)
	if err != nil {
		return InstallResult{BackendUsed: b.Name()}, err
	}
	res, err := b.Adapter.Run(ctx, []string{interp, "-m", "pip", "install", "-r", reqPath}, platform.RunOptions{
		Timeout: 300 * time.Second, Env: b.venvEnv(envPath),
	})
	if err != nil {
		return InstallResult{BackendUsed: b.Name()}, err
	}
	result := InstallResult{BackendUsed: b.Name(), Output: res.Combined, Duration: res.Duration}
	if res.Status != platform.StatusCompleted {
		return result, gestvenverr.WrapBackend(b.Name(), tail(res.Stderr), nil, "installing from %q", reqPath)
	}
	return result, nil
}

func (b *Pip) CreateLockFile(ctx context.Context, pyprojectPath string) error {
	return notImplemented(b.Name(), "create_lock_file")
}

func (b *Pip) InstallFromLock(ctx context.Context, envPath, lockPath string) error {
	return notImplemented(b.Name(), "install_from_lock")
}

var _ PackageBackend = (*Pip)(nil)
