// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package diagnostic implements the Diagnostic & Repair Engine: structured
// health checks over one environment, producing a graded DiagnosticReport,
// per spec.md §4.7.
package diagnostic

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gestvenv/gestvenv/internal/backend"
	"github.com/gestvenv/gestvenv/internal/cache"
	"github.com/gestvenv/gestvenv/internal/gestvenverr"
	"github.com/gestvenv/gestvenv/internal/model"
	"github.com/gestvenv/gestvenv/internal/platform"
)

// pureDenylist is the small set of packages check 7 never import-probes,
// per spec.md §4.7.
var pureDenylist = map[string]bool{
	"pip": true, "setuptools": true, "wheel": true,
	"pkg-resources": true, "distribute": true, "argparse": true,
}

// structureDirs are the per-family subdirectories check 2 expects to exist.
var structureDirs = [][]string{
	{"bin", "Scripts"},
	{"lib", "Lib"},
	{"include", "Include"},
}

// Mode selects how thorough a Diagnose call is.
type Mode int

const (
	// ModeQuick skips check 7 (package integrity), which imports every
	// declared pure-Python package and can be slow.
	ModeQuick Mode = iota
	ModeFull
)

// Engine runs the Diagnostic & Repair Engine's checks against one
// environment.
type Engine struct {
	Platform *platform.Adapter
	Selector *backend.Selector
	Cache    *cache.Store

	// SnapshotDir, if non-empty, is where check 4 persists one YAML
	// capability snapshot per backend across Diagnose calls. Empty
	// disables snapshotting.
	SnapshotDir string
}

// New builds an Engine over the given collaborators. snapshotDir is where
// per-backend installer capability snapshots are cached; pass "" to disable
// snapshotting.
func New(p *platform.Adapter, sel *backend.Selector, c *cache.Store, snapshotDir string) *Engine {
	return &Engine{Platform: p, Selector: sel, Cache: c, SnapshotDir: snapshotDir}
}

// Diagnose runs every check against env and returns a graded report.
func (e *Engine) Diagnose(ctx context.Context, env model.EnvironmentInfo, mode Mode) model.DiagnosticReport {
	start := time.Now()
	report := model.DiagnosticReport{
		Details: map[string]interface{}{},
	}

	exists := e.checkExistence(env, &report)
	if !exists {
		report.OverallStatus = model.HealthCorrupted
		report.ExecutionTime = time.Since(start)
		report.GeneratedAt = time.Now()
		return report
	}

	e.checkDirectoryStructure(env, &report)
	interpOK := e.checkInterpreter(ctx, env, &report)
	e.checkInstaller(ctx, env, &report)
	e.checkActivationScript(env, &report)
	e.checkPermissions(env, &report)
	if mode == ModeFull && interpOK {
		e.checkPackageIntegrity(ctx, env, &report)
	}
	e.checkConfiguredVsInstalled(ctx, env, &report)
	e.checkUpdatesAvailable(ctx, env, &report)
	e.checkDiskSpace(env, &report)
	e.checkCacheCoherence(env, &report)

	report.OverallStatus = overallStatus(report.Issues)
	report.ExecutionTime = time.Since(start)
	report.GeneratedAt = time.Now()
	return report
}

func overallStatus(issues []model.Issue) model.Health {
	status := model.HealthHealthy
	for _, issue := range issues {
		switch issue.Level {
		case model.LevelCritical:
			return model.HealthCorrupted
		case model.LevelError:
			status = model.HealthHasErrors
		case model.LevelWarning:
			if status == model.HealthHealthy {
				status = model.HealthHasWarnings
			}
		}
	}
	return status
}

func addIssue(report *model.DiagnosticReport, level model.IssueLevel, category, description, solution, repairAction string) {
	report.Issues = append(report.Issues, model.Issue{
		Level:        level,
		Category:     category,
		Description:  description,
		Solution:     solution,
		AutoFixable:  repairAction != "",
		RepairAction: repairAction,
	})
	if repairAction != "" {
		report.Recommendations = append(report.Recommendations, model.Recommendation{
			Command:     repairAction,
			Impact:      severityImpact(level),
			SafeToApply: level != model.LevelCritical,
		})
	}
}

func severityImpact(level model.IssueLevel) int {
	switch level {
	case model.LevelCritical:
		return 5
	case model.LevelError:
		return 4
	case model.LevelWarning:
		return 2
	default:
		return 1
	}
}

// checkExistence is check 1.
func (e *Engine) checkExistence(env model.EnvironmentInfo, report *model.DiagnosticReport) bool {
	if _, err := os.Stat(env.Path); err != nil {
		addIssue(report, model.LevelCritical, "existence", "environment directory is missing", "recreate the environment", model.ActionRecreateEnvironment)
		return false
	}
	return true
}

// checkDirectoryStructure is check 2.
func (e *Engine) checkDirectoryStructure(env model.EnvironmentInfo, report *model.DiagnosticReport) {
	for _, pair := range structureDirs {
		found := false
		for _, name := range pair {
			if info, err := os.Stat(filepath.Join(env.Path, name)); err == nil && info.IsDir() {
				found = true
				break
			}
		}
		if !found {
			addIssue(report, model.LevelError, "structure", "expected subdirectory "+pair[0]+"/"+pair[1]+" is missing", "repair the environment's directory structure", model.ActionRepairStructure)
		}
	}
	if _, err := os.Stat(filepath.Join(env.Path, "pyvenv.cfg")); err != nil {
		addIssue(report, model.LevelError, "structure", "interpreter-config file pyvenv.cfg is missing", "repair the environment's directory structure", model.ActionRepairStructure)
	}
}

// checkInterpreter is check 3.
func (e *Engine) checkInterpreter(ctx context.Context, env model.EnvironmentInfo, report *model.DiagnosticReport) bool {
	interp, err := e.Platform.InterpreterPath(env.Path)
	if err != nil {
		addIssue(report, model.LevelCritical, "interpreter", "interpreter executable is missing", "reinstall the interpreter", model.ActionReinstallInterpreter)
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	res, err := e.Platform.Run(probeCtx, []string{interp, "--version"}, platform.RunOptions{Timeout: 10 * time.Second})
	if err != nil || res.Status != platform.StatusCompleted {
		// The interpreter file exists but won't run (e.g. truncated or
		// otherwise corrupt) — distinct from the missing-file case above,
		// and not critical enough to mark the environment corrupted.
		addIssue(report, model.LevelError, "interpreter_broken", "interpreter is present but did not respond to --version", "reinstall the interpreter", model.ActionReinstallInterpreter)
		return false
	}
	return true
}

// checkInstaller is check 4.
func (e *Engine) checkInstaller(ctx context.Context, env model.EnvironmentInfo, report *model.DiagnosticReport) {
	installerName := "pip"
	if env.BackendType == model.BackendUv {
		installerName = "uv"
	}
	path, err := e.Platform.InstallerPath(env.Path, installerName)
	if err != nil {
		addIssue(report, model.LevelError, "installer", "installer executable "+installerName+" is missing", "install the missing installer", model.ActionInstallInstaller)
		return
	}
	res, err := e.Platform.Run(ctx, []string{path, "--version"}, platform.RunOptions{Timeout: 10 * time.Second})
	if err != nil || res.Status != platform.StatusCompleted {
		addIssue(report, model.LevelError, "installer", "installer "+installerName+" did not respond to --version", "repair the installer", model.ActionRepairInstaller)
		return
	}

	version := strings.TrimSpace(res.Stdout)
	if prev, found, err := loadCapabilitySnapshot(e.SnapshotDir, installerName); err == nil && found && prev.Version != version {
		addIssue(report, model.LevelWarning, "installer_drift",
			"installer "+installerName+" capabilities changed since the last probe ("+prev.Version+" -> "+version+")",
			"", "")
	}
	_ = saveCapabilitySnapshot(e.SnapshotDir, capabilitySnapshot{
		Backend:      installerName,
		InstallerCmd: path,
		Version:      version,
		ProbedAt:     time.Now(),
	})
}

// checkActivationScript is check 5.
func (e *Engine) checkActivationScript(env model.EnvironmentInfo, report *model.DiagnosticReport) {
	candidates := []string{
		filepath.Join(env.Path, "bin", "activate"),
		filepath.Join(env.Path, "Scripts", "activate.bat"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return
		}
	}
	addIssue(report, model.LevelWarning, "activation", "activation script is missing", "repair the activation script", model.ActionRepairActivationScript)
}

// checkPermissions is check 6.
func (e *Engine) checkPermissions(env model.EnvironmentInfo, report *model.DiagnosticReport) {
	perm := e.Platform.CheckPermissions(env.Path)
	if !perm.Read || !perm.Write {
		addIssue(report, model.LevelError, "permissions", "environment directory is not read/write accessible", "fix directory permissions", model.ActionFixPermissions)
	}
}

// checkPackageIntegrity is check 7 (full mode only).
func (e *Engine) checkPackageIntegrity(ctx context.Context, env model.EnvironmentInfo, report *model.DiagnosticReport) {
	interp, err := e.Platform.InterpreterPath(env.Path)
	if err != nil {
		return
	}
	var broken []string
	for _, pkg := range env.Packages {
		if pureDenylist[pkg.Name] {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		res, runErr := e.Platform.Run(probeCtx, []string{interp, "-c", "import " + pkg.Name}, platform.RunOptions{Timeout: 5 * time.Second})
		cancel()
		if runErr != nil || res.Status != platform.StatusCompleted {
			broken = append(broken, pkg.Name)
		}
	}
	if len(broken) > 0 {
		report.Details["broken_packages"] = broken
		addIssue(report, model.LevelError, "package_integrity", "one or more installed packages fail to import", "reinstall the broken packages", model.ActionReinstallBrokenPackages)
	}
}

// checkConfiguredVsInstalled is check 8.
func (e *Engine) checkConfiguredVsInstalled(ctx context.Context, env model.EnvironmentInfo, report *model.DiagnosticReport) {
	if env.PyProjectInfo == nil {
		return
	}
	b, err := e.Selector.Select(ctx, string(env.BackendType), &env, "", nil)
	if err != nil {
		return
	}
	listed, err := b.ListPackages(ctx, env.Path)
	if err != nil {
		return
	}
	installedSet := map[string]bool{}
	for _, p := range listed {
		installedSet[p.Name] = true
	}
	var missing []string
	for _, dep := range env.PyProjectInfo.Dependencies {
		name := dep
		if idx := indexOfAny(dep, "=<>!~["); idx >= 0 {
			name = dep[:idx]
		}
		if !installedSet[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		report.Details["missing_packages"] = missing
		addIssue(report, model.LevelWarning, "coherence", "declared dependencies are not installed", "install the missing packages", model.ActionInstallMissingPackages)
	}
}

func indexOfAny(s, chars string) int {
	for i, r := range s {
		for _, c := range chars {
			if r == c {
				return i
			}
		}
	}
	return -1
}

// checkUpdatesAvailable is check 9.
func (e *Engine) checkUpdatesAvailable(ctx context.Context, env model.EnvironmentInfo, report *model.DiagnosticReport) {
	// Outdated-package detection requires a backend-specific "list
	// outdated" invocation that Pip/Uv do not yet expose through
	// PackageBackend; until that's added, this check only records that
	// it was skipped rather than fabricate a result.
	report.Details["updates_checked"] = false
}

// checkDiskSpace is check 10.
func (e *Engine) checkDiskSpace(env model.EnvironmentInfo, report *model.DiagnosticReport) {
	free, err := e.Platform.FreeDiskBytes(env.Path)
	if err != nil {
		return
	}
	const mb = 1024 * 1024
	switch {
	case free < 100*mb:
		addIssue(report, model.LevelError, "disk_space", "less than 100MB free disk space", "free up disk space", "")
	case free < 500*mb:
		addIssue(report, model.LevelWarning, "disk_space", "less than 500MB free disk space", "free up disk space", "")
	}
}

// checkCacheCoherence is check 11.
func (e *Engine) checkCacheCoherence(env model.EnvironmentInfo, report *model.DiagnosticReport) {
	if e.Cache == nil {
		return
	}
	present, absent := 0, 0
	for _, pkg := range env.Packages {
		if e.Cache.Has(pkg.Name, pkg.Version) {
			present++
		} else {
			absent++
		}
	}
	report.Details["cache_present"] = present
	report.Details["cache_absent"] = absent
}

// Repair runs Diagnose, then — per repair-action token — invokes the
// corresponding Lifecycle routine. If autoFix is false, only the
// recommendations from the initial diagnosis are returned. repairFunc maps
// a repair-action token to its corresponding operation; callers (the
// manager facade) own the Lifecycle wiring, so Repair stays decoupled from
// import cycles with package lifecycle.
func (e *Engine) Repair(ctx context.Context, env model.EnvironmentInfo, autoFix bool, repairFunc func(ctx context.Context, action string) error) (model.DiagnosticReport, bool, error) {
	first := e.Diagnose(ctx, env, ModeFull)
	if !autoFix {
		return first, false, nil
	}

	applied := map[string]bool{}
	for _, issue := range first.Issues {
		if issue.RepairAction == "" || applied[issue.RepairAction] {
			continue
		}
		applied[issue.RepairAction] = true
		if err := repairFunc(ctx, issue.RepairAction); err != nil {
			return first, false, gestvenverr.Wrap(gestvenverr.Backend, err, "applying repair action %q", issue.RepairAction)
		}
	}

	second := e.Diagnose(ctx, env, ModeFull)
	success := second.OverallStatus == model.HealthHealthy || second.OverallStatus == model.HealthHasWarnings
	return second, success, nil
}
