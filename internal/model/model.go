// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package model holds the data types shared across the gestvenv core:
// EnvironmentInfo, PyProjectInfo, PackageInfo, cache entries, backend
// capabilities, Config, and DiagnosticReport, per spec.md §3.
package model

import (
	"regexp"
	"time"
)

// BackendType names one of the supported package-installer backends.
type BackendType string

const (
	BackendAuto   BackendType = "auto"
	BackendPip    BackendType = "pip"
	BackendUv     BackendType = "uv"
	BackendPoetry BackendType = "poetry"
	BackendPdm    BackendType = "pdm"
)

// SourceFileType names the kind of manifest an environment was created from.
type SourceFileType string

const (
	SourceRequirementsTxt SourceFileType = "requirements.txt"
	SourcePyprojectToml   SourceFileType = "pyproject.toml"
	SourceSetupPy         SourceFileType = "setup.py"
	SourcePoetryLock      SourceFileType = "poetry.lock"
	SourceUvLock          SourceFileType = "uv.lock"
	SourceEnvironmentYml  SourceFileType = "environment.yml"
)

// Health is the graded health status of an environment.
type Health string

const (
	HealthHealthy     Health = "healthy"
	HealthNeedsUpdate Health = "needs_update"
	HealthHasWarnings Health = "has_warnings"
	HealthHasErrors   Health = "has_errors"
	HealthCorrupted   Health = "corrupted"
	HealthUnknown     Health = "unknown"
)

// NamePattern is the allowed shape of an environment name (spec.md §3).
var NamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// MaxNameLength is the maximum length of an environment name.
const MaxNameLength = 100

// ReservedNames may not be used as environment names.
var ReservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "lpt1": true, "system": true, "admin": true,
	"config": true, "venv": true, "env": true,
}

// PythonVersionPattern matches a bare Python version like "3.11" or "3.11.4".
var PythonVersionPattern = regexp.MustCompile(`^\d+\.\d+(\.\d+)?$`)

// DependencyGroupNamePattern matches an allowed dependency-group name.
var DependencyGroupNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// EnvironmentInfo is the canonical record of one managed environment.
type EnvironmentInfo struct {
	Name            string                 `json:"name" yaml:"name"`
	Path            string                 `json:"path" yaml:"path"`
	PythonVersion   string                 `json:"python_version" yaml:"python_version"`
	BackendType     BackendType            `json:"backend_type" yaml:"backend_type"`
	SourceFileType  SourceFileType         `json:"source_file_type" yaml:"source_file_type"`
	PyProjectInfo   *PyProjectInfo         `json:"pyproject_info,omitempty" yaml:"pyproject_info,omitempty"`
	Packages        []PackageInfo          `json:"packages" yaml:"packages"`
	DependencyGroups map[string][]string   `json:"dependency_groups" yaml:"dependency_groups"`
	LockFilePath    string                 `json:"lock_file_path,omitempty" yaml:"lock_file_path,omitempty"`
	Health          Health                 `json:"health" yaml:"health"`
	IsActive        bool                   `json:"is_active" yaml:"is_active"`
	CreatedAt       time.Time              `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at" yaml:"updated_at"`
	LastUsed        time.Time              `json:"last_used" yaml:"last_used"`
	Metadata        map[string]interface{} `json:"metadata" yaml:"metadata"`
}

// Clone returns a deep-enough value copy of the EnvironmentInfo, so callers
// never hold a pointer that aliases the Registry's canonical record.
func (e EnvironmentInfo) Clone() EnvironmentInfo {
	out := e
	out.Packages = append([]PackageInfo(nil), e.Packages...)
	if e.DependencyGroups != nil {
		out.DependencyGroups = make(map[string][]string, len(e.DependencyGroups))
		for k, v := range e.DependencyGroups {
			out.DependencyGroups[k] = append([]string(nil), v...)
		}
	}
	if e.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	if e.PyProjectInfo != nil {
		pi := *e.PyProjectInfo
		out.PyProjectInfo = &pi
	}
	return out
}

// PyProjectInfo is the parsed PEP 621 project descriptor.
type PyProjectInfo struct {
	Name                 string              `json:"name" yaml:"name"`
	Version              string              `json:"version" yaml:"version"`
	Description          string              `json:"description,omitempty" yaml:"description,omitempty"`
	RequiresPython       string              `json:"requires_python,omitempty" yaml:"requires_python,omitempty"`
	Authors              []string            `json:"authors,omitempty" yaml:"authors,omitempty"`
	Dependencies         []string            `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	OptionalDependencies map[string][]string `json:"optional_dependencies,omitempty" yaml:"optional_dependencies,omitempty"`
	BuildSystem          string              `json:"build_system,omitempty" yaml:"build_system,omitempty"`
	ToolSections         map[string]interface{} `json:"tool_sections,omitempty" yaml:"tool_sections,omitempty"`
	SourcePath           string              `json:"source_path,omitempty" yaml:"source_path,omitempty"`
}

// PackageInfo is one installed package.
type PackageInfo struct {
	Name         string    `json:"name" yaml:"name"`
	Version      string    `json:"version" yaml:"version"`
	Source       string    `json:"source" yaml:"source"`
	IsEditable   bool      `json:"is_editable" yaml:"is_editable"`
	LocalPath    string    `json:"local_path,omitempty" yaml:"local_path,omitempty"`
	BackendUsed  string    `json:"backend_used" yaml:"backend_used"`
	InstalledAt  time.Time `json:"installed_at" yaml:"installed_at"`
	Summary      string    `json:"summary,omitempty" yaml:"summary,omitempty"`
	Dependencies []string  `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Requires     []string  `json:"requires,omitempty" yaml:"requires,omitempty"`
}

// CacheEntry is one artifact in the Cache Store's index, keyed by
// (package name, version).
type CacheEntry struct {
	Path             string    `json:"path"`
	Hash             string    `json:"hash"`
	Size             int64     `json:"size"`
	AddedAt          time.Time `json:"added_at"`
	LastUsed         time.Time `json:"last_used"`
	UsageCount       int       `json:"usage_count"`
	Dependencies     []string  `json:"dependencies,omitempty"`
	OriginalFilename string    `json:"original_filename"`
	Corrupted        bool      `json:"corrupted,omitempty"`
}

// BackendCapabilities is the static descriptor of one backend.
type BackendCapabilities struct {
	LockFiles         bool             `json:"lock_files"`
	DependencyGroups  bool             `json:"dependency_groups"`
	ParallelInstall   bool             `json:"parallel_install"`
	EditableInstalls  bool             `json:"editable_installs"`
	Workspace         bool             `json:"workspace"`
	PyprojectSync     bool             `json:"pyproject_sync"`
	SupportedFormats  []SourceFileType `json:"supported_formats"`
	MaxParallelJobs   int              `json:"max_parallel_jobs"`
	PerformanceScore  int              `json:"performance_score"`
}

// Supports reports whether the capability descriptor declares support for
// the given source-file type.
func (c BackendCapabilities) Supports(t SourceFileType) bool {
	for _, f := range c.SupportedFormats {
		if f == t {
			return true
		}
	}
	return false
}

// CachePolicy is the cache-related subset of Config.
type CachePolicy struct {
	MaxSizeMB           int64 `json:"max_size_mb"`
	CleanupIntervalDays int   `json:"cleanup_interval_days"`
	Compression         bool  `json:"compression"`
	Enabled             bool  `json:"enabled"`
}

// Config is process-wide configuration, loaded from a single JSON file.
type Config struct {
	DefaultPythonVersion string      `json:"default_python_version"`
	PreferredBackend     string      `json:"preferred_backend"`
	EnvironmentsPath     string      `json:"environments_path"`
	Cache                CachePolicy `json:"cache"`
	OfflineMode          bool        `json:"offline_mode"`
	MaxParallelJobs      int         `json:"max_parallel_jobs"`
}

// DefaultConfig returns the built-in defaults (spec.md §5: default 4
// max_parallel_jobs, hard ceiling 8 for the uv backend).
func DefaultConfig(environmentsPath string) Config {
	return Config{
		DefaultPythonVersion: "3.11",
		PreferredBackend:     string(BackendAuto),
		EnvironmentsPath:     environmentsPath,
		Cache: CachePolicy{
			MaxSizeMB:           5000,
			CleanupIntervalDays: 30,
			Compression:         false,
			Enabled:             true,
		},
		OfflineMode:     false,
		MaxParallelJobs: 4,
	}
}

// IssueLevel is the severity of a diagnostic issue.
type IssueLevel string

const (
	LevelInfo     IssueLevel = "info"
	LevelWarning  IssueLevel = "warning"
	LevelError    IssueLevel = "error"
	LevelCritical IssueLevel = "critical"
)

// Issue is one diagnosed problem.
type Issue struct {
	Level        IssueLevel `json:"level"`
	Category     string     `json:"category"`
	Description  string     `json:"description"`
	Solution     string     `json:"solution,omitempty"`
	AutoFixable  bool       `json:"auto_fixable"`
	RepairAction string     `json:"repair_action,omitempty"`
}

// Recommendation is a suggested follow-up command.
type Recommendation struct {
	Command      string `json:"command"`
	Impact       int    `json:"impact"`
	SafeToApply  bool   `json:"safe_to_apply"`
}

// DiagnosticReport is the structured output of the Diagnostic Engine.
type DiagnosticReport struct {
	OverallStatus   Health                 `json:"overall_status"`
	Issues          []Issue                `json:"issues"`
	Recommendations []Recommendation       `json:"recommendations"`
	Details         map[string]interface{} `json:"details"`
	ExecutionTime   time.Duration          `json:"execution_time"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

// RepairActions named in spec.md §4.7.
const (
	ActionRecreateEnvironment      = "recreate_environment"
	ActionReinstallInterpreter     = "reinstall_interpreter"
	ActionInstallInstaller         = "install_installer"
	ActionRepairInstaller          = "repair_installer"
	ActionInstallMissingPackages   = "install_missing_packages"
	ActionReinstallBrokenPackages  = "reinstall_broken_packages"
	ActionFixPermissions           = "fix_permissions"
	ActionRepairStructure          = "repair_structure"
	ActionRepairActivationScript   = "repair_activation_script"
)
