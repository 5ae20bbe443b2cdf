// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package backend implements the Backend Abstraction: a uniform contract
// over heterogeneous Python package installers, per spec.md §4.3.
package backend

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gestvenv/gestvenv/internal/gestvenverr"
	"github.com/gestvenv/gestvenv/internal/model"
	"github.com/gestvenv/gestvenv/internal/platform"
	"github.com/gestvenv/gestvenv/pkg/python/pep440"
)

// InstallOptions configures a single InstallPackage call.
type InstallOptions struct {
	Upgrade  bool
	Editable bool
	Timeout  time.Duration
}

// InstallResult reports the outcome of an install-shaped operation. Backends
// always populate PackagesInstalled/PackagesFailed where applicable and
// BackendUsed with their own name, per spec.md §4.3's behaviour-parity rule.
type InstallResult struct {
	PackagesInstalled []string
	PackagesFailed    []string
	BackendUsed       string
	Output            string
	Duration          time.Duration
}

// PackageBackend is the fixed contract every installer variant implements.
// Every operation returns a structured result or error; none panics on a
// subprocess's non-zero exit.
type PackageBackend interface {
	Name() string
	Capabilities() model.BackendCapabilities
	IsAvailable(ctx context.Context) bool

	CreateEnvironment(ctx context.Context, envPath, pythonVersion string) error
	InstallPackage(ctx context.Context, envPath, requirement string, opts InstallOptions) (InstallResult, error)
	UninstallPackage(ctx context.Context, envPath, name string) error
	UpdatePackage(ctx context.Context, envPath, name string) error
	ListPackages(ctx context.Context, envPath string) ([]model.PackageInfo, error)

	SyncFromPyproject(ctx context.Context, envPath, pyprojectPath string, groups []string) (InstallResult, error)
	InstallFromRequirements(ctx context.Context, envPath, reqPath string) (InstallResult, error)
	CreateLockFile(ctx context.Context, pyprojectPath string) error
	InstallFromLock(ctx context.Context, envPath, lockPath string) error
}

// forbiddenChars are the shell metacharacters spec.md §4.3 requires every
// backend to reject in a requirement string before invocation.
var forbiddenChars = []string{";", "|", "&", "`", "$"}

// requirementNamePattern matches the distribution-name portion of a
// requirement string, before any extras or version specifier.
var requirementNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*`)

// validateRequirement rejects shell metacharacters and, when the
// requirement carries a version clause, checks it for PEP 440 syntactic
// validity. This supplements spec.md §4.3 with the stricter check present in
// original_source/gestvenv/utils/security.py, per SPEC_FULL.md §C.3.
func validateRequirement(requirement string) error {
	trimmed := strings.TrimSpace(requirement)
	if trimmed == "" {
		return gestvenverr.New(gestvenverr.Validation, "empty requirement string")
	}
	for _, ch := range forbiddenChars {
		if strings.Contains(trimmed, ch) {
			return gestvenverr.New(gestvenverr.Validation, "requirement %q contains forbidden character %q", requirement, ch)
		}
	}

	name := requirementNamePattern.FindString(trimmed)
	if name == "" {
		return gestvenverr.New(gestvenverr.Validation, "requirement %q has no valid package name", requirement)
	}
	rest := trimmed[len(name):]
	rest = stripExtras(rest)
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil
	}
	if _, err := pep440.ParseSpecifier(rest); err != nil {
		return gestvenverr.Wrap(gestvenverr.Validation, err, "requirement %q has an invalid version specifier", requirement)
	}
	return nil
}

// stripExtras removes a leading "[extra1,extra2]" clause, if present.
func stripExtras(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		return s
	}
	if idx := strings.Index(s, "]"); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// requirementName returns just the distribution name of a requirement
// string, ignoring extras and any version specifier.
func requirementName(requirement string) string {
	return requirementNamePattern.FindString(strings.TrimSpace(requirement))
}

// availabilityProbe lazily detects and caches whether a backend's
// executable responds to --version within 10s, per spec.md §4.3.
type availabilityProbe struct {
	once      sync.Once
	available bool
}

func (p *availabilityProbe) check(ctx context.Context, adapter *platform.Adapter, exe string, args ...string) bool {
	p.once.Do(func() {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		cmd := append([]string{exe}, args...)
		res, err := adapter.Run(probeCtx, cmd, platform.RunOptions{Timeout: 10 * time.Second})
		p.available = err == nil && res.Status == platform.StatusCompleted
	})
	return p.available
}

// notImplemented builds the structured "not implemented" error optional
// operations return for stub backends (Poetry, Pdm), per spec.md §4.3.
func notImplemented(backendName, op string) error {
	return gestvenverr.New(gestvenverr.Backend, "%s backend does not implement %s", backendName, op)
}
