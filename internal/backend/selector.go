// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/gestvenv/gestvenv/internal/gestvenverr"
	"github.com/gestvenv/gestvenv/internal/model"
)

// CapabilityRequirements names the BackendCapabilities flags a caller
// requires a selected backend to satisfy.
type CapabilityRequirements struct {
	LockFiles        bool
	DependencyGroups bool
	ParallelInstall  bool
	EditableInstalls bool
	Workspace        bool
	PyprojectSync    bool
}

func (r CapabilityRequirements) satisfiedBy(c model.BackendCapabilities) bool {
	if r.LockFiles && !c.LockFiles {
		return false
	}
	if r.DependencyGroups && !c.DependencyGroups {
		return false
	}
	if r.ParallelInstall && !c.ParallelInstall {
		return false
	}
	if r.EditableInstalls && !c.EditableInstalls {
		return false
	}
	if r.Workspace && !c.Workspace {
		return false
	}
	if r.PyprojectSync && !c.PyprojectSync {
		return false
	}
	return true
}

// lockFileBackends maps a lock-file basename to the backend that owns it.
var lockFileBackends = map[string]string{
	"uv.lock":     "uv",
	"poetry.lock": "poetry",
	"pdm.lock":    "pdm",
}

// fixedOrder is the default fallback order when nothing else disambiguates
// a choice, per spec.md §4.4 step 4.
var fixedOrder = []string{"uv", "poetry", "pdm", "pip"}

// Selector implements the Backend Selector: spec.md §4.4's algorithm for
// choosing a PackageBackend from an explicit preference, environment
// metadata, project-directory markers, and capability requirements.
type Selector struct {
	backends map[string]PackageBackend
	order    []string
}

// NewSelector builds a Selector over the given backends, keyed by their own
// Name().
func NewSelector(backends ...PackageBackend) *Selector {
	s := &Selector{backends: map[string]PackageBackend{}}
	for _, b := range backends {
		s.backends[b.Name()] = b
		s.order = append(s.order, b.Name())
	}
	return s
}

func (s *Selector) byName(name string) (PackageBackend, bool) {
	b, ok := s.backends[name]
	return b, ok
}

func (s *Selector) available(ctx context.Context, name string) (PackageBackend, bool) {
	b, ok := s.byName(name)
	if !ok {
		return nil, false
	}
	return b, b.IsAvailable(ctx)
}

// Select runs spec.md §4.4's algorithm. preference is "auto" or a backend
// name. env and projectDir are both optional. When caps is non-nil, only
// backends satisfying every required flag are eligible.
func (s *Selector) Select(ctx context.Context, preference string, env *model.EnvironmentInfo, projectDir string, caps *CapabilityRequirements) (PackageBackend, error) {
	if caps != nil {
		return s.selectByCapability(ctx, *caps)
	}

	if preference != "" && preference != string(model.BackendAuto) {
		if b, ok := s.available(ctx, preference); ok {
			return b, nil
		}
	}

	if env != nil && env.LockFilePath != "" {
		base := filepath.Base(env.LockFilePath)
		if name, ok := lockFileBackends[base]; ok {
			if b, ok := s.available(ctx, name); ok {
				return b, nil
			}
		}
	}

	if projectDir != "" {
		if name, ok := s.inferFromProjectDir(projectDir); ok {
			if b, ok := s.available(ctx, name); ok {
				return b, nil
			}
		}
	}

	for _, name := range fixedOrder {
		if b, ok := s.available(ctx, name); ok {
			return b, nil
		}
	}

	if b, ok := s.available(ctx, "pip"); ok {
		return b, nil
	}
	return nil, gestvenverr.New(gestvenverr.Backend, "no backend available")
}

// inferFromProjectDir walks the priority order from spec.md §4.4 step 3.
func (s *Selector) inferFromProjectDir(dir string) (string, bool) {
	priority := []string{"uv.lock", "poetry.lock", "pdm.lock", "pyproject.toml", "requirements.txt"}
	for _, fname := range priority {
		path := filepath.Join(dir, fname)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if name, ok := lockFileBackends[fname]; ok {
			return name, true
		}
		if fname == "pyproject.toml" {
			return inferFromPyproject(path), true
		}
		return "pip", true
	}
	return "", false
}

// inferFromPyproject inspects [tool.*] sections and build-system.build-backend
// to infer poetry, pdm, or uv, defaulting to uv for modern documents.
func inferFromPyproject(path string) string {
	info, err := ParsePyProject(path)
	if err != nil {
		return "uv"
	}
	if _, ok := info.ToolSections["poetry"]; ok {
		return "poetry"
	}
	if _, ok := info.ToolSections["pdm"]; ok {
		return "pdm"
	}
	if strings.Contains(strings.ToLower(info.BuildSystem), "poetry") {
		return "poetry"
	}
	if strings.Contains(strings.ToLower(info.BuildSystem), "pdm") {
		return "pdm"
	}
	return "uv"
}

func (s *Selector) selectByCapability(ctx context.Context, req CapabilityRequirements) (PackageBackend, error) {
	var best PackageBackend
	bestScore := -1
	for _, name := range s.order {
		b, ok := s.available(ctx, name)
		if !ok {
			continue
		}
		caps := b.Capabilities()
		if !req.satisfiedBy(caps) {
			continue
		}
		if caps.PerformanceScore > bestScore {
			best = b
			bestScore = caps.PerformanceScore
		}
	}
	if best == nil {
		return nil, gestvenverr.New(gestvenverr.Backend, "no backend satisfies the required capabilities")
	}
	return best, nil
}
