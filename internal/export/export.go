// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package export renders an EnvironmentInfo into one of the four export
// formats named in spec.md §6, and parses a subset of them back.
package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gestvenv/gestvenv/internal/gestvenverr"
	"github.com/gestvenv/gestvenv/internal/model"
)

// Format is one of the four supported export formats.
type Format string

const (
	FormatRequirements Format = "requirements"
	FormatPyproject    Format = "pyproject"
	FormatJSON         Format = "json"
	FormatYAML         Format = "yaml"
)

// Render produces the textual export of env in the given format.
func Render(env model.EnvironmentInfo, format Format) ([]byte, error) {
	switch format {
	case FormatRequirements:
		return renderRequirements(env), nil
	case FormatPyproject:
		return renderPyproject(env)
	case FormatJSON:
		return renderJSON(env)
	case FormatYAML:
		return renderYAML(env)
	default:
		return nil, gestvenverr.New(gestvenverr.Validation, "unknown export format %q", format)
	}
}

// renderRequirements emits one "name==version" line per package, sorted by
// name, per spec.md §6: "requirements (one requirement per line)".
func renderRequirements(env model.EnvironmentInfo) []byte {
	lines := make([]string, 0, len(env.Packages))
	for _, pkg := range env.Packages {
		if pkg.Version != "" {
			lines = append(lines, fmt.Sprintf("%s==%s", pkg.Name, pkg.Version))
		} else {
			lines = append(lines, pkg.Name)
		}
	}
	sort.Strings(lines)
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// pyprojectDocument mirrors the subset of PEP 621 that a rebuilt document
// needs to carry.
type pyprojectDocument struct {
	Project struct {
		Name                 string              `toml:"name"`
		Version              string              `toml:"version"`
		Description          string              `toml:"description,omitempty"`
		RequiresPython       string              `toml:"requires-python,omitempty"`
		Dependencies         []string            `toml:"dependencies,omitempty"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies,omitempty"`
	} `toml:"project"`
}

// renderPyproject rebuilds a PEP 621 document from env's current state, per
// spec.md §6: "pyproject (PEP 621 document rebuilt from the current
// EnvironmentInfo)".
func renderPyproject(env model.EnvironmentInfo) ([]byte, error) {
	var doc pyprojectDocument
	doc.Project.Name = env.Name
	doc.Project.Version = "0.0.0"
	if env.PyProjectInfo != nil {
		doc.Project.Name = env.PyProjectInfo.Name
		doc.Project.Version = env.PyProjectInfo.Version
		doc.Project.Description = env.PyProjectInfo.Description
		doc.Project.RequiresPython = env.PyProjectInfo.RequiresPython
	}

	deps := make([]string, 0, len(env.Packages))
	for _, pkg := range env.Packages {
		if pkg.Version != "" {
			deps = append(deps, fmt.Sprintf("%s==%s", pkg.Name, pkg.Version))
		} else {
			deps = append(deps, pkg.Name)
		}
	}
	sort.Strings(deps)
	doc.Project.Dependencies = deps

	if env.PyProjectInfo != nil && len(env.PyProjectInfo.OptionalDependencies) > 0 {
		doc.Project.OptionalDependencies = env.PyProjectInfo.OptionalDependencies
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return nil, gestvenverr.Wrap(gestvenverr.Integrity, err, "rendering pyproject export for %q", env.Name)
	}
	return data, nil
}

// renderJSON is the raw EnvironmentInfo serialization, per spec.md §6:
// "json (the raw EnvironmentInfo serialization)".
func renderJSON(env model.EnvironmentInfo) ([]byte, error) {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, gestvenverr.Wrap(gestvenverr.Integrity, err, "rendering json export for %q", env.Name)
	}
	return data, nil
}

// renderYAML mirrors the JSON shape over the same tagged struct, per
// spec.md §6: "yaml (a minimal hand-emitted document mirroring the JSON
// shape)" — here the struct's yaml tags define that shape rather than a
// bespoke writer.
func renderYAML(env model.EnvironmentInfo) ([]byte, error) {
	data, err := yaml.Marshal(env)
	if err != nil {
		return nil, gestvenverr.Wrap(gestvenverr.Integrity, err, "rendering yaml export for %q", env.Name)
	}
	return data, nil
}

// ParseRequirements parses a requirements.txt-shaped document into a bare
// requirement list, skipping blank lines and comments.
func ParseRequirements(data []byte) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
