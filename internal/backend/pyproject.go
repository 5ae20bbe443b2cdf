// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/gestvenv/gestvenv/internal/gestvenverr"
	"github.com/gestvenv/gestvenv/internal/model"
)

type pyprojectDocument struct {
	Project struct {
		Name                 string              `toml:"name"`
		Version              string              `toml:"version"`
		Description          string              `toml:"description"`
		RequiresPython       string              `toml:"requires-python"`
		Authors              []map[string]string `toml:"authors"`
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	BuildSystem struct {
		Requires     []string `toml:"requires"`
		BuildBackend string   `toml:"build-backend"`
	} `toml:"build-system"`
	Tool map[string]interface{} `toml:"tool"`
}

// ParsePyProject decodes a PEP 621 pyproject.toml document into a
// model.PyProjectInfo, validating that every declared requirement string is
// syntactically valid (spec.md §3's PyProjectInfo invariant).
func ParsePyProject(path string) (*model.PyProjectInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, gestvenverr.Wrap(gestvenverr.NotFound, err, "reading pyproject.toml at %q", path)
	}

	var doc pyprojectDocument
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, gestvenverr.Wrap(gestvenverr.Validation, err, "parsing pyproject.toml at %q", path)
	}
	if doc.Project.Name == "" {
		return nil, gestvenverr.New(gestvenverr.Validation, "pyproject.toml at %q has no [project] name", path)
	}
	if doc.Project.Version == "" {
		return nil, gestvenverr.New(gestvenverr.Validation, "pyproject.toml at %q has no [project] version", path)
	}

	for _, dep := range doc.Project.Dependencies {
		if err := validateRequirement(dep); err != nil {
			return nil, err
		}
	}
	for group, deps := range doc.Project.OptionalDependencies {
		for _, dep := range deps {
			if err := validateRequirement(dep); err != nil {
				return nil, gestvenverr.Wrap(gestvenverr.Validation, err, "optional-dependencies group %q", group)
			}
		}
	}

	authors := make([]string, 0, len(doc.Project.Authors))
	for _, a := range doc.Project.Authors {
		if name, ok := a["name"]; ok {
			authors = append(authors, name)
		}
	}

	return &model.PyProjectInfo{
		Name:                 doc.Project.Name,
		Version:              doc.Project.Version,
		Description:          doc.Project.Description,
		RequiresPython:       doc.Project.RequiresPython,
		Authors:              authors,
		Dependencies:         doc.Project.Dependencies,
		OptionalDependencies: doc.Project.OptionalDependencies,
		BuildSystem:          doc.BuildSystem.BuildBackend,
		ToolSections:         doc.Tool,
		SourcePath:           path,
	}, nil
}
