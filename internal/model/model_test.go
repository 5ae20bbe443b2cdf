// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package model_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gestvenv/gestvenv/internal/model"
)

func TestEnvironmentInfoCloneRoundTrips(t *testing.T) {
	t.Parallel()
	orig := model.EnvironmentInfo{
		Name:           "demo",
		Path:           "/envs/demo",
		PythonVersion:  "3.11",
		BackendType:    model.BackendUv,
		SourceFileType: model.SourcePyprojectToml,
		PyProjectInfo: &model.PyProjectInfo{
			Name:         "demo",
			Version:      "0.1.0",
			Dependencies: []string{"requests>=2"},
		},
		Packages:         []model.PackageInfo{{Name: "requests", Version: "2.31.0"}},
		DependencyGroups: map[string][]string{"dev": {"pytest"}},
		Health:           model.HealthHealthy,
		CreatedAt:        time.Unix(1700000000, 0).UTC(),
		Metadata:         map[string]interface{}{"source": "test"},
	}

	clone := orig.Clone()
	if diff := cmp.Diff(orig, clone); diff != "" {
		t.Fatalf("clone diverged from original (-want +got):\n%s", diff)
	}

	// Mutating the clone's reference-typed fields must not alias the
	// original: Clone is a deep-enough copy, not a shallow value copy.
	clone.Packages[0].Version = "0.0.0"
	clone.DependencyGroups["dev"][0] = "mutated"
	clone.Metadata["source"] = "mutated"
	clone.PyProjectInfo.Version = "9.9.9"

	if diff := cmp.Diff(orig, clone); diff == "" {
		t.Fatal("expected clone mutation to diverge from original, got no diff")
	}
	if orig.Packages[0].Version != "2.31.0" {
		t.Fatalf("mutating clone.Packages leaked into original: %q", orig.Packages[0].Version)
	}
	if orig.DependencyGroups["dev"][0] != "pytest" {
		t.Fatalf("mutating clone.DependencyGroups leaked into original: %q", orig.DependencyGroups["dev"][0])
	}
	if orig.Metadata["source"] != "test" {
		t.Fatalf("mutating clone.Metadata leaked into original: %v", orig.Metadata["source"])
	}
	if orig.PyProjectInfo.Version != "0.1.0" {
		t.Fatalf("mutating clone.PyProjectInfo leaked into original: %q", orig.PyProjectInfo.Version)
	}
}
