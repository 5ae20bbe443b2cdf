// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package diagnostic

import (
	"os"
	"path/filepath"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/gestvenv/gestvenv/internal/atomicfile"
)

// capabilitySnapshot is the on-disk record of what a backend's installer
// reported the last time check 4 (checkInstaller) probed it successfully.
// Snapshots let a later Diagnose call distinguish "this backend has never
// worked" from "this backend's capabilities changed since it last worked"
// without re-probing every installer on every run.
type capabilitySnapshot struct {
	Backend      string    `json:"backend" yaml:"backend"`
	InstallerCmd string    `json:"installerCmd" yaml:"installerCmd"`
	Version      string    `json:"version" yaml:"version"`
	ProbedAt     time.Time `json:"probedAt" yaml:"probedAt"`
}

func snapshotPath(dir, backend string) string {
	return filepath.Join(dir, backend+".yaml")
}

// loadCapabilitySnapshot reads and strictly decodes the snapshot for
// backend, mirroring the teacher's own yaml.Unmarshal(..., DisallowUnknownFields)
// use for platform descriptors: an unrecognized field means the snapshot is
// from a newer or incompatible build and should not be trusted silently.
func loadCapabilitySnapshot(dir, backend string) (capabilitySnapshot, bool, error) {
	if dir == "" {
		return capabilitySnapshot{}, false, nil
	}
	data, err := os.ReadFile(snapshotPath(dir, backend))
	if err != nil {
		if os.IsNotExist(err) {
			return capabilitySnapshot{}, false, nil
		}
		return capabilitySnapshot{}, false, err
	}
	var snap capabilitySnapshot
	if err := yaml.Unmarshal(data, &snap, yaml.DisallowUnknownFields); err != nil {
		return capabilitySnapshot{}, false, err
	}
	return snap, true, nil
}

// saveCapabilitySnapshot writes the snapshot for backend, replacing any
// earlier one.
func saveCapabilitySnapshot(dir string, snap capabilitySnapshot) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}
	return atomicfile.Write(snapshotPath(dir, snap.Backend), data, 0o644)
}
