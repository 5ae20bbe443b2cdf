// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestvenv/gestvenv/internal/config"
	"github.com/gestvenv/gestvenv/internal/model"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := config.Load(path, "/envs")
	require.NoError(t, err)
	assert.Equal(t, "/envs", cfg.EnvironmentsPath)
	assert.Equal(t, "3.11", cfg.DefaultPythonVersion)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := model.DefaultConfig("/envs")
	cfg.PreferredBackend = "uv"

	require.NoError(t, config.Save(path, cfg))
	got, err := config.Load(path, "/envs")
	require.NoError(t, err)
	assert.Equal(t, "uv", got.PreferredBackend)
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("config diverged across save/load round-trip (-want +got):\n%s", diff)
	}
}

func TestLoadMalformedFileIsConfigError(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := config.Load(path, "/envs")
	assert.Error(t, err)
}
