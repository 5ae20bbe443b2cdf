// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package config loads and saves the process-wide Config document, per
// spec.md §3 / SPEC_FULL.md §A.4: a single JSON file, written back through
// the write-temp-then-rename protocol shared with the Registry and Cache
// index.
package config

import (
	"encoding/json"
	"os"

	"github.com/gestvenv/gestvenv/internal/atomicfile"
	"github.com/gestvenv/gestvenv/internal/gestvenverr"
	"github.com/gestvenv/gestvenv/internal/model"
)

// Load reads the Config at path. A missing file is not an error: it returns
// model.DefaultConfig(environmentsPath) instead. A file that fails to parse
// is a ConfigError, per spec.md §7 ("the config file was malformed in a way
// that prevented safe defaults").
func Load(path, environmentsPath string) (model.Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return model.DefaultConfig(environmentsPath), nil
	}
	if err != nil {
		return model.Config{}, gestvenverr.Wrap(gestvenverr.Config, err, "reading config %q", path)
	}
	var cfg model.Config
	if jsonErr := json.Unmarshal(data, &cfg); jsonErr != nil {
		return model.Config{}, gestvenverr.Wrap(gestvenverr.Config, jsonErr, "parsing config %q", path)
	}
	if cfg.EnvironmentsPath == "" {
		cfg.EnvironmentsPath = environmentsPath
	}
	return cfg, nil
}

// Save writes cfg to path atomically.
func Save(path string, cfg model.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return gestvenverr.Wrap(gestvenverr.Config, err, "encoding config")
	}
	if err := atomicfile.Write(path, data, 0o644); err != nil {
		return gestvenverr.Wrap(gestvenverr.Config, err, "writing config %q", path)
	}
	return nil
}
