// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile implements the write-temp-then-rename protocol used by
// every metadata file the gestvenv core owns (the registry, the cache index,
// config.json): never edit a metadata file in place, per the teacher's
// fsutil conventions for wrapping low-level I/O in typed errors.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Write atomically replaces path with data: it writes to a sibling temp file
// and renames it over path, so a reader never observes a torn file.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("atomicfile.Write: creating temp file in %q: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // best-effort cleanup; rename below is what matters

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("atomicfile.Write: writing %q: %w", tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("atomicfile.Write: chmod %q: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("atomicfile.Write: syncing %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("atomicfile.Write: closing %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomicfile.Write: renaming %q to %q: %w", tmpName, path, err)
	}
	return nil
}

// BackupCorrupt renames path to path+".bak", for use when a load fails to
// parse a metadata file. It is not an error for path to not exist.
func BackupCorrupt(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	bak := path + ".bak"
	if err := os.Rename(path, bak); err != nil {
		return fmt.Errorf("atomicfile.BackupCorrupt: renaming %q to %q: %w", path, bak, err)
	}
	return nil
}
