// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package cache implements the Local Package Cache: a content-addressed
// store of package artifact files under a cache root, plus a JSON sidecar
// index, per spec.md §4.2.
package cache

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/gestvenv/gestvenv/internal/atomicfile"
	"github.com/gestvenv/gestvenv/internal/gestvenverr"
	"github.com/gestvenv/gestvenv/internal/model"
	"github.com/gestvenv/gestvenv/pkg/python/pep440"
)

const (
	packagesDir     = "packages"
	metadataDir     = "metadata"
	requirementsDir = "requirements"
	tempDir         = "temp"
	indexFilename   = "index.json"
)

// indexMetadata is the "_metadata" stanza of the index document.
type indexMetadata struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// packageVersions is the per-package stanza: {"versions": {"<version>": Entry}}.
type packageVersions struct {
	Versions map[string]*model.CacheEntry `json:"versions"`
}

// index is the full on-disk document shape from spec.md §4.2.
type index struct {
	Metadata indexMetadata              `json:"_metadata"`
	Packages map[string]*packageVersions `json:"-"`
}

// MarshalJSON flattens Packages alongside _metadata at the top level, per
// the documented shape `{ "_metadata": {...}, "<name>": {"versions": {...}} }`.
func (ix index) MarshalJSON() ([]byte, error) {
	raw := make(map[string]interface{}, len(ix.Packages)+1)
	raw["_metadata"] = ix.Metadata
	for name, pv := range ix.Packages {
		raw[name] = pv
	}
	return json.Marshal(raw)
}

// UnmarshalJSON reverses MarshalJSON.
func (ix *index) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ix.Packages = make(map[string]*packageVersions)
	for key, val := range raw {
		if key == "_metadata" {
			if err := json.Unmarshal(val, &ix.Metadata); err != nil {
				return err
			}
			continue
		}
		var pv packageVersions
		if err := json.Unmarshal(val, &pv); err != nil {
			return err
		}
		if pv.Versions == nil {
			pv.Versions = map[string]*model.CacheEntry{}
		}
		ix.Packages[key] = &pv
	}
	return nil
}

func newIndex() *index {
	return &index{
		Metadata: indexMetadata{Version: 1, UpdatedAt: time.Now()},
		Packages: map[string]*packageVersions{},
	}
}

// IntegrityReport is the result of VerifyIntegrity.
type IntegrityReport struct {
	Corrupted []CorruptEntry
	Orphans   []string
}

// CorruptEntry names one index entry whose backing file is missing or whose
// hash no longer matches.
type CorruptEntry struct {
	Name    string
	Version string
	Reason  string
}

// Store is the Local Package Cache, rooted at a directory on disk.
type Store struct {
	root string

	mu  sync.Mutex
	idx *index
}

// Open loads (or initializes) a Store rooted at root. root is created if
// absent.
func Open(root string) (*Store, error) {
	for _, sub := range []string{packagesDir, metadataDir, requirementsDir, tempDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, gestvenverr.Wrap(gestvenverr.Integrity, err, "creating cache directory %q", sub)
		}
	}
	s := &Store{root: root}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) indexPath() string { return filepath.Join(s.root, metadataDir, indexFilename) }

// load reads the index from disk. A parse failure backs up the bad file and
// starts from an empty index, per spec.md §4.2 and §9.
func (s *Store) load() error {
	path := s.indexPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.idx = newIndex()
		return nil
	}
	if err != nil {
		return gestvenverr.Wrap(gestvenverr.Integrity, err, "reading cache index %q", path)
	}
	var ix index
	if err := json.Unmarshal(data, &ix); err != nil {
		if bakErr := atomicfile.BackupCorrupt(path); bakErr != nil {
			return gestvenverr.Wrap(gestvenverr.Integrity, bakErr, "backing up corrupt index %q", path)
		}
		s.idx = newIndex()
		return nil
	}
	s.idx = &ix
	return nil
}

// save persists the index via write-temp-then-rename, copying the previous
// file to index.json.bak first, per spec.md §4.2.
func (s *Store) save() error {
	path := s.indexPath()
	if data, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".bak", data, 0o644) //nolint:errcheck // best-effort backup
	}
	s.idx.Metadata.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(s.idx, "", "  ")
	if err != nil {
		return gestvenverr.Wrap(gestvenverr.Integrity, err, "encoding cache index")
	}
	if err := atomicfile.Write(path, data, 0o644); err != nil {
		return gestvenverr.Wrap(gestvenverr.Integrity, err, "writing cache index %q", path)
	}
	return nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Add copies artifactPath into the cache for (name, version), recording its
// hash, size, and declared dependencies. It overwrites any existing entry
// for the same (name, version) atomically.
func (s *Store) Add(ctx context.Context, artifactPath, name, version string, declaredDeps []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	destDir := filepath.Join(s.root, packagesDir, name)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return gestvenverr.Wrap(gestvenverr.Integrity, err, "creating package directory for %q", name)
	}
	destPath := filepath.Join(destDir, filepath.Base(artifactPath))

	if err := copyFile(artifactPath, destPath); err != nil {
		return gestvenverr.Wrap(gestvenverr.Integrity, err, "copying artifact %q into cache", artifactPath)
	}

	hash, size, err := hashFile(destPath)
	if err != nil {
		return gestvenverr.Wrap(gestvenverr.Integrity, err, "hashing cached artifact %q", destPath)
	}

	rel, err := filepath.Rel(s.root, destPath)
	if err != nil {
		rel = destPath
	}

	now := time.Now()
	pv, ok := s.idx.Packages[name]
	if !ok {
		pv = &packageVersions{Versions: map[string]*model.CacheEntry{}}
		s.idx.Packages[name] = pv
	}
	existing, hadExisting := pv.Versions[version]
	entry := &model.CacheEntry{
		Path:             rel,
		Hash:             hash,
		Size:             size,
		AddedAt:          now,
		LastUsed:         now,
		UsageCount:       0,
		Dependencies:     declaredDeps,
		OriginalFilename: filepath.Base(artifactPath),
	}
	if hadExisting {
		entry.AddedAt = existing.AddedAt
		entry.UsageCount = existing.UsageCount
	}
	pv.Versions[version] = entry

	dlog.Infof(ctx, "cache: added %s %s (%d bytes)", name, version, size)
	return s.save()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// latestVersion picks the highest PEP 440 version among versions. The
// literal "unknown" sentinel is always skipped. Other strings that do not
// parse as PEP 440 are considered only when no parseable version exists; the
// highest of them by reverse string order is then returned. Skipped entries
// remain retrievable by exact lookup.
func latestVersion(versions map[string]*model.CacheEntry) string {
	type parsed struct {
		raw string
		ver *pep440.Version
	}
	var candidates []parsed
	var fallback []string
	for v := range versions {
		if v == "unknown" {
			continue
		}
		if pv, err := pep440.ParseVersion(v); err == nil {
			candidates = append(candidates, parsed{raw: v, ver: pv})
		} else {
			fallback = append(fallback, v)
		}
	}
	if len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].ver.Cmp(*candidates[j].ver) > 0
		})
		return candidates[0].raw
	}
	if len(fallback) > 0 {
		sort.Sort(sort.Reverse(sort.StringSlice(fallback)))
		return fallback[0]
	}
	return ""
}

// Has reports whether a cache entry exists for (name, version) without
// touching usage stats. version == "" selects the latest.
func (s *Store) Has(name, version string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.lookupLocked(name, version)
	return entry != nil
}

// VersionCount returns how many distinct versions of name are recorded in
// the index.
func (s *Store) VersionCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pv, ok := s.idx.Packages[name]
	if !ok {
		return 0
	}
	return len(pv.Versions)
}

// Entry returns a copy of the recorded CacheEntry for (name, version)
// without touching usage stats. version == "" selects the latest.
func (s *Store) Entry(name, version string) (model.CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.lookupLocked(name, version)
	if entry == nil {
		return model.CacheEntry{}, false
	}
	return *entry, true
}

func (s *Store) lookupLocked(name, version string) *model.CacheEntry {
	pv, ok := s.idx.Packages[name]
	if !ok {
		return nil
	}
	if version == "" {
		version = latestVersion(pv.Versions)
		if version == "" {
			return nil
		}
	}
	return pv.Versions[version]
}

// Get returns the path to the cached artifact for (name, version), or
// "absent" (ok == false) if the index entry is missing, the file is
// missing, or the file's hash no longer matches. On a hit, usage_count is
// incremented and last_used is updated.
func (s *Store) Get(name, version string) (path string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.lookupLocked(name, version)
	if entry == nil {
		return "", false, nil
	}
	full := filepath.Join(s.root, entry.Path)
	actualHash, _, hashErr := hashFile(full)
	if hashErr != nil || actualHash != entry.Hash {
		entry.Corrupted = true
		return "", false, nil
	}
	entry.Corrupted = false
	entry.UsageCount++
	entry.LastUsed = time.Now()
	if err := s.save(); err != nil {
		return "", false, err
	}
	return full, true, nil
}

// Remove deletes the artifact(s) for name. If version is "", all versions of
// name are removed. It returns the number of bytes freed.
func (s *Store) Remove(name, version string) (bytesFreed int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pv, ok := s.idx.Packages[name]
	if !ok {
		return 0, nil
	}

	removeOne := func(v string, e *model.CacheEntry) {
		full := filepath.Join(s.root, e.Path)
		if info, statErr := os.Stat(full); statErr == nil {
			bytesFreed += info.Size()
		}
		_ = os.Remove(full) //nolint:errcheck // best-effort
		delete(pv.Versions, v)
	}

	if version == "" {
		for v, e := range pv.Versions {
			removeOne(v, e)
		}
	} else if e, ok := pv.Versions[version]; ok {
		removeOne(version, e)
	}

	if len(pv.Versions) == 0 {
		delete(s.idx.Packages, name)
		_ = os.Remove(filepath.Join(s.root, packagesDir, name)) //nolint:errcheck // only succeeds if empty
	}

	return bytesFreed, s.save()
}

// evictionCandidate is one version considered for Clean.
type evictionCandidate struct {
	name, version string
	entry         *model.CacheEntry
	ageDays       float64
	score         float64
}

// Clean evicts cache entries to bring total size under maxSizeMB, per
// spec.md §4.2's eviction algorithm: only packages that would still have
// at least keepMinVersions versions after removal are candidates; among
// aged-out candidates, the one scoring highest on age_days/usage_count (with
// usage_count floored at 1) is evicted first.
func (s *Store) Clean(maxAgeDays int, maxSizeMB int64, keepMinVersions int) (removedCount int, bytesFreed int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total, err := s.totalSizeLocked()
	if err != nil {
		return 0, 0, err
	}
	limit := maxSizeMB * 1024 * 1024
	if total <= limit {
		return 0, 0, nil
	}

	now := time.Now()
	var candidates []evictionCandidate
	for name, pv := range s.idx.Packages {
		if len(pv.Versions) <= keepMinVersions {
			continue
		}
		removable := len(pv.Versions) - keepMinVersions
		type verAge struct {
			version string
			entry   *model.CacheEntry
			age     float64
		}
		var vs []verAge
		for v, e := range pv.Versions {
			age := now.Sub(e.AddedAt).Hours() / 24
			if age > float64(maxAgeDays) {
				vs = append(vs, verAge{v, e, age})
			}
		}
		sort.Slice(vs, func(i, j int) bool { return vs[i].age > vs[j].age })
		if len(vs) > removable {
			vs = vs[:removable]
		}
		for _, v := range vs {
			usage := v.entry.UsageCount
			if usage < 1 {
				usage = 1
			}
			candidates = append(candidates, evictionCandidate{
				name: name, version: v.version, entry: v.entry,
				ageDays: v.age,
				score:   v.age / float64(usage),
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	for _, c := range candidates {
		if total <= limit {
			break
		}
		full := filepath.Join(s.root, c.entry.Path)
		size := c.entry.Size
		if info, statErr := os.Stat(full); statErr == nil {
			size = info.Size()
		}
		_ = os.Remove(full) //nolint:errcheck // best-effort
		delete(s.idx.Packages[c.name].Versions, c.version)
		if len(s.idx.Packages[c.name].Versions) == 0 {
			delete(s.idx.Packages, c.name)
			_ = os.Remove(filepath.Join(s.root, packagesDir, c.name)) //nolint:errcheck
		}
		total -= size
		bytesFreed += size
		removedCount++
	}

	return removedCount, bytesFreed, s.save()
}

func (s *Store) totalSizeLocked() (int64, error) {
	var total int64
	for _, pv := range s.idx.Packages {
		for _, e := range pv.Versions {
			total += e.Size
		}
	}
	return total, nil
}

// VerifyIntegrity enumerates all index entries, flags any whose file is
// missing or hash-mismatched, and reports orphan files under packages/ not
// referenced by the index.
func (s *Store) VerifyIntegrity() (IntegrityReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report IntegrityReport
	referenced := map[string]bool{}

	for name, pv := range s.idx.Packages {
		for version, e := range pv.Versions {
			full := filepath.Join(s.root, e.Path)
			referenced[full] = true
			actualHash, _, err := hashFile(full)
			switch {
			case err != nil:
				e.Corrupted = true
				report.Corrupted = append(report.Corrupted, CorruptEntry{name, version, "missing"})
			case actualHash != e.Hash:
				e.Corrupted = true
				report.Corrupted = append(report.Corrupted, CorruptEntry{name, version, "hash mismatch"})
			default:
				e.Corrupted = false
			}
		}
	}

	_ = filepath.Walk(filepath.Join(s.root, packagesDir), func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !referenced[path] {
			report.Orphans = append(report.Orphans, path)
		}
		return nil
	})

	return report, s.save()
}

// RebuildIndex scans packages/ from scratch, re-deriving (name, version)
// from each filename, re-hashing, and preserving prior usage_count/last_used
// where a matching entry already existed.
func (s *Store) RebuildIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.idx
	fresh := newIndex()

	packagesRoot := filepath.Join(s.root, packagesDir)
	entries, err := os.ReadDir(packagesRoot)
	if err != nil {
		if os.IsNotExist(err) {
			s.idx = fresh
			return s.save()
		}
		return gestvenverr.Wrap(gestvenverr.Integrity, err, "reading packages directory")
	}

	for _, dirEntry := range entries {
		if !dirEntry.IsDir() {
			continue
		}
		pkgDir := filepath.Join(packagesRoot, dirEntry.Name())
		files, err := os.ReadDir(pkgDir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			name, version := ParseArtifactFilename(f.Name())
			full := filepath.Join(pkgDir, f.Name())
			hash, size, err := hashFile(full)
			if err != nil {
				continue
			}
			rel, _ := filepath.Rel(s.root, full)
			entry := &model.CacheEntry{
				Path:             rel,
				Hash:             hash,
				Size:             size,
				AddedAt:          time.Now(),
				LastUsed:         time.Now(),
				OriginalFilename: f.Name(),
			}
			if oldPv, ok := old.Packages[name]; ok {
				if oldEntry, ok := oldPv.Versions[version]; ok {
					entry.UsageCount = oldEntry.UsageCount
					entry.LastUsed = oldEntry.LastUsed
					entry.AddedAt = oldEntry.AddedAt
					entry.Dependencies = oldEntry.Dependencies
				}
			}
			pv, ok := fresh.Packages[name]
			if !ok {
				pv = &packageVersions{Versions: map[string]*model.CacheEntry{}}
				fresh.Packages[name] = pv
			}
			pv.Versions[version] = entry
		}
	}

	s.idx = fresh
	return s.save()
}

// CacheRequirements stores a requirements document and returns its content
// id (the hex sha256 of its bytes).
func (s *Store) CacheRequirements(content []byte) (string, error) {
	sum := sha256.Sum256(content)
	id := hex.EncodeToString(sum[:])
	path := filepath.Join(s.root, requirementsDir, id+".txt")
	if err := atomicfile.Write(path, content, 0o644); err != nil {
		return "", gestvenverr.Wrap(gestvenverr.Integrity, err, "caching requirements document")
	}
	return id, nil
}

// GetCachedRequirements returns the content previously stored under id.
func (s *Store) GetCachedRequirements(id string) ([]byte, error) {
	path := filepath.Join(s.root, requirementsDir, id+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, gestvenverr.Wrap(gestvenverr.NotFound, err, "cached requirements %q", id)
	}
	return data, nil
}

// ExportCache writes a zip archive at destPath containing the index and,
// if includeArtifacts, every cached package file.
func (s *Store) ExportCache(destPath string, includeArtifacts bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(destPath)
	if err != nil {
		return gestvenverr.Wrap(gestvenverr.Integrity, err, "creating export archive %q", destPath)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	indexData, err := json.MarshalIndent(s.idx, "", "  ")
	if err != nil {
		return err
	}
	if w, err := zw.Create(filepath.ToSlash(filepath.Join(metadataDir, indexFilename))); err != nil {
		return err
	} else if _, err := w.Write(indexData); err != nil {
		return err
	}

	if includeArtifacts {
		for _, pv := range s.idx.Packages {
			for _, e := range pv.Versions {
				if err := addFileToZip(zw, s.root, e.Path); err != nil {
					return gestvenverr.Wrap(gestvenverr.Integrity, err, "exporting artifact %q", e.Path)
				}
			}
		}
	}
	return nil
}

func addFileToZip(zw *zip.Writer, root, rel string) error {
	full := filepath.Join(root, rel)
	data, err := os.ReadFile(full)
	if err != nil {
		return err
	}
	w, err := zw.Create(filepath.ToSlash(rel))
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ImportCache reads a zip archive previously produced by ExportCache and
// merges (merge == true) or replaces (merge == false) the current index and
// artifacts.
func (s *Store) ImportCache(srcPath string, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	zr, err := zip.OpenReader(srcPath)
	if err != nil {
		return gestvenverr.Wrap(gestvenverr.Integrity, err, "opening import archive %q", srcPath)
	}
	defer zr.Close()

	var imported *index
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, indexFilename) {
			rc, err := f.Open()
			if err != nil {
				return err
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return err
			}
			imported = &index{}
			if err := json.Unmarshal(data, imported); err != nil {
				return gestvenverr.Wrap(gestvenverr.Integrity, err, "parsing imported index")
			}
			break
		}
	}
	if imported == nil {
		return gestvenverr.New(gestvenverr.Integrity, "import archive %q has no index", srcPath)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, indexFilename) {
			continue
		}
		destPath := filepath.Join(s.root, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(destPath)
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return copyErr
		}
	}

	if !merge {
		s.idx = imported
		return s.save()
	}

	for name, pv := range imported.Packages {
		dst, ok := s.idx.Packages[name]
		if !ok {
			s.idx.Packages[name] = pv
			continue
		}
		for v, e := range pv.Versions {
			dst.Versions[v] = e
		}
	}
	return s.save()
}
