// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cache_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestvenv/gestvenv/internal/cache"
)

func writeTempArtifact(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestStoreAddGetRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := t.TempDir()
	src := t.TempDir()

	store, err := cache.Open(root)
	require.NoError(t, err)

	artifact := writeTempArtifact(t, src, "requests-2.31.0-py3-none-any.whl", []byte("wheel-bytes"))
	require.NoError(t, store.Add(ctx, artifact, "requests", "2.31.0", []string{"urllib3", "certifi"}))

	assert.True(t, store.Has("requests", "2.31.0"))
	assert.True(t, store.Has("requests", ""))

	path, ok, err := store.Get("requests", "2.31.0")
	require.NoError(t, err)
	require.True(t, ok)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("wheel-bytes"), data)
}

func TestStoreGetMissingIsNotError(t *testing.T) {
	t.Parallel()
	store, err := cache.Open(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.Get("nonexistent", "1.0.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreLatestVersionSelection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := t.TempDir()
	src := t.TempDir()
	store, err := cache.Open(root)
	require.NoError(t, err)

	for _, v := range []string{"1.0.0", "2.0.0", "1.5.0"} {
		artifact := writeTempArtifact(t, src, "pkg-"+v+".tar.gz", []byte(v))
		require.NoError(t, store.Add(ctx, artifact, "pkg", v, nil))
	}

	path, ok, err := store.Get("pkg", "")
	require.NoError(t, err)
	require.True(t, ok)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("2.0.0"), data)
}

func TestStoreRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := t.TempDir()
	src := t.TempDir()
	store, err := cache.Open(root)
	require.NoError(t, err)

	artifact := writeTempArtifact(t, src, "pkg-1.0.0.tar.gz", []byte("data"))
	require.NoError(t, store.Add(ctx, artifact, "pkg", "1.0.0", nil))

	freed, err := store.Remove("pkg", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, int64(len("data")), freed)
	assert.False(t, store.Has("pkg", "1.0.0"))
}

func TestStoreVerifyIntegrityDetectsTamperedArtifact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := t.TempDir()
	src := t.TempDir()
	store, err := cache.Open(root)
	require.NoError(t, err)

	artifact := writeTempArtifact(t, src, "pkg-1.0.0.tar.gz", []byte("original"))
	require.NoError(t, store.Add(ctx, artifact, "pkg", "1.0.0", nil))

	path, ok, err := store.Get("pkg", "1.0.0")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))

	report, err := store.VerifyIntegrity()
	require.NoError(t, err)
	require.Len(t, report.Corrupted, 1)
	assert.Equal(t, "pkg", report.Corrupted[0].Name)
	assert.Equal(t, "1.0.0", report.Corrupted[0].Version)
}

func TestStoreRebuildIndexPreservesUsageStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := t.TempDir()
	src := t.TempDir()
	store, err := cache.Open(root)
	require.NoError(t, err)

	artifact := writeTempArtifact(t, src, "pkg-1.0.0.tar.gz", []byte("data"))
	require.NoError(t, store.Add(ctx, artifact, "pkg", "1.0.0", nil))
	_, _, err = store.Get("pkg", "1.0.0")
	require.NoError(t, err)

	require.NoError(t, store.RebuildIndex())
	assert.True(t, store.Has("pkg", "1.0.0"))
	entry, found := store.Entry("pkg", "1.0.0")
	require.True(t, found)
	assert.Equal(t, 1, entry.UsageCount)
}

func TestStoreExportImportRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := t.TempDir()
	src := t.TempDir()
	store, err := cache.Open(root)
	require.NoError(t, err)

	artifact := writeTempArtifact(t, src, "pkg-1.0.0.tar.gz", []byte("data"))
	require.NoError(t, store.Add(ctx, artifact, "pkg", "1.0.0", nil))

	archive := filepath.Join(t.TempDir(), "export.zip")
	require.NoError(t, store.ExportCache(archive, true))

	other, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, other.ImportCache(archive, false))
	assert.True(t, other.Has("pkg", "1.0.0"))
}

func TestStoreCacheRequirementsRoundTrip(t *testing.T) {
	t.Parallel()
	store, err := cache.Open(t.TempDir())
	require.NoError(t, err)

	id, err := store.CacheRequirements([]byte("requests==2.31.0\n"))
	require.NoError(t, err)

	data, err := store.GetCachedRequirements(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("requests==2.31.0\n"), data)
}
