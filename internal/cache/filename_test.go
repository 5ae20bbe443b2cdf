// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gestvenv/gestvenv/internal/cache"
)

func TestParseArtifactFilename(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		filename string
		name     string
		version  string
	}{
		"wheel": {
			filename: "requests-2.31.0-py3-none-any.whl",
			name:     "requests",
			version:  "2.31.0",
		},
		"sdist-tar-gz": {
			filename: "numpy-1.26.4.tar.gz",
			name:     "numpy",
			version:  "1.26.4",
		},
		"dashed-name": {
			filename: "python-dateutil-2.9.0.post0.tar.gz",
			name:     "python-dateutil",
			version:  "2.9.0.post0",
		},
		"no-version": {
			filename: "local-package.whl",
			name:     "local-package",
			version:  "unknown",
		},
	}
	for name, tc := range testcases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			gotName, gotVersion := cache.ParseArtifactFilename(tc.filename)
			assert.Equal(t, tc.name, gotName)
			assert.Equal(t, tc.version, gotVersion)
		})
	}
}
