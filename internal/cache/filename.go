// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"regexp"
	"strings"
)

// knownExtensions are stripped longest-first from an artifact filename
// before the name/version split, per spec.md §4.2.
var knownExtensions = []string{".tar.gz", ".whl", ".zip", ".tar", ".gz"}

// versionTailPattern matches the tail of a dash-separated token that looks
// like a version component, per spec.md §4.2's filename-parsing rule.
var versionTailPattern = regexp.MustCompile(`^\d+(\.\d+)*([A-Za-z]\d*)?(\.\w+)*$`)

// ParseArtifactFilename splits a cached artifact's filename into a package
// name and version, following spec.md §4.2: strip the longest known
// extension, split the stem on "-", and take the first token whose tail
// matches the version pattern as the version; everything before it is the
// name. If no token matches, version is "unknown".
func ParseArtifactFilename(filename string) (name, version string) {
	stem := filename
	for _, ext := range knownExtensions {
		if strings.HasSuffix(stem, ext) {
			stem = strings.TrimSuffix(stem, ext)
			break
		}
	}

	parts := strings.Split(stem, "-")
	for i, part := range parts {
		if versionTailPattern.MatchString(part) {
			return strings.Join(parts[:i], "-"), part
		}
	}
	return stem, "unknown"
}
