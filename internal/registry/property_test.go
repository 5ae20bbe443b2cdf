// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package registry_test

import (
	"path/filepath"
	"testing"
	"testing/quick"

	"github.com/gestvenv/gestvenv/internal/registry"
	"github.com/gestvenv/gestvenv/pkg/testutil"
)

// TestPropertySetActiveIsIdempotent: two successive SetActive(n) calls
// leave the registry in the same state, per spec.md §8.
func TestPropertySetActiveIsIdempotent(t *testing.T) {
	t.Parallel()
	names := []string{"alpha", "beta", "gamma", "delta"}

	testutil.QuickCheck(t, func(pick uint8) bool {
		r, err := registry.Open(filepath.Join(t.TempDir(), "environments.json"))
		if err != nil {
			return false
		}
		for _, n := range names {
			if err := r.Add(sampleEnv(n)); err != nil {
				return false
			}
		}
		name := names[int(pick)%len(names)]

		if err := r.SetActive(name); err != nil {
			return false
		}
		firstActive := r.ActiveName()
		firstList := r.List()

		if err := r.SetActive(name); err != nil {
			return false
		}
		secondActive := r.ActiveName()
		secondList := r.List()

		if firstActive != secondActive || firstActive != name {
			return false
		}
		if len(firstList) != len(secondList) {
			return false
		}
		for i := range firstList {
			if firstList[i].IsActive != secondList[i].IsActive {
				return false
			}
		}
		return true
	}, quick.Config{MaxCount: 50})
}

// TestPropertySingleActiveInvariant: after any sequence of SetActive calls,
// at most one entry has is_active = true, per spec.md §8.
func TestPropertySingleActiveInvariant(t *testing.T) {
	t.Parallel()
	names := []string{"alpha", "beta", "gamma"}

	testutil.QuickCheck(t, func(sequence []uint8) bool {
		if len(sequence) == 0 {
			return true
		}
		r, err := registry.Open(filepath.Join(t.TempDir(), "environments.json"))
		if err != nil {
			return false
		}
		for _, n := range names {
			if err := r.Add(sampleEnv(n)); err != nil {
				return false
			}
		}
		for _, pick := range sequence {
			if err := r.SetActive(names[int(pick)%len(names)]); err != nil {
				return false
			}
		}
		activeCount := 0
		for _, env := range r.List() {
			if env.IsActive {
				activeCount++
			}
		}
		return activeCount <= 1
	}, quick.Config{MaxCount: 50})
}
