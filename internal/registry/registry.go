// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package registry implements the Environment Registry: the authoritative,
// file-backed mapping of environment name to EnvironmentInfo, per
// spec.md §4.5.
package registry

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gestvenv/gestvenv/internal/atomicfile"
	"github.com/gestvenv/gestvenv/internal/gestvenverr"
	"github.com/gestvenv/gestvenv/internal/model"
)

// document is the on-disk shape from spec.md §6: "Registry file".
type document struct {
	Environments   map[string]model.EnvironmentInfo `json:"environments"`
	ActiveEnv      *string                           `json:"active_env"`
	DefaultPython  string                             `json:"default_python"`
	Settings       map[string]interface{}            `json:"settings"`
}

func newDocument() *document {
	return &document{
		Environments: map[string]model.EnvironmentInfo{},
		Settings:     map[string]interface{}{},
	}
}

// Registry is the Environment Registry, rooted at a single JSON file.
type Registry struct {
	path string

	mu  sync.RWMutex
	doc *document
}

// Open loads (or initializes) a Registry backed by path.
func Open(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		r.doc = newDocument()
		return nil
	}
	if err != nil {
		return gestvenverr.Wrap(gestvenverr.Integrity, err, "reading registry %q", r.path)
	}
	var doc document
	if jsonErr := json.Unmarshal(data, &doc); jsonErr != nil {
		if bakErr := atomicfile.BackupCorrupt(r.path); bakErr != nil {
			return gestvenverr.Wrap(gestvenverr.Integrity, bakErr, "backing up corrupt registry %q", r.path)
		}
		r.doc = newDocument()
		return nil
	}
	if doc.Environments == nil {
		doc.Environments = map[string]model.EnvironmentInfo{}
	}
	if doc.Settings == nil {
		doc.Settings = map[string]interface{}{}
	}
	r.doc = &doc
	return nil
}

func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.doc, "", "  ")
	if err != nil {
		return gestvenverr.Wrap(gestvenverr.Integrity, err, "encoding registry")
	}
	if err := atomicfile.Write(r.path, data, 0o644); err != nil {
		return gestvenverr.Wrap(gestvenverr.Integrity, err, "writing registry %q", r.path)
	}
	return nil
}

// Add registers env. It fails if env.Name is already present.
func (r *Registry) Add(env model.EnvironmentInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.doc.Environments[env.Name]; exists {
		return gestvenverr.New(gestvenverr.Validation, "environment %q already registered", env.Name)
	}
	r.doc.Environments[env.Name] = env.Clone()
	return r.save()
}

// Update overwrites the stored record for env.Name. It fails if env.Name is
// absent.
func (r *Registry) Update(env model.EnvironmentInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.doc.Environments[env.Name]; !exists {
		return gestvenverr.New(gestvenverr.NotFound, "environment %q not registered", env.Name)
	}
	env.UpdatedAt = time.Now()
	r.doc.Environments[env.Name] = env.Clone()
	return r.save()
}

// Remove deletes the entry for name and clears active_env if it pointed to
// this name.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.doc.Environments[name]; !exists {
		return gestvenverr.New(gestvenverr.NotFound, "environment %q not registered", name)
	}
	delete(r.doc.Environments, name)
	if r.doc.ActiveEnv != nil && *r.doc.ActiveEnv == name {
		r.doc.ActiveEnv = nil
	}
	return r.save()
}

// SetActive marks name as the sole active entry, clearing is_active on
// every other stored entry.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.doc.Environments[name]; !exists {
		return gestvenverr.New(gestvenverr.NotFound, "environment %q not registered", name)
	}
	for n, env := range r.doc.Environments {
		env.IsActive = n == name
		r.doc.Environments[n] = env
	}
	active := name
	r.doc.ActiveEnv = &active
	return r.save()
}

// ClearActive clears is_active on every entry and the active_env pointer.
func (r *Registry) ClearActive() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for n, env := range r.doc.Environments {
		if env.IsActive {
			env.IsActive = false
			r.doc.Environments[n] = env
		}
	}
	r.doc.ActiveEnv = nil
	return r.save()
}

// Get returns a value copy of the entry for name.
func (r *Registry) Get(name string) (model.EnvironmentInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	env, exists := r.doc.Environments[name]
	if !exists {
		return model.EnvironmentInfo{}, gestvenverr.New(gestvenverr.NotFound, "environment %q not registered", name)
	}
	return env.Clone(), nil
}

// List returns value copies of every registered entry, ordered by name.
func (r *Registry) List() []model.EnvironmentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.doc.Environments))
	for n := range r.doc.Environments {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]model.EnvironmentInfo, 0, len(names))
	for _, n := range names {
		out = append(out, r.doc.Environments[n].Clone())
	}
	return out
}

// ActiveName returns the name of the active environment, or "" if none.
func (r *Registry) ActiveName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.doc.ActiveEnv == nil {
		return ""
	}
	return *r.doc.ActiveEnv
}

// DefaultPython returns the registry-level default Python command.
func (r *Registry) DefaultPython() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc.DefaultPython
}

// SetDefaultPython updates the registry-level default Python command.
func (r *Registry) SetDefaultPython(cmd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.DefaultPython = cmd
	return r.save()
}
