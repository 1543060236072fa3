// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	settingsFile = "settings.yaml"
	markerFile   = "state.yaml"
)

// StateStore persists user-level settings and the running-environment marker.
//
// # Description
//
// Passed explicitly to everything that needs it. Production code uses
// FileStateStore rooted at ~/.parity; tests use MemoryStateStore.
//
// # Contract
//
//   - LoadMarker returns (nil, nil) when no marker exists.
//   - ClearMarker is a no-op when no marker exists.
type StateStore interface {
	LoadSettings() (Settings, error)
	SaveSettings(s Settings) error
	LoadMarker() (*RunningMarker, error)
	SaveMarker(m RunningMarker) error
	ClearMarker() error
}

// =============================================================================
// File Store
// =============================================================================

// FileStateStore keeps state as YAML files in a directory.
type FileStateStore struct {
	dir string
}

// NewFileStateStore returns a store rooted at dir. An empty dir means
// ~/.parity.
func NewFileStateStore(dir string) (*FileStateStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not find the user's home directory: %w", err)
		}
		dir = filepath.Join(home, ".parity")
	}
	return &FileStateStore{dir: dir}, nil
}

// Dir returns the store directory.
func (s *FileStateStore) Dir() string {
	return s.dir
}

// LoadSettings reads settings.yaml, creating a default file on first use.
func (s *FileStateStore) LoadSettings() (Settings, error) {
	path := filepath.Join(s.dir, settingsFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.SaveSettings(Settings{}); err != nil {
			return Settings{}, err
		}
		return Settings{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	if err := ValidateSettings(settings); err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return settings, nil
}

// SaveSettings writes settings.yaml.
func (s *FileStateStore) SaveSettings(settings Settings) error {
	if err := ValidateSettings(settings); err != nil {
		return err
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return WriteFileAtomic(filepath.Join(s.dir, settingsFile), data, 0o600)
}

// LoadMarker reads state.yaml.
func (s *FileStateStore) LoadMarker() (*RunningMarker, error) {
	path := filepath.Join(s.dir, markerFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read marker %s: %w", path, err)
	}
	var marker RunningMarker
	if err := yaml.Unmarshal(data, &marker); err != nil {
		return nil, fmt.Errorf("failed to parse marker %s: %w", path, err)
	}
	if marker.Environment == "" {
		return nil, nil
	}
	return &marker, nil
}

// SaveMarker writes state.yaml.
func (s *FileStateStore) SaveMarker(m RunningMarker) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode marker: %w", err)
	}
	return WriteFileAtomic(filepath.Join(s.dir, markerFile), data, 0o644)
}

// ClearMarker removes state.yaml.
func (s *FileStateStore) ClearMarker() error {
	err := os.Remove(filepath.Join(s.dir, markerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear marker: %w", err)
	}
	return nil
}

// =============================================================================
// Memory Store
// =============================================================================

// MemoryStateStore is an in-memory StateStore for tests.
type MemoryStateStore struct {
	Settings Settings
	Marker   *RunningMarker

	// Writes counts Save*/Clear calls.
	Writes int

	mu sync.Mutex
}

// NewMemoryStateStore returns an empty store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

func (m *MemoryStateStore) LoadSettings() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Settings, nil
}

func (m *MemoryStateStore) SaveSettings(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Settings = s
	m.Writes++
	return nil
}

func (m *MemoryStateStore) LoadMarker() (*RunningMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Marker == nil {
		return nil, nil
	}
	copied := *m.Marker
	return &copied, nil
}

func (m *MemoryStateStore) SaveMarker(marker RunningMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Marker = &marker
	m.Writes++
	return nil
}

func (m *MemoryStateStore) ClearMarker() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Marker = nil
	m.Writes++
	return nil
}

var (
	_ StateStore = (*FileStateStore)(nil)
	_ StateStore = (*MemoryStateStore)(nil)
)
