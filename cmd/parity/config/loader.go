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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var (
	// ErrDescriptorNotFound means the directory has no parity.yaml.
	ErrDescriptorNotFound = errors.New("project descriptor not found")

	// ErrTargetExists is returned when adding a target whose name is taken.
	ErrTargetExists = errors.New("deployment target already exists")

	// ErrTargetNotFound is returned when removing an unknown target.
	ErrTargetNotFound = errors.New("deployment target not found")
)

// WorkspaceDir is the per-project directory parity owns.
const WorkspaceDir = ".parity"

// DataDir returns the root of per-environment data for a project.
func DataDir(projectDir string) string {
	return filepath.Join(projectDir, WorkspaceDir, "data")
}

// EnvDataDir returns the data directory of one environment.
func EnvDataDir(projectDir, env string) string {
	return filepath.Join(DataDir(projectDir), env)
}

// LoadDescriptor reads and validates <projectDir>/parity.yaml.
//
// # Description
//
// The deprecated `domain` target field is rewritten to `appDomain` here and
// nowhere else; each rewrite is recorded in Migrated so the caller can warn.
// When both fields are set, appDomain wins.
//
// # Outputs
//
//   - *ProjectDescriptor: Normalized descriptor
//   - error: ErrDescriptorNotFound, a YAML parse error, or ErrInvalidDescriptor
func LoadDescriptor(projectDir string) (*ProjectDescriptor, error) {
	path := filepath.Join(projectDir, DescriptorFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDescriptorNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var d ProjectDescriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	d.migrateAliases()

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *ProjectDescriptor) migrateAliases() {
	for i := range d.Targets {
		t := &d.Targets[i]
		if t.Domain == "" {
			continue
		}
		if t.AppDomain == "" {
			t.AppDomain = t.Domain
			d.Migrated = append(d.Migrated, fmt.Sprintf("targets[%s]: 'domain' is deprecated, use 'appDomain'", t.Name))
		}
		t.Domain = ""
	}
}

// SaveDescriptor writes the descriptor to <projectDir>/parity.yaml.
//
// The file is written to a temp file and renamed into place so a crash never
// leaves a truncated descriptor.
func SaveDescriptor(projectDir string, d *ProjectDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode descriptor: %w", err)
	}
	return WriteFileAtomic(filepath.Join(projectDir, DescriptorFile), data, 0o644)
}

// AddTarget appends t after validating it.
func (d *ProjectDescriptor) AddTarget(t DeploymentTarget) error {
	if _, exists := d.Target(t.Name); exists {
		return fmt.Errorf("%w: %s", ErrTargetExists, t.Name)
	}
	if t.AppDomain == "" && t.Domain != "" {
		t.AppDomain = t.Domain
	}
	t.Domain = ""
	if err := ValidateTarget(t); err != nil {
		return err
	}
	d.Targets = append(d.Targets, t)
	return nil
}

// RemoveTarget deletes the target named env.
func (d *ProjectDescriptor) RemoveTarget(env string) error {
	for i, t := range d.Targets {
		if t.Name == env {
			d.Targets = append(d.Targets[:i], d.Targets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrTargetNotFound, env)
}

// WriteFileAtomic writes data to a sibling temp file and renames it over path.
// The parent directory is created if needed.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
