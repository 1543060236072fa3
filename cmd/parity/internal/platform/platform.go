// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package platform detects the backend-as-a-service platform a project uses.
//
// Detection is a pure function of the project directory and yields one of a
// closed set of variants. Consumers switch over Kind exhaustively.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Kind is the detected backend platform.
type Kind int

const (
	// None means no supported platform configuration was found.
	None Kind = iota

	// Supabase is detected by supabase/config.toml.
	Supabase
)

// String returns the platform name.
func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Supabase:
		return "supabase"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// SupabaseConfigPath is the project-relative location of the Supabase CLI config.
const SupabaseConfigPath = "supabase/config.toml"

// Documented Supabase CLI defaults.
const (
	DefaultSupabaseAPIPort    = 54321
	DefaultSupabaseDBPort     = 54322
	DefaultSupabaseStudioPort = 54323
)

// Ports are the host ports a platform's local stack listens on.
type Ports struct {
	API    int
	DB     int
	Studio int
}

// All returns the ports in a fixed order.
func (p Ports) All() []int {
	return []int{p.API, p.DB, p.Studio}
}

// DefaultSupabasePorts returns the documented default ports.
func DefaultSupabasePorts() Ports {
	return Ports{
		API:    DefaultSupabaseAPIPort,
		DB:     DefaultSupabaseDBPort,
		Studio: DefaultSupabaseStudioPort,
	}
}

// Backend is the result of detection.
type Backend struct {
	Kind  Kind
	Ports Ports

	// ConfigPath is the file that triggered detection.
	ConfigPath string

	// ParseErr is set when the platform was detected but its config could
	// not be read; Ports then holds defaults.
	ParseErr error
}

// Detected reports whether any platform was found.
func (b Backend) Detected() bool {
	return b.Kind != None
}

// Detect inspects projectDir for a supported platform.
//
// # Description
//
// A present but unreadable or malformed config still yields the platform,
// with default ports and ParseErr set. Callers log ParseErr as a warning.
//
// # Example
//
//	b := platform.Detect("/work/demo")
//	switch b.Kind {
//	case platform.Supabase:
//	    fmt.Println(b.Ports.API)
//	case platform.None:
//	}
func Detect(projectDir string) Backend {
	path := filepath.Join(projectDir, SupabaseConfigPath)
	if _, err := os.Stat(path); err != nil {
		return Backend{Kind: None}
	}
	ports, err := readSupabasePorts(path)
	return Backend{Kind: Supabase, Ports: ports, ConfigPath: path, ParseErr: err}
}

// supabaseConfig is the subset of config.toml parity reads.
type supabaseConfig struct {
	API struct {
		Port int `toml:"port"`
	} `toml:"api"`
	DB struct {
		Port int `toml:"port"`
	} `toml:"db"`
	Studio struct {
		Port int `toml:"port"`
	} `toml:"studio"`
}

var errBadPort = errors.New("port out of range")

func readSupabasePorts(path string) (Ports, error) {
	defaults := DefaultSupabasePorts()
	data, err := os.ReadFile(path)
	if err != nil {
		return defaults, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseSupabasePorts(data)
}

// ParseSupabasePorts extracts ports from config.toml content. Missing
// sections take their defaults. On any error, all defaults are returned
// together with the error.
func ParseSupabasePorts(data []byte) (Ports, error) {
	defaults := DefaultSupabasePorts()
	var cfg supabaseConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return defaults, fmt.Errorf("parse supabase config: %w", err)
	}

	ports := Ports{
		API:    orDefault(cfg.API.Port, defaults.API),
		DB:     orDefault(cfg.DB.Port, defaults.DB),
		Studio: orDefault(cfg.Studio.Port, defaults.Studio),
	}
	for _, p := range ports.All() {
		if p < 1 || p > 65535 {
			return defaults, fmt.Errorf("%w: %d", errBadPort, p)
		}
	}
	return ports, nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
