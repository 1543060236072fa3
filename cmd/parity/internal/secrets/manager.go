// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package secrets

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/parity/cmd/parity/config"
	"github.com/AleutianAI/parity/cmd/parity/internal/util"
	"github.com/AleutianAI/parity/pkg/logging"
)

// InitMarker is the file whose presence inside <data>/<env>/postgres means
// the database has been initialized with the current credentials.
const InitMarker = "PG_VERSION"

// Bundle is the credential set for one environment.
type Bundle struct {
	Environment string
	Values      map[Key]string

	// Generated lists the keys created by the call that returned the bundle.
	Generated []Key
}

// Get returns the value for k.
func (b Bundle) Get(k Key) string {
	return b.Values[k]
}

// Env returns the values under their unprefixed names, ready to inject
// into the compose process.
func (b Bundle) Env() map[string]string {
	env := make(map[string]string, len(b.Values))
	for k, v := range b.Values {
		env[string(k)] = v
	}
	return env
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// EnvFile is the project's .env path.
	EnvFile string

	// DataDir is the root of per-environment data, <project>/.parity/data.
	DataDir string

	Logger *logging.Logger

	// Rand overrides crypto/rand.Reader. Tests only.
	Rand io.Reader

	// Now overrides time.Now for JWT timestamps. Tests only.
	Now func() time.Time
}

// Manager derives and persists per-environment secrets.
type Manager struct {
	envFile string
	dataDir string
	log     *logging.Logger
	rand    io.Reader
	now     func() time.Time
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		envFile: cfg.EnvFile,
		dataDir: cfg.DataDir,
		log:     cfg.Logger,
		rand:    cfg.Rand,
		now:     cfg.Now,
	}
	if m.log == nil {
		m.log = logging.Nop()
	}
	if m.rand == nil {
		m.rand = rand.Reader
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// EnvFile returns the managed .env path.
func (m *Manager) EnvFile() string {
	return m.envFile
}

// Initialized reports whether env's database has been initialized.
func (m *Manager) Initialized(env string) bool {
	_, err := os.Stat(filepath.Join(m.dataDir, env, "postgres", InitMarker))
	return err == nil
}

// LoadOrGenerate returns env's secrets, generating only what is missing.
//
// # Description
//
// Keys are stored as <ENV>_<KEY> in the .env file.
//
//   - All keys present: returned unchanged, wasGenerated=false, no write.
//   - Some missing, database not initialized: the missing keys are
//     generated, validated against their shape, and the file is rewritten
//     wholesale with existing lines untouched. wasGenerated=true.
//   - Some missing, database initialized: a configuration-inconsistency
//     StackError. New credentials could not open the existing data.
//
// ANON_KEY and SERVICE_ROLE_KEY are signed with JWT_SECRET, whether that
// secret already existed or was just generated.
//
// # Outputs
//
//   - Bundle: The complete credential set
//   - bool: Whether anything was generated and written
//   - error: *util.StackError of KindInconsistency or KindGeneration
func (m *Manager) LoadOrGenerate(env string) (Bundle, bool, error) {
	file, err := ReadEnvFile(m.envFile)
	if err != nil {
		return Bundle{}, false, util.NewStackError(util.KindGeneration,
			"cannot read secrets file", "Check the permissions of "+m.envFile, err)
	}

	prefix := config.EnvPrefix(env)
	bundle := Bundle{Environment: env, Values: make(map[Key]string, len(RequiredKeys))}
	var missing []Key
	for _, k := range RequiredKeys {
		if v, ok := file.Get(prefix + string(k)); ok && v != "" {
			bundle.Values[k] = v
		} else {
			missing = append(missing, k)
		}
	}

	if len(missing) == 0 {
		for _, k := range RequiredKeys {
			if err := ValidateShape(k, bundle.Values[k], bundle.Values[JWTSecret]); err != nil {
				m.log.Warn("existing secret does not match expected shape; leaving it untouched",
					"key", prefix+string(k), "problem", err.Error())
			}
		}
		return bundle, false, nil
	}

	if m.Initialized(env) {
		return Bundle{}, false, util.NewStackError(util.KindInconsistency,
			fmt.Sprintf("the %s database is initialized but %d of its secrets are missing from %s", env, len(missing), m.envFile),
			fmt.Sprintf("Restore %s from backup. To start over and lose all %s data, run: parity down %s --volumes && parity up %s",
				filepath.Base(m.envFile), env, env, env),
			nil)
	}

	if err := m.generate(bundle, missing); err != nil {
		return Bundle{}, false, util.NewStackError(util.KindGeneration,
			"failed to generate secrets for "+env, "Re-run the command; if it persists, check the system entropy source", err)
	}

	file.AppendComment(fmt.Sprintf("parity secrets for %s, generated %s", env, m.now().UTC().Format(time.RFC3339)))
	for _, k := range missing {
		file.Set(prefix+string(k), bundle.Values[k])
	}
	if err := WriteEnvFile(m.envFile, file); err != nil {
		return Bundle{}, false, util.NewStackError(util.KindGeneration,
			"cannot write secrets file", "Check the permissions of "+m.envFile, err)
	}

	names := make([]string, len(missing))
	for i, k := range missing {
		names[i] = prefix + string(k)
	}
	m.log.Info("generated secrets", "environment", env, "keys", names)
	bundle.Generated = missing
	return bundle, true, nil
}

// generate fills missing keys in bundle. JWT_SECRET comes first so the
// signed keys can use it.
func (m *Manager) generate(bundle Bundle, missing []Key) error {
	need := make(map[Key]bool, len(missing))
	for _, k := range missing {
		need[k] = true
	}

	if need[JWTSecret] {
		if !need[AnonKey] || !need[ServiceRoleKey] {
			m.log.Warn("JWT_SECRET is being generated but existing API keys were signed with a different secret",
				"environment", bundle.Environment)
		}
	}

	for _, k := range generationOrder {
		if !need[k] {
			continue
		}
		v, err := m.generateValue(k, bundle.Values[JWTSecret])
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		if err := ValidateShape(k, v, bundle.Values[JWTSecret]); err != nil {
			return fmt.Errorf("%s: generated value rejected: %w", k, err)
		}
		bundle.Values[k] = v
	}
	return nil
}

func (m *Manager) generateValue(k Key, jwtSecret string) (string, error) {
	shape := Schema[k]
	if shape.Role != "" {
		return SignRoleKey(shape.Role, jwtSecret, m.now())
	}
	return RandomString(m.rand, shape.Length)
}
