// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose drives the container runtime through its compose CLI.
//
// Both docker ("docker compose") and podman ("podman-compose") are supported.
// Every invocation is scoped by a compose project name and an ordered list
// of overlay files, so later overlays override earlier service definitions.
package compose

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/parity/cmd/parity/internal/infra/process"
	"github.com/AleutianAI/parity/cmd/parity/internal/util"
	"github.com/AleutianAI/parity/pkg/logging"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrInvalidEnvVar is returned when an injected env key is malformed.
	ErrInvalidEnvVar = errors.New("invalid environment variable")

	// ErrNoOverlays is returned when a Project has no compose files.
	ErrNoOverlays = errors.New("no compose overlays given")

	// ErrUnknownRuntime is returned for a runtime other than docker or podman.
	ErrUnknownRuntime = errors.New("unknown container runtime")
)

var envVarKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// =============================================================================
// Types
// =============================================================================

// Runtime names a container runtime family.
type Runtime string

const (
	RuntimeDocker Runtime = "docker"
	RuntimePodman Runtime = "podman"
)

// ParseRuntime converts a setting value into a Runtime.
func ParseRuntime(s string) (Runtime, error) {
	switch Runtime(strings.ToLower(strings.TrimSpace(s))) {
	case RuntimeDocker:
		return RuntimeDocker, nil
	case RuntimePodman:
		return RuntimePodman, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRuntime, s)
	}
}

// Binary returns the compose command and its leading arguments.
func (r Runtime) Binary() (string, []string) {
	if r == RuntimePodman {
		return "podman-compose", nil
	}
	return "docker", []string{"compose"}
}

// Project is one compose invocation target.
type Project struct {
	// Name is the compose project name, "<project>-<env>".
	Name string

	// Dir is the working directory for the invocation.
	Dir string

	// Files are overlay paths in application order.
	Files []string
}

// UpOptions configures Up.
type UpOptions struct {
	// Env is injected into the compose process. Keys must match
	// [a-zA-Z_][a-zA-Z0-9_]*.
	Env map[string]string

	// RemoveOrphans drops containers for services no longer defined.
	RemoveOrphans bool

	// Timeout overrides the executor default.
	Timeout time.Duration
}

// DownOptions configures Down.
type DownOptions struct {
	// RemoveVolumes deletes named volumes. Destroys database state.
	RemoveVolumes bool

	RemoveOrphans bool
	Timeout       time.Duration
}

// Result captures one compose invocation.
type Result struct {
	Success  bool
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	Command  string
}

// Executor runs compose lifecycle commands.
type Executor interface {
	// Up runs `up -d` for the project. On a non-zero exit the Result is
	// still returned alongside the error, so callers can inspect what
	// started.
	Up(ctx context.Context, p Project, opts UpOptions) (*Result, error)

	// Down runs `down` for the project.
	Down(ctx context.Context, p Project, opts DownOptions) (*Result, error)

	// Version returns the compose tool version, e.g. "2.24.5".
	Version(ctx context.Context) (string, error)

	// Runtime reports which runtime family this executor drives.
	Runtime() Runtime
}

// Config configures DefaultExecutor.
type Config struct {
	Runtime Runtime

	// DefaultTimeout bounds each invocation. Default: 10 minutes.
	DefaultTimeout time.Duration

	Logger *logging.Logger
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultExecutor shells out to the compose CLI through a process.Manager.
type DefaultExecutor struct {
	config Config
	proc   process.Manager
	log    *logging.Logger

	// mu serializes mutating operations.
	mu sync.Mutex
}

// NewExecutor creates an executor for the configured runtime.
//
// # Outputs
//
//   - *DefaultExecutor: Ready to use
//   - error: If proc is nil, or ErrUnknownRuntime for a bad runtime
func NewExecutor(cfg Config, proc process.Manager) (*DefaultExecutor, error) {
	if proc == nil {
		return nil, fmt.Errorf("compose executor: process manager is nil")
	}
	if cfg.Runtime != RuntimeDocker && cfg.Runtime != RuntimePodman {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuntime, cfg.Runtime)
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 10 * time.Minute
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &DefaultExecutor{config: cfg, proc: proc, log: log}, nil
}

// Runtime reports the configured runtime.
func (e *DefaultExecutor) Runtime() Runtime {
	return e.config.Runtime
}

// Up starts the project's containers detached.
//
// # Example
//
//	res, err := exec.Up(ctx, compose.Project{
//	    Name:  "demo-staging",
//	    Dir:   "/src/demo",
//	    Files: []string{".parity/compose/base.yml", ".parity/compose/deployment.yml"},
//	}, compose.UpOptions{Env: map[string]string{"PARITY_ENV": "staging"}})
func (e *DefaultExecutor) Up(ctx context.Context, p Project, opts UpOptions) (*Result, error) {
	if err := validateEnvVars(opts.Env); err != nil {
		return nil, err
	}
	args, err := projectArgs(p)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	args = append(args, "up", "-d")
	if opts.RemoveOrphans {
		args = append(args, "--remove-orphans")
	}
	return e.run(ctx, p.Dir, args, opts.Env, e.resolveTimeout(opts.Timeout))
}

// Down stops and removes the project's containers. Files may be empty, in
// which case the runtime resolves the project by name alone.
func (e *DefaultExecutor) Down(ctx context.Context, p Project, opts DownOptions) (*Result, error) {
	args := []string{"-p", p.Name}
	for _, f := range p.Files {
		args = append(args, "-f", f)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	args = append(args, "down")
	if opts.RemoveOrphans {
		args = append(args, "--remove-orphans")
	}
	if opts.RemoveVolumes {
		args = append(args, "--volumes")
	}
	return e.run(ctx, p.Dir, args, nil, e.resolveTimeout(opts.Timeout))
}

func (e *DefaultExecutor) run(ctx context.Context, dir string, args []string, env map[string]string, timeout time.Duration) (*Result, error) {
	start := time.Now()
	name, lead := e.config.Runtime.Binary()
	full := append(append([]string{}, lead...), args...)
	cmdStr := name + " " + strings.Join(full, " ")

	e.logCommand(cmdStr, dir, env)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, exitCode, err := e.proc.RunInDir(execCtx, dir, buildCommandEnvironment(env), name, full...)

	result := &Result{
		Success:  exitCode == 0 && err == nil,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: time.Since(start),
		Command:  cmdStr,
	}

	if err != nil {
		return result, util.NewCommandError(cmdStr, exitCode, stderr, err)
	}
	if exitCode != 0 {
		return result, util.NewCommandError(cmdStr, exitCode, stderr, nil)
	}
	return result, nil
}

func projectArgs(p Project) ([]string, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("compose project name is empty")
	}
	if len(p.Files) == 0 {
		return nil, ErrNoOverlays
	}
	args := []string{"-p", p.Name}
	for _, f := range p.Files {
		args = append(args, "-f", f)
	}
	return args, nil
}

func (e *DefaultExecutor) resolveTimeout(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return e.config.DefaultTimeout
}

// buildCommandEnvironment renders env as sorted KEY=VALUE entries. The
// process manager appends them to the parent environment.
func buildCommandEnvironment(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(keys))
	for _, k := range keys {
		result = append(result, k+"="+env[k])
	}
	return result
}

func (e *DefaultExecutor) logCommand(cmd, dir string, env map[string]string) {
	attrs := []any{"command", cmd, "dir", dir}
	if len(env) > 0 {
		attrs = append(attrs, "env", redactEnv(env))
	}
	e.log.Debug("executing compose", attrs...)
}

// redactEnv renders env for logging with sensitive values masked.
func redactEnv(env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := env[k]
		if isSensitiveEnvVar(k) {
			v = "[REDACTED]"
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}

// isSensitiveEnvVar flags names that look like credentials.
func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	return strings.Contains(upper, "TOKEN") ||
		strings.Contains(upper, "SECRET") ||
		strings.Contains(upper, "KEY") ||
		strings.Contains(upper, "PASSWORD") ||
		strings.Contains(upper, "CREDENTIAL")
}

func validateEnvVars(env map[string]string) error {
	for key := range env {
		if !envVarKeyRegex.MatchString(key) {
			return fmt.Errorf("%w: key %q contains invalid characters (must match [a-zA-Z_][a-zA-Z0-9_]*)", ErrInvalidEnvVar, key)
		}
	}
	return nil
}

var _ Executor = (*DefaultExecutor)(nil)
