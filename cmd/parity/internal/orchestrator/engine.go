// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package orchestrator is the parity Orchestration Engine.

Engine.Up drives one bring-up through a fixed state machine:

	Idle → ResolvingMode → CheckingConflicts → {Reconciling | AlreadyUpToDate}
	     → Starting → {Healthy | PartiallyFailed | Failed}

Every collaborator is injected through Deps so tests can substitute mocks
for the container runtime, the inspector, the state store, and the
operator. Engine methods are serialized: one bring-up or tear-down runs to
completion before the next begins.
*/
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/AleutianAI/parity/cmd/parity/config"
	"github.com/AleutianAI/parity/cmd/parity/internal/certs"
	"github.com/AleutianAI/parity/cmd/parity/internal/infra/compose"
	"github.com/AleutianAI/parity/cmd/parity/internal/infra/process"
	"github.com/AleutianAI/parity/cmd/parity/internal/inspect"
	"github.com/AleutianAI/parity/cmd/parity/internal/migrate"
	"github.com/AleutianAI/parity/cmd/parity/internal/platform"
	"github.com/AleutianAI/parity/cmd/parity/internal/secrets"
	"github.com/AleutianAI/parity/cmd/parity/internal/telemetry"
	"github.com/AleutianAI/parity/cmd/parity/internal/util"
	"github.com/AleutianAI/parity/pkg/logging"
	"github.com/AleutianAI/parity/pkg/ux"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNilDependency is returned when a required dependency is nil.
	ErrNilDependency = errors.New("required dependency is nil")

	// ErrPanicRecovered is returned when a panic was recovered during an
	// operation.
	ErrPanicRecovered = errors.New("panic recovered during operation")
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// Inspector is the read-only view of the host and the container runtime.
// All methods degrade to "unknown" rather than failing, except
// ContainerStatus, whose error the engine interprets per phase.
type Inspector interface {
	DetectRunningEnvironment(ctx context.Context) *config.RunningMarker
	CheckPortConflicts(ctx context.Context, ports []int) *inspect.PortConflict
	CheckCompetingLocalService(ctx context.Context, knownPorts []int) bool
	ContainerStatus(ctx context.Context, composeProject string, expected []string) (inspect.ContainerStatus, error)
}

// SecretStore yields per-environment credentials.
type SecretStore interface {
	LoadOrGenerate(env string) (secrets.Bundle, bool, error)
}

// Migrator applies schema migrations after a healthy deployment bring-up.
type Migrator interface {
	Run(ctx context.Context, t migrate.Target) migrate.Outcome
}

var (
	_ Inspector   = (*inspect.Inspector)(nil)
	_ SecretStore = (*secrets.Manager)(nil)
	_ Migrator    = (*migrate.Runner)(nil)
)

// =============================================================================
// Engine
// =============================================================================

// Deps are the Engine's collaborators.
type Deps struct {
	// ProjectDir is the absolute project root holding parity.yaml.
	ProjectDir string

	Runtime   config.Runtime
	Executor  compose.Executor
	Inspector Inspector
	Secrets   SecretStore
	Certs     certs.Provisioner
	Migrator  Migrator
	Store     config.StateStore
	Prompter  util.UserPrompter

	// Proc stops competing processes the operator agreed to stop.
	Proc process.Manager

	// Locker guards the project directory. Optional.
	Locker process.Locker

	// Console receives operator-facing output. Optional; defaults to a
	// console that discards everything.
	Console *ux.Console

	Logger *logging.Logger

	// Metrics records bring-up outcomes. Optional.
	Metrics *telemetry.Metrics

	// Now overrides time.Now. Tests only.
	Now func() time.Time
}

// Engine brings environments up and down.
type Engine struct {
	projectDir string
	runtime    config.Runtime
	executor   compose.Executor
	inspector  Inspector
	secrets    SecretStore
	certs      certs.Provisioner
	migrator   Migrator
	store      config.StateStore
	prompter   util.UserPrompter
	proc       process.Manager
	locker     process.Locker
	console    *ux.Console
	log        *logging.Logger
	metrics    *telemetry.Metrics
	now        func() time.Time

	// mu serializes every operation that writes project or runtime state.
	mu sync.Mutex
}

// NewEngine validates deps and creates an Engine.
//
// # Outputs
//
//   - *Engine: Ready to use
//   - error: ErrNilDependency naming the first missing collaborator
func NewEngine(deps Deps) (*Engine, error) {
	switch {
	case deps.ProjectDir == "":
		return nil, fmt.Errorf("%w: ProjectDir", ErrNilDependency)
	case deps.Executor == nil:
		return nil, fmt.Errorf("%w: Executor", ErrNilDependency)
	case deps.Inspector == nil:
		return nil, fmt.Errorf("%w: Inspector", ErrNilDependency)
	case deps.Secrets == nil:
		return nil, fmt.Errorf("%w: SecretStore", ErrNilDependency)
	case deps.Certs == nil:
		return nil, fmt.Errorf("%w: certs.Provisioner", ErrNilDependency)
	case deps.Migrator == nil:
		return nil, fmt.Errorf("%w: Migrator", ErrNilDependency)
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: StateStore", ErrNilDependency)
	case deps.Prompter == nil:
		return nil, fmt.Errorf("%w: UserPrompter", ErrNilDependency)
	case deps.Proc == nil:
		return nil, fmt.Errorf("%w: process.Manager", ErrNilDependency)
	}

	e := &Engine{
		projectDir: deps.ProjectDir,
		runtime:    deps.Runtime,
		executor:   deps.Executor,
		inspector:  deps.Inspector,
		secrets:    deps.Secrets,
		certs:      deps.Certs,
		migrator:   deps.Migrator,
		store:      deps.Store,
		prompter:   deps.Prompter,
		proc:       deps.Proc,
		locker:     deps.Locker,
		console:    deps.Console,
		log:        deps.Logger,
		metrics:    deps.Metrics,
		now:        deps.Now,
	}
	if e.console == nil {
		e.console = ux.NewConsole(io.Discard, io.Discard, ux.PersonalityMachine)
	}
	if e.log == nil {
		e.log = logging.Nop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.runtime.DevDomain == "" {
		e.runtime.DevDomain = "localhost"
	}
	if e.runtime.HostAlias == "" {
		e.runtime.HostAlias = "host.docker.internal"
	}
	if e.runtime.DBPort == 0 {
		e.runtime.DBPort = 5432
	}
	return e, nil
}

// =============================================================================
// Shared Helpers
// =============================================================================

// lock takes the project lock if one is configured. The returned func
// releases it.
func (e *Engine) lock() (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}
	if err := e.locker.Acquire(); err != nil {
		var held *process.ErrLockHeld
		if errors.As(err, &held) {
			return nil, util.NewStackError(util.KindPrerequisite, held.Error(),
				"Wait for the other parity command to finish, then retry", err)
		}
		return nil, util.NewStackError(util.KindPrerequisite, "cannot lock the project directory",
			"Check the permissions of "+config.WorkspaceDir, err)
	}
	return func() {
		if err := e.locker.Release(); err != nil {
			e.log.Warn("failed to release project lock", "error", err)
		}
	}, nil
}

// loadDescriptor reads parity.yaml, mapping failures to prerequisite
// errors and warning about migrated aliases.
func (e *Engine) loadDescriptor() (*config.ProjectDescriptor, error) {
	d, err := config.LoadDescriptor(e.projectDir)
	switch {
	case errors.Is(err, config.ErrDescriptorNotFound):
		return nil, util.NewStackError(util.KindPrerequisite,
			"no "+config.DescriptorFile+" in "+e.projectDir,
			"Run parity from the project root, or pass --project-dir", err)
	case err != nil:
		return nil, util.NewStackError(util.KindPrerequisite,
			"cannot load "+config.DescriptorFile,
			"Fix the problems listed above in "+config.DescriptorFile, err)
	}
	for _, m := range d.Migrated {
		e.log.Warn("deprecated descriptor field", "rewrite", m)
		e.console.Warning(m + " (update " + config.DescriptorFile + ")")
	}
	return d, nil
}

// detectBackend runs platform detection and reports a malformed config as
// a warning.
func (e *Engine) detectBackend() platform.Backend {
	backend := platform.Detect(e.projectDir)
	if backend.ParseErr != nil {
		e.log.Warn("backend platform config unreadable, using default ports",
			"path", backend.ConfigPath, "error", backend.ParseErr)
		e.console.Warning(fmt.Sprintf("Could not parse %s; using default %s ports", platform.SupabaseConfigPath, backend.Kind))
	}
	return backend
}

// checkRuntime verifies the container runtime is installed and recent
// enough.
func (e *Engine) checkRuntime(ctx context.Context) error {
	rt := e.executor.Runtime()
	version, err := e.executor.Version(ctx)
	if err != nil {
		return util.NewStackError(util.KindPrerequisite,
			fmt.Sprintf("%s compose is not available", rt),
			"Install Docker with the compose plugin, or podman-compose, and make sure it is on PATH", err)
	}
	if err := compose.CheckVersion(rt, version); err != nil {
		return util.NewStackError(util.KindPrerequisite,
			fmt.Sprintf("%s compose %s is too old", rt, version),
			fmt.Sprintf("Upgrade to %s compose %s or newer", rt, compose.MinimumVersion(rt)), err)
	}
	e.log.Debug("container runtime ok", "runtime", rt, "version", version)
	return nil
}

// recoverPanic converts a recovered panic into an error.
//
// # Example
//
//	func (e *Engine) Up(ctx context.Context, env string) (out *Outcome, err error) {
//	    defer func() {
//	        recoverPanic(recover(), &err)
//	    }()
//	    ...
//	}
func recoverPanic(r any, errPtr *error) {
	if r == nil {
		return
	}
	panicErr := fmt.Errorf("%w: %v", ErrPanicRecovered, r)
	if *errPtr == nil {
		*errPtr = panicErr
		return
	}
	*errPtr = fmt.Errorf("%w (after: %v)", panicErr, *errPtr)
}
