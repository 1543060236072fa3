// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/AleutianAI/parity/cmd/parity/config"
	"github.com/AleutianAI/parity/cmd/parity/internal/certs"
	"github.com/AleutianAI/parity/cmd/parity/internal/infra/compose"
	"github.com/AleutianAI/parity/cmd/parity/internal/infra/process"
	"github.com/AleutianAI/parity/cmd/parity/internal/inspect"
	"github.com/AleutianAI/parity/cmd/parity/internal/migrate"
	"github.com/AleutianAI/parity/cmd/parity/internal/orchestrator"
	"github.com/AleutianAI/parity/cmd/parity/internal/secrets"
	"github.com/AleutianAI/parity/cmd/parity/internal/telemetry"
	"github.com/AleutianAI/parity/cmd/parity/internal/util"
	"github.com/AleutianAI/parity/pkg/logging"
	"github.com/AleutianAI/parity/pkg/ux"
)

// =============================================================================
// INTERFACES
// =============================================================================

// SessionFactory creates a Session for one command invocation.
//
// Production code uses DefaultSessionFactory; tests swap in a factory that
// wires the engine to mocks.
type SessionFactory interface {
	// CreateSession builds the engine and its collaborators.
	//
	// # Inputs
	//
	//   - ctx: Used to initialize tracing
	//   - opts: Values from the global flags
	//
	// # Outputs
	//
	//   - *Session: Ready to use. The caller must Close it.
	//   - error: Invalid settings or a collaborator that cannot be built
	CreateSession(ctx context.Context, opts SessionOptions) (*Session, error)
}

// =============================================================================
// STRUCTS
// =============================================================================

// SessionOptions carries global flag values. Empty strings fall back to
// PARITY_* environment variables.
type SessionOptions struct {
	ProjectDir string
	AssumeYes  bool
	LogLevel   string
	Runtime    string

	// Out and ErrOut default to stdout and stderr.
	Out    io.Writer
	ErrOut io.Writer
}

// Session is everything a command needs.
type Session struct {
	Engine     *orchestrator.Engine
	Console    *ux.Console
	Logger     *logging.Logger
	Runtime    config.Runtime
	ProjectDir string

	metrics *telemetry.Metrics
	closers []func(context.Context) error
}

// Close flushes metrics and spans and closes log files. Errors are logged,
// never returned: the command's own outcome matters more.
func (s *Session) Close(ctx context.Context) {
	if s.metrics != nil {
		if err := s.metrics.WriteFile(s.Runtime.MetricsFile); err != nil {
			s.Logger.Warn("cannot write metrics file", "path", s.Runtime.MetricsFile, "error", err)
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			s.Logger.Warn("shutdown step failed", "error", err)
		}
	}
	s.Logger.Close()
}

// DefaultSessionFactory wires production implementations.
type DefaultSessionFactory struct{}

// NewDefaultSessionFactory creates a DefaultSessionFactory.
func NewDefaultSessionFactory() *DefaultSessionFactory {
	return &DefaultSessionFactory{}
}

// sessionFactory is the factory commands use. Tests replace it.
var sessionFactory SessionFactory = NewDefaultSessionFactory()

// =============================================================================
// METHODS
// =============================================================================

// CreateSession builds a production Session.
//
// # Description
//
// Order matters only where one collaborator feeds another:
//
//  1. Runtime settings (env, then flags), logger, console
//  2. State store, process manager, container runtime selection
//  3. Executor, lister, inspector
//  4. Secrets, certificates, migrations, lock, telemetry
//  5. The engine
func (f *DefaultSessionFactory) CreateSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	rt, err := f.createRuntime(opts)
	if err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(opts.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}

	store, err := config.NewFileStateStore(rt.Home)
	if err != nil {
		return nil, err
	}

	logger, err := f.createLogger(rt, store.Dir(), opts.ErrOut)
	if err != nil {
		return nil, err
	}
	s := &Session{
		Console:    ux.NewConsole(opts.Out, opts.ErrOut, ux.GetPersonality().Level),
		Logger:     logger,
		Runtime:    rt,
		ProjectDir: dir,
	}

	proc := f.createProcessManager()
	runtime := f.selectRuntime(rt, store, proc, logger)

	executor, err := f.createComposeExecutor(runtime, proc, logger)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	lister := f.createContainerLister(s, runtime, proc)

	shutdown, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{File: rt.TraceFile, ServiceVersion: version})
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	} else {
		s.closers = append(s.closers, shutdown)
	}
	s.metrics = telemetry.NewMetrics()

	engine, err := orchestrator.NewEngine(orchestrator.Deps{
		ProjectDir: dir,
		Runtime:    rt,
		Executor:   executor,
		Inspector: inspect.New(inspect.Config{
			Proc:   proc,
			Lister: lister,
			Store:  store,
			Logger: logger,
		}),
		Secrets:  f.createSecretsManager(dir, logger),
		Certs:    certs.NewMkcert(proc, logger),
		Migrator: migrate.NewRunner(migrate.Config{Proc: proc, Logger: logger}),
		Store:    store,
		Prompter: f.createUserPrompter(opts.AssumeYes),
		Proc:     proc,
		Locker:   process.NewLock(process.LockConfig{Dir: filepath.Join(dir, config.WorkspaceDir), Name: "parity"}),
		Console:  s.Console,
		Logger:   logger,
		Metrics:  s.metrics,
	})
	if err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	s.Engine = engine
	return s, nil
}

// createRuntime reads PARITY_* variables and applies flag overrides.
func (f *DefaultSessionFactory) createRuntime(opts SessionOptions) (config.Runtime, error) {
	rt, err := config.LoadRuntime()
	if err != nil {
		return config.Runtime{}, util.NewStackError(util.KindPrerequisite, "invalid PARITY_* settings",
			"Fix or unset the environment variables named above", err)
	}
	if opts.Runtime != "" {
		rt.Runtime = opts.Runtime
	}
	if opts.LogLevel != "" {
		rt.LogLevel = opts.LogLevel
	}
	if err := rt.Validate(); err != nil {
		return config.Runtime{}, util.NewStackError(util.KindPrerequisite, "invalid settings",
			"Use --runtime docker|podman", err)
	}
	return rt, nil
}

func (f *DefaultSessionFactory) createLogger(rt config.Runtime, stateDir string, errOut io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(rt.LogLevel)
	if err != nil {
		return nil, util.NewStackError(util.KindPrerequisite, "invalid log level",
			"Use --log-level debug|info|warn|error", err)
	}
	// The console narrates progress. Structured logs reach stderr only at
	// debug level and always reach the log file.
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  filepath.Join(stateDir, "logs"),
		Service: "parity",
		Quiet:   level != logging.LevelDebug,
		Writer:  errOut,
	}), nil
}

// createProcessManager creates the subprocess boundary.
func (f *DefaultSessionFactory) createProcessManager() process.Manager {
	return process.NewDefaultManager()
}

// createUserPrompter picks interactive or fixed answers.
func (f *DefaultSessionFactory) createUserPrompter(assumeYes bool) util.UserPrompter {
	return util.NewPrompter(assumeYes)
}

// selectRuntime resolves the container runtime: flag or PARITY_RUNTIME,
// then the operator's saved preference, then whichever CLI is on PATH,
// docker first.
func (f *DefaultSessionFactory) selectRuntime(rt config.Runtime, store config.StateStore, proc process.Manager, log *logging.Logger) compose.Runtime {
	if r, err := compose.ParseRuntime(rt.Runtime); err == nil {
		return r
	}
	if settings, err := store.LoadSettings(); err == nil {
		if r, err := compose.ParseRuntime(settings.Runtime); err == nil {
			return r
		}
	}
	for _, r := range []compose.Runtime{compose.RuntimeDocker, compose.RuntimePodman} {
		bin, _ := r.Binary()
		if _, err := proc.LookPath(bin); err == nil {
			log.Debug("detected container runtime", "runtime", r)
			return r
		}
	}
	return compose.RuntimeDocker
}

func (f *DefaultSessionFactory) createComposeExecutor(r compose.Runtime, proc process.Manager, log *logging.Logger) (compose.Executor, error) {
	exec, err := compose.NewExecutor(compose.Config{Runtime: r, Logger: log}, proc)
	if err != nil {
		return nil, fmt.Errorf("failed to create compose executor: %w", err)
	}
	return exec, nil
}

// createContainerLister uses the Docker Engine API when PARITY_ENGINE_API
// is set and the runtime is docker, and the compose CLI otherwise.
func (f *DefaultSessionFactory) createContainerLister(s *Session, r compose.Runtime, proc process.Manager) compose.ContainerLister {
	if s.Runtime.EngineAPI && r == compose.RuntimeDocker {
		lister, err := compose.NewEngineLister()
		if err == nil {
			s.closers = append(s.closers, func(context.Context) error { return lister.Close() })
			return lister
		}
		s.Logger.Warn("docker engine API unavailable, falling back to the compose CLI", "error", err)
	}
	return compose.NewCLILister(r, proc)
}

func (f *DefaultSessionFactory) createSecretsManager(dir string, log *logging.Logger) *secrets.Manager {
	return secrets.NewManager(secrets.ManagerConfig{
		EnvFile: filepath.Join(dir, ".env"),
		DataDir: config.DataDir(dir),
		Logger:  log,
	})
}

// newSession creates a Session from the global flags.
func newSession(ctx context.Context) (*Session, error) {
	s, err := sessionFactory.CreateSession(ctx, SessionOptions{
		ProjectDir: projectDir,
		AssumeYes:  assumeYes,
		LogLevel:   logLevel,
		Runtime:    runtimeName,
		Out:        rootCmd.OutOrStdout(),
		ErrOut:     rootCmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	if s.Engine == nil {
		return nil, errors.New("session has no engine")
	}
	return s, nil
}
