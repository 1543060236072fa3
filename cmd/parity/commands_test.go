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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/parity/cmd/parity/config"
	"github.com/AleutianAI/parity/cmd/parity/internal/certs"
	"github.com/AleutianAI/parity/cmd/parity/internal/infra/compose"
	"github.com/AleutianAI/parity/cmd/parity/internal/infra/process"
	"github.com/AleutianAI/parity/cmd/parity/internal/inspect"
	"github.com/AleutianAI/parity/cmd/parity/internal/migrate"
	"github.com/AleutianAI/parity/cmd/parity/internal/orchestrator"
	"github.com/AleutianAI/parity/cmd/parity/internal/plan"
	"github.com/AleutianAI/parity/cmd/parity/internal/secrets"
	"github.com/AleutianAI/parity/cmd/parity/internal/util"
	"github.com/AleutianAI/parity/pkg/logging"
	"github.com/AleutianAI/parity/pkg/ux"
)

// =============================================================================
// Test Factory
// =============================================================================

type stubCerts struct{}

func (stubCerts) Ensure(ctx context.Context, projectDir, domain string) certs.Status {
	return certs.Status{Available: true}
}

// testFactory wires a real engine to an in-memory runtime.
type testFactory struct {
	exec     *compose.MockExecutor
	lister   *compose.MockLister
	store    *config.MemoryStateStore
	prompter util.UserPrompter
	opts     SessionOptions
}

func (f *testFactory) CreateSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	f.opts = opts
	console := ux.NewConsole(opts.Out, opts.ErrOut, ux.PersonalityMachine)
	proc := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, assert.AnError
		},
	}
	prompter := f.prompter
	if prompter == nil {
		prompter = util.StaticPrompter{Answer: opts.AssumeYes}
	}
	log := logging.Nop()

	engine, err := orchestrator.NewEngine(orchestrator.Deps{
		ProjectDir: opts.ProjectDir,
		Executor:   f.exec,
		Inspector:  inspect.New(inspect.Config{Proc: proc, Lister: f.lister, Store: f.store, Logger: log}),
		Secrets: secrets.NewManager(secrets.ManagerConfig{
			EnvFile: filepath.Join(opts.ProjectDir, ".env"),
			DataDir: config.DataDir(opts.ProjectDir),
		}),
		Certs:    stubCerts{},
		Migrator: migrate.NewRunner(migrate.Config{Proc: proc}),
		Store:    f.store,
		Prompter: prompter,
		Proc:     proc,
		Locker:   process.NewLock(process.LockConfig{Dir: filepath.Join(opts.ProjectDir, config.WorkspaceDir), Name: "parity"}),
		Console:  console,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	return &Session{Engine: engine, Console: console, Logger: log, ProjectDir: opts.ProjectDir}, nil
}

const testDescriptor = `name: demo
services:
  - name: app
    type: nextjs
    port: 3000
`

type cli struct {
	dir     string
	factory *testFactory
	out     *bytes.Buffer
	errOut  *bytes.Buffer
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DescriptorFile), []byte(testDescriptor), 0o644))
	overlays := map[string]string{
		plan.BaseOverlay:        "services:\n  proxy:\n    image: traefik:v3.1\n",
		plan.DevelopmentOverlay: "services:\n  proxy:\n    ports: [\"443:443\"]\n",
		plan.DeploymentOverlay:  "services:\n  app:\n    build: .\n",
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, plan.OverlayDir), 0o755))
	for name, content := range overlays {
		require.NoError(t, os.WriteFile(filepath.Join(dir, plan.OverlayDir, name), []byte(content), 0o644))
	}

	lister := &compose.MockLister{Containers: map[string][]compose.Container{}}
	exec := &compose.MockExecutor{RuntimeName: compose.RuntimeDocker}
	exec.UpFunc = func(ctx context.Context, p compose.Project, opts compose.UpOptions) (*compose.Result, error) {
		var containers []compose.Container
		for _, file := range p.Files {
			data, err := os.ReadFile(file)
			require.NoError(t, err)
			names, err := plan.OverlayServices(data)
			require.NoError(t, err)
			for _, name := range names {
				containers = append(containers, compose.Container{
					Name: p.Name + "-" + name + "-1", Service: name, State: compose.StateRunningHealthy,
				})
			}
		}
		lister.Containers[p.Name] = containers
		return &compose.Result{Success: true}, nil
	}

	c := &cli{
		dir:     dir,
		factory: &testFactory{exec: exec, lister: lister, store: config.NewMemoryStateStore()},
		out:     &bytes.Buffer{},
		errOut:  &bytes.Buffer{},
	}

	saved := sessionFactory
	sessionFactory = c.factory
	t.Cleanup(func() {
		sessionFactory = saved
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	return c
}

// run executes parity with args against the fixture project.
func (c *cli) run(args ...string) int {
	resetFlags()
	c.out.Reset()
	c.errOut.Reset()
	rootCmd.SetOut(c.out)
	rootCmd.SetErr(c.errOut)
	return run(append([]string{"--project-dir", c.dir, "--personality", "machine"}, args...))
}

func resetFlags() {
	projectDir, assumeYes, logLevel, runtimeName, personalityLevel = ".", false, "", "", ""
	downVolumes, routesWatch = false, false
	targetDomain, targetAPIDomain, targetStudioDomain, targetSSL = "", "", "", ""
	targetSSHHost, targetSSHUser, targetSSHPort = "", "", 0
}

// =============================================================================
// Tests
// =============================================================================

func TestRun_UpThenStatus(t *testing.T) {
	c := newCLI(t)

	assert.Equal(t, util.ExitFailure, c.run("status", "development"), "nothing is running yet")

	require.Equal(t, util.ExitOK, c.run("up"), c.errOut.String())
	assert.Len(t, c.factory.exec.UpCalls, 1)
	assert.FileExists(t, filepath.Join(c.dir, ".parity", "proxy", "dynamic.yml"))

	assert.Equal(t, util.ExitOK, c.run("status"), c.errOut.String())
	assert.Contains(t, c.out.String(), "proxy")

	require.Equal(t, util.ExitOK, c.run("up"))
	assert.Len(t, c.factory.exec.UpCalls, 1, "an up-to-date environment is left alone")
}

func TestRun_MissingDescriptorIsPrerequisite(t *testing.T) {
	c := newCLI(t)
	require.NoError(t, os.Remove(filepath.Join(c.dir, config.DescriptorFile)))

	assert.Equal(t, util.ExitPrerequisite, c.run("up"))
	assert.Contains(t, c.errOut.String(), "ERROR:")
	assert.Contains(t, c.errOut.String(), "REMEDIATION:")
}

func TestRun_UnknownTargetWithoutTerminal(t *testing.T) {
	c := newCLI(t)

	assert.Equal(t, util.ExitOK, c.run("up", "production"), "declining is not an error")
	assert.Empty(t, c.factory.exec.UpCalls)

	assert.Equal(t, util.ExitPrerequisite, c.run("--yes", "up", "production"), "--yes cannot invent a domain")
	assert.Contains(t, c.errOut.String(), "parity target add production")
	assert.Empty(t, c.factory.exec.UpCalls)
}

func TestRun_TargetLifecycle(t *testing.T) {
	c := newCLI(t)

	require.Equal(t, util.ExitOK, c.run("target", "add", "production", "--domain", "demo.example.com", "--ssh-host", "203.0.113.7"), c.errOut.String())
	d, err := config.LoadDescriptor(c.dir)
	require.NoError(t, err)
	target, ok := d.Target("production")
	require.True(t, ok)
	assert.Equal(t, "demo.example.com", target.AppDomain)
	assert.Equal(t, "203.0.113.7", target.SSH.Host)

	assert.Equal(t, util.ExitPrerequisite, c.run("target", "add", "production", "--domain", "other.example.com"))

	require.Equal(t, util.ExitOK, c.run("target", "list"))
	assert.Contains(t, c.out.String(), "production")
	assert.Contains(t, c.out.String(), "api.demo.example.com")

	require.Equal(t, util.ExitOK, c.run("target", "rm", "production"))
	assert.Equal(t, util.ExitPrerequisite, c.run("target", "remove", "production"))
}

func TestRun_TargetAddLetsEncryptNeedsEmail(t *testing.T) {
	c := newCLI(t)

	assert.Equal(t, util.ExitPrerequisite, c.run("target", "add", "production", "--domain", "demo.example.com", "--ssl", "letsencrypt"))
	assert.Contains(t, c.errOut.String(), "operatorEmail")

	require.NoError(t, c.factory.store.SaveSettings(config.Settings{OperatorEmail: "ops@example.com"}))
	assert.Equal(t, util.ExitOK, c.run("target", "add", "production", "--domain", "demo.example.com", "--ssl", "letsencrypt"))
}

func TestRun_DownVolumesDeclined(t *testing.T) {
	c := newCLI(t)

	assert.Equal(t, util.ExitOK, c.run("down", "--volumes"))
	assert.Empty(t, c.factory.exec.DownCalls)

	assert.Equal(t, util.ExitOK, c.run("down"))
	require.Len(t, c.factory.exec.DownCalls, 1)
	assert.False(t, c.factory.exec.DownCalls[0].Opts.RemoveVolumes)
}

func TestRun_RoutesWatchRequiresDevelopment(t *testing.T) {
	c := newCLI(t)

	assert.Equal(t, util.ExitPrerequisite, c.run("routes", "staging", "--watch"))
	assert.Equal(t, util.ExitOK, c.run("routes"))
	assert.Contains(t, c.out.String(), "dynamic.yml")
	assert.Empty(t, c.factory.exec.UpCalls)
}

func TestRun_GlobalFlagsReachFactory(t *testing.T) {
	c := newCLI(t)

	c.run("--yes", "--runtime", "podman", "--log-level", "debug", "target", "list")
	assert.True(t, c.factory.opts.AssumeYes)
	assert.Equal(t, "podman", c.factory.opts.Runtime)
	assert.Equal(t, "debug", c.factory.opts.LogLevel)
	assert.Equal(t, c.dir, c.factory.opts.ProjectDir)
}

func TestDefaultSessionFactory_InvalidRuntime(t *testing.T) {
	_, err := NewDefaultSessionFactory().createRuntime(SessionOptions{Runtime: "lxc"})
	assert.True(t, util.IsKind(err, util.KindPrerequisite))
}
