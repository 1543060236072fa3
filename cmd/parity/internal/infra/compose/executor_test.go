// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/AleutianAI/parity/cmd/parity/internal/infra/process"
	"github.com/AleutianAI/parity/cmd/parity/internal/util"
)

func newTestExecutor(t *testing.T, r Runtime, exitCode int, stderr string) (*DefaultExecutor, *process.MockManager) {
	t.Helper()
	mock := &process.MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
			return "", stderr, exitCode, nil
		},
	}
	exec, err := NewExecutor(Config{Runtime: r}, mock)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	return exec, mock
}

var testProject = Project{
	Name:  "demo-staging",
	Dir:   "/src/demo",
	Files: []string{".parity/compose/base.yml", ".parity/compose/deployment.yml", ".parity/compose/supabase.yml"},
}

func TestNewExecutor_Validation(t *testing.T) {
	if _, err := NewExecutor(Config{Runtime: RuntimeDocker}, nil); err == nil {
		t.Error("NewExecutor(nil proc) should fail")
	}
	if _, err := NewExecutor(Config{Runtime: "lxc"}, &process.MockManager{}); !errors.Is(err, ErrUnknownRuntime) {
		t.Errorf("NewExecutor(lxc) error = %v, want ErrUnknownRuntime", err)
	}
}

func TestExecutor_Up_DockerArgs(t *testing.T) {
	exec, mock := newTestExecutor(t, RuntimeDocker, 0, "")

	res, err := exec.Up(context.Background(), testProject, UpOptions{
		Env:           map[string]string{"PARITY_ENV": "staging", "JWT_SECRET": "s3cr3t"},
		RemoveOrphans: true,
	})
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if !res.Success {
		t.Error("Up() result should be successful")
	}

	calls := mock.GetCalls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	c := calls[0]
	if c.Name != "docker" || c.Dir != "/src/demo" {
		t.Errorf("call = %s in %s", c.Name, c.Dir)
	}
	wantArgs := []string{
		"compose", "-p", "demo-staging",
		"-f", ".parity/compose/base.yml",
		"-f", ".parity/compose/deployment.yml",
		"-f", ".parity/compose/supabase.yml",
		"up", "-d", "--remove-orphans",
	}
	if !reflect.DeepEqual(c.Args, wantArgs) {
		t.Errorf("args = %v\nwant %v", c.Args, wantArgs)
	}
	wantEnv := []string{"JWT_SECRET=s3cr3t", "PARITY_ENV=staging"}
	if !reflect.DeepEqual(c.Env, wantEnv) {
		t.Errorf("env = %v, want %v", c.Env, wantEnv)
	}
}

func TestExecutor_Up_PodmanArgs(t *testing.T) {
	exec, mock := newTestExecutor(t, RuntimePodman, 0, "")

	if _, err := exec.Up(context.Background(), testProject, UpOptions{}); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	c := mock.GetCalls()[0]
	if c.Name != "podman-compose" {
		t.Errorf("binary = %s, want podman-compose", c.Name)
	}
	if c.Args[0] != "-p" {
		t.Errorf("podman-compose args should start with -p, got %v", c.Args)
	}
}

func TestExecutor_Up_NonZeroExit(t *testing.T) {
	exec, _ := newTestExecutor(t, RuntimeDocker, 1, "dependency failed to start: container demo-staging-db-1 is unhealthy\n")

	res, err := exec.Up(context.Background(), testProject, UpOptions{})
	if err == nil {
		t.Fatal("Up() expected error on exit 1")
	}
	if res == nil || res.ExitCode != 1 || res.Success {
		t.Errorf("result = %+v, want exit 1 and not successful", res)
	}
	var cmdErr *util.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error type = %T, want *util.CommandError", err)
	}
	if !strings.Contains(cmdErr.Stderr, "unhealthy") {
		t.Errorf("stderr = %q", cmdErr.Stderr)
	}
}

func TestExecutor_Up_ProcessError(t *testing.T) {
	mock := &process.MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
			return "", "", -1, fmt.Errorf("exec: docker: not found")
		},
	}
	exec, _ := NewExecutor(Config{Runtime: RuntimeDocker}, mock)

	if _, err := exec.Up(context.Background(), testProject, UpOptions{}); err == nil {
		t.Error("Up() should surface process errors")
	}
}

func TestExecutor_Up_RejectsBadInput(t *testing.T) {
	exec, mock := newTestExecutor(t, RuntimeDocker, 0, "")

	_, err := exec.Up(context.Background(), testProject, UpOptions{Env: map[string]string{"BAD-KEY": "x"}})
	if !errors.Is(err, ErrInvalidEnvVar) {
		t.Errorf("Up(bad env) error = %v, want ErrInvalidEnvVar", err)
	}

	_, err = exec.Up(context.Background(), Project{Name: "demo-staging"}, UpOptions{})
	if !errors.Is(err, ErrNoOverlays) {
		t.Errorf("Up(no files) error = %v, want ErrNoOverlays", err)
	}

	if len(mock.GetCalls()) != 0 {
		t.Error("runtime must not be invoked for invalid input")
	}
}

func TestExecutor_Down(t *testing.T) {
	exec, mock := newTestExecutor(t, RuntimeDocker, 0, "")

	if _, err := exec.Down(context.Background(), Project{Name: "other-staging"}, DownOptions{RemoveVolumes: true}); err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	want := []string{"compose", "-p", "other-staging", "down", "--volumes"}
	if got := mock.GetCalls()[0].Args; !reflect.DeepEqual(got, want) {
		t.Errorf("args = %v, want %v", got, want)
	}
}

func TestRedactEnv(t *testing.T) {
	got := redactEnv(map[string]string{
		"PARITY_ENV":        "staging",
		"POSTGRES_PASSWORD": "hunter2",
		"ANON_KEY":          "eyJ...",
	})
	if strings.Contains(got, "hunter2") || strings.Contains(got, "eyJ") {
		t.Errorf("redactEnv leaked a secret: %s", got)
	}
	if !strings.Contains(got, "PARITY_ENV=staging") {
		t.Errorf("redactEnv dropped a plain value: %s", got)
	}
}

func TestParseRuntime(t *testing.T) {
	tests := []struct {
		in      string
		want    Runtime
		wantErr bool
	}{
		{"docker", RuntimeDocker, false},
		{"Podman", RuntimePodman, false},
		{"", "", true},
		{"nerdctl", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRuntime(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseRuntime(%q) = %q, %v", tt.in, got, err)
		}
	}
}
