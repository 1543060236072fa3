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
	"reflect"
	"testing"

	"github.com/AleutianAI/parity/cmd/parity/internal/infra/process"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		runtime Runtime
		want    string
		wantErr bool
	}{
		{"docker short", "2.24.5\n", RuntimeDocker, "2.24.5", false},
		{"docker v prefix", "v2.27.0-desktop.1\n", RuntimeDocker, "2.27.0", false},
		{
			"podman-compose multi-line",
			"podman-compose version: 1.0.6\n['podman', '--version', '']\nusing podman version: 4.9.3\npodman-compose version 1.0.6\npodman --version \npodman version 4.9.3\n",
			RuntimePodman, "1.0.6", false,
		},
		{"no version", "command not found", RuntimeDocker, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVersion(tt.output, tt.runtime)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseVersion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		runtime Runtime
		version string
		tooOld  bool
		invalid bool
	}{
		{RuntimeDocker, "2.24.5", false, false},
		{RuntimeDocker, "2.0.0", false, false},
		{RuntimeDocker, "1.29.2", true, false},
		{RuntimePodman, "1.0.6", false, false},
		{RuntimePodman, "0.1.11", true, false},
		{RuntimeDocker, "latest", false, true},
	}
	for _, tt := range tests {
		err := CheckVersion(tt.runtime, tt.version)
		switch {
		case tt.tooOld:
			if !errors.Is(err, ErrRuntimeTooOld) {
				t.Errorf("CheckVersion(%s %s) = %v, want ErrRuntimeTooOld", tt.runtime, tt.version, err)
			}
		case tt.invalid:
			if err == nil || errors.Is(err, ErrRuntimeTooOld) {
				t.Errorf("CheckVersion(%s %s) = %v, want parse error", tt.runtime, tt.version, err)
			}
		default:
			if err != nil {
				t.Errorf("CheckVersion(%s %s) = %v, want nil", tt.runtime, tt.version, err)
			}
		}
	}
}

func TestExecutor_Version(t *testing.T) {
	var gotArgs []string
	mock := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			gotArgs = append([]string{name}, args...)
			return []byte("2.24.5\n"), nil
		},
	}
	exec, err := NewExecutor(Config{Runtime: RuntimeDocker}, mock)
	if err != nil {
		t.Fatal(err)
	}

	v, err := exec.Version(context.Background())
	if err != nil || v != "2.24.5" {
		t.Fatalf("Version() = %q, %v", v, err)
	}
	if want := []string{"docker", "compose", "version", "--short"}; !reflect.DeepEqual(gotArgs, want) {
		t.Errorf("argv = %v, want %v", gotArgs, want)
	}
}
