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
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/parity/cmd/parity/internal/infra/process"
)

func TestMapState(t *testing.T) {
	tests := []struct {
		state  string
		status string
		want   ContainerState
	}{
		{"running", "Up 2 minutes (healthy)", StateRunningHealthy},
		{"running", "Up 2 minutes (unhealthy)", StateRunningUnhealthy},
		{"running", "Up 5 seconds (health: starting)", StateRunningUnknown},
		{"running", "Up 2 minutes", StateRunningUnknown},
		{"paused", "Up 2 minutes (Paused)", StateRunningUnknown},
		{"created", "Created", StateCreated},
		{"exited", "Exited (1) 3 seconds ago", StateExited},
		{"restarting", "Restarting (1) 2 seconds ago", StateExited},
		{"dead", "", StateExited},
		{"Running", "Up", StateRunningUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.state+"/"+tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, MapState(tt.state, tt.status))
		})
	}
}

func TestContainerState_IsRunning(t *testing.T) {
	assert.True(t, StateRunningHealthy.IsRunning())
	assert.True(t, StateRunningUnhealthy.IsRunning())
	assert.True(t, StateRunningUnknown.IsRunning())
	assert.False(t, StateExited.IsRunning())
	assert.False(t, StateCreated.IsRunning())
	assert.False(t, StateAbsent.IsRunning())
}

func TestParsePS_DockerJSONLines(t *testing.T) {
	out := `{"Names":"demo-staging-proxy-1","State":"running","Status":"Up 3 minutes","Labels":"com.docker.compose.project=demo-staging,com.docker.compose.service=proxy"}
{"Names":"demo-staging-db-1","State":"running","Status":"Up 3 minutes (healthy)","Labels":"com.docker.compose.service=db,com.docker.compose.project=demo-staging"}
{"Names":"demo-staging-auth-1","State":"exited","Status":"Exited (1) 1 minute ago","Labels":""}
`
	got, err := ParsePS(out, "demo-staging")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, Container{Name: "demo-staging-proxy-1", Service: "proxy", State: StateRunningUnknown, Status: "Up 3 minutes"}, got[0])
	assert.Equal(t, "db", got[1].Service)
	assert.Equal(t, StateRunningHealthy, got[1].State)
	assert.Equal(t, "auth", got[2].Service, "service falls back to the container name")
	assert.Equal(t, StateExited, got[2].State)
}

func TestParsePS_PodmanArray(t *testing.T) {
	out := `[
  {"Names":["demo-development_proxy_1"],"State":"running","Status":"Up 10 seconds","Labels":{"io.podman.compose.project":"demo-development","com.docker.compose.service":"proxy"}},
  {"Names":["demo-development_extra_1"],"State":"created","Status":"Created","Labels":null}
]`
	got, err := ParsePS(out, "demo-development")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "proxy", got[0].Service)
	assert.Equal(t, "extra", got[1].Service)
	assert.Equal(t, StateCreated, got[1].State)
}

func TestParsePS_Empty(t *testing.T) {
	for _, out := range []string{"", "  \n", "null", "[]"} {
		got, err := ParsePS(out, "demo-staging")
		assert.NoError(t, err)
		assert.Empty(t, got)
	}
}

func TestParsePS_Garbage(t *testing.T) {
	_, err := ParsePS("not json", "demo-staging")
	assert.Error(t, err)
}

func TestExtractServiceName(t *testing.T) {
	tests := []struct {
		container string
		project   string
		want      string
	}{
		{"demo-staging-proxy-1", "demo-staging", "proxy"},
		{"demo-staging_supabase-db_1", "demo-staging", "supabase-db"},
		{"supabase-studio", "demo-staging", "supabase-studio"},
		{"demo-staging-kong-12", "demo-staging", "kong"},
	}
	for _, tt := range tests {
		if got := ExtractServiceName(tt.container, tt.project); got != tt.want {
			t.Errorf("ExtractServiceName(%q) = %q, want %q", tt.container, got, tt.want)
		}
	}
}

func TestCLILister_Commands(t *testing.T) {
	var gotName string
	var gotArgs []string
	mock := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			gotName, gotArgs = name, args
			return []byte(""), nil
		},
	}

	_, err := NewCLILister(RuntimeDocker, mock).ListContainers(context.Background(), "demo-staging")
	require.NoError(t, err)
	assert.Equal(t, "docker", gotName)
	assert.Contains(t, gotArgs, "label=com.docker.compose.project=demo-staging")
	assert.Contains(t, gotArgs, "{{json .}}")

	_, err = NewCLILister(RuntimePodman, mock).ListContainers(context.Background(), "demo-staging")
	require.NoError(t, err)
	assert.Equal(t, "podman", gotName)
	assert.Contains(t, gotArgs, "label=io.podman.compose.project=demo-staging")
}

func TestCLILister_Error(t *testing.T) {
	mock := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, errors.New("Cannot connect to the Docker daemon")
		},
	}
	_, err := NewCLILister(RuntimeDocker, mock).ListContainers(context.Background(), "demo-staging")
	assert.Error(t, err)
}

type fakeEngine struct {
	opts   container.ListOptions
	result []types.Container
	err    error
}

func (f *fakeEngine) ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error) {
	f.opts = options
	return f.result, f.err
}

func (f *fakeEngine) Close() error { return nil }

func TestEngineLister_ListContainers(t *testing.T) {
	fake := &fakeEngine{result: []types.Container{
		{
			Names:  []string{"/demo-staging-proxy-1"},
			State:  "running",
			Status: "Up 1 minute (healthy)",
			Labels: map[string]string{LabelService: "proxy"},
		},
		{
			Names:  []string{"/demo-staging-rest-1"},
			State:  "exited",
			Status: "Exited (137)",
		},
	}}
	lister := &EngineLister{api: fake}

	got, err := lister.ListContainers(context.Background(), "demo-staging")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.True(t, fake.opts.All)
	assert.True(t, fake.opts.Filters.ExactMatch("label", "com.docker.compose.project=demo-staging"))

	assert.Equal(t, "demo-staging-proxy-1", got[0].Name)
	assert.Equal(t, StateRunningHealthy, got[0].State)
	assert.Equal(t, "rest", got[1].Service)
	assert.Equal(t, StateExited, got[1].State)
	assert.NoError(t, lister.Close())
}

func TestMockLister(t *testing.T) {
	m := &MockLister{Containers: map[string][]Container{
		"demo-staging": {{Name: "demo-staging-proxy-1", Service: "proxy", State: StateRunningUnknown}},
	}}
	got, _ := m.ListContainers(context.Background(), "demo-staging")
	assert.Len(t, got, 1)
	got, _ = m.ListContainers(context.Background(), "demo-production")
	assert.Empty(t, got)
	assert.Equal(t, []string{"demo-staging", "demo-production"}, m.Calls)
}
