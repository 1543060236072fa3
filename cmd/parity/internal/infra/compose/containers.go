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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/parity/cmd/parity/internal/infra/process"
)

// Compose labels set on every container a compose project creates.
const (
	LabelDockerProject = "com.docker.compose.project"
	LabelPodmanProject = "io.podman.compose.project"
	LabelService       = "com.docker.compose.service"
)

// ContainerState is the observed state of one expected container.
type ContainerState string

const (
	StateRunningHealthy   ContainerState = "running-healthy"
	StateRunningUnhealthy ContainerState = "running-unhealthy"
	StateRunningUnknown   ContainerState = "running-unknown"
	StateExited           ContainerState = "exited"
	StateCreated          ContainerState = "created"
	StateAbsent           ContainerState = "absent"
)

// IsRunning reports whether the container process is up, whatever its health.
func (s ContainerState) IsRunning() bool {
	switch s {
	case StateRunningHealthy, StateRunningUnhealthy, StateRunningUnknown:
		return true
	}
	return false
}

// Container is one container belonging to a compose project.
type Container struct {
	Name    string
	Service string
	State   ContainerState

	// Status is the runtime's raw status text ("Up 2 minutes (healthy)").
	Status string
}

// ContainerLister lists containers of a compose project, running or not.
type ContainerLister interface {
	ListContainers(ctx context.Context, composeProject string) ([]Container, error)
}

// MapState folds a runtime state and status string into a ContainerState.
//
//	MapState("running", "Up 3 minutes (healthy)")  // running-healthy
//	MapState("running", "Up 3 minutes")            // running-unknown
//	MapState("restarting", "Restarting (1)")       // exited
func MapState(state, status string) ContainerState {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "running":
		if healthy := parseHealthStatus(status); healthy != nil {
			if *healthy {
				return StateRunningHealthy
			}
			return StateRunningUnhealthy
		}
		return StateRunningUnknown
	case "paused":
		return StateRunningUnknown
	case "created", "configured", "initialized":
		return StateCreated
	default:
		return StateExited
	}
}

// parseHealthStatus returns true for "(healthy)", false for "(unhealthy)",
// and nil when there is no healthcheck or it is still starting.
func parseHealthStatus(statusStr string) *bool {
	if strings.Contains(statusStr, "unhealthy") {
		healthy := false
		return &healthy
	}
	if strings.Contains(statusStr, "healthy") {
		healthy := true
		return &healthy
	}
	return nil
}

// =============================================================================
// CLI Lister
// =============================================================================

// CLILister lists containers with `docker ps` or `podman ps`.
type CLILister struct {
	runtime Runtime
	proc    process.Manager
}

// NewCLILister creates a lister for the given runtime.
func NewCLILister(r Runtime, proc process.Manager) *CLILister {
	return &CLILister{runtime: r, proc: proc}
}

// ListContainers runs `<runtime> ps -a` filtered by the compose project label.
//
// # Description
//
// docker prints one JSON object per line with --format '{{json .}}' and
// packs labels into a "k=v,k=v" string. podman prints a JSON array with
// labels as an object. Both shapes are accepted.
func (l *CLILister) ListContainers(ctx context.Context, composeProject string) ([]Container, error) {
	var name string
	var args []string
	switch l.runtime {
	case RuntimePodman:
		name = "podman"
		args = []string{"ps", "-a", "--filter", "label=" + LabelPodmanProject + "=" + composeProject, "--format", "json"}
	default:
		name = "docker"
		args = []string{"ps", "-a", "--filter", "label=" + LabelDockerProject + "=" + composeProject, "--format", "{{json .}}"}
	}

	out, err := l.proc.Run(ctx, name, args...)
	if err != nil {
		return nil, fmt.Errorf("list containers for %s: %w", composeProject, err)
	}
	return ParsePS(string(out), composeProject)
}

// psEntry accepts both docker and podman ps JSON shapes.
type psEntry struct {
	Names  json.RawMessage `json:"Names"`
	State  string          `json:"State"`
	Status string          `json:"Status"`
	Labels json.RawMessage `json:"Labels"`
}

// ParsePS parses `ps` JSON output (array or JSON lines).
func ParsePS(output, composeProject string) ([]Container, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var entries []psEntry
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
			return nil, fmt.Errorf("failed to parse container JSON: %w", err)
		}
	} else {
		scanner := bufio.NewScanner(strings.NewReader(trimmed))
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var entry psEntry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				return nil, fmt.Errorf("failed to parse container JSON line: %w", err)
			}
			entries = append(entries, entry)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read container list: %w", err)
		}
	}

	containers := make([]Container, 0, len(entries))
	for _, e := range entries {
		name := firstName(e.Names)
		service := decodeLabels(e.Labels)[LabelService]
		if service == "" {
			service = ExtractServiceName(name, composeProject)
		}
		containers = append(containers, Container{
			Name:    name,
			Service: service,
			State:   MapState(e.State, e.Status),
			Status:  e.Status,
		})
	}
	return containers, nil
}

func firstName(raw json.RawMessage) string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) > 0 {
			return strings.TrimPrefix(list[0], "/")
		}
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimPrefix(strings.SplitN(s, ",", 2)[0], "/")
	}
	return ""
}

func decodeLabels(raw json.RawMessage) map[string]string {
	labels := make(map[string]string)
	if len(raw) == 0 {
		return labels
	}
	if err := json.Unmarshal(raw, &labels); err == nil {
		return labels
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return labels
	}
	for _, pair := range strings.Split(s, ",") {
		if k, v, ok := strings.Cut(pair, "="); ok {
			labels[k] = v
		}
	}
	return labels
}

// ExtractServiceName derives the compose service from a container name of
// the form "<project>-<service>-<n>" or "<project>_<service>_<n>".
//
//	ExtractServiceName("demo-staging-proxy-1", "demo-staging") // "proxy"
func ExtractServiceName(containerName, composeProject string) string {
	name := containerName
	for _, sep := range []string{"-", "_"} {
		if strings.HasPrefix(name, composeProject+sep) {
			name = strings.TrimPrefix(name, composeProject+sep)
			break
		}
	}

	for _, sep := range []string{"-", "_"} {
		if i := strings.LastIndex(name, sep); i > 0 {
			if _, err := strconv.Atoi(name[i+1:]); err == nil {
				return name[:i]
			}
		}
	}
	return name
}

// =============================================================================
// Mock Lister
// =============================================================================

// MockLister returns canned containers per compose project.
type MockLister struct {
	Containers map[string][]Container
	Err        error

	// Calls records the compose projects queried.
	Calls []string
}

// ListContainers returns the canned result.
func (m *MockLister) ListContainers(ctx context.Context, composeProject string) ([]Container, error) {
	m.Calls = append(m.Calls, composeProject)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Containers[composeProject], nil
}

var (
	_ ContainerLister = (*CLILister)(nil)
	_ ContainerLister = (*MockLister)(nil)
)
