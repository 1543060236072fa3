// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package inspect

import (
	"context"
	"fmt"
	"sort"

	"github.com/AleutianAI/parity/cmd/parity/internal/infra/compose"
)

// ContainerStatus is a snapshot of the expected containers of one compose
// project. It is computed fresh on every call and never cached.
type ContainerStatus struct {
	ComposeProject string

	// Expected lists service names in the order they were requested.
	Expected []string

	// States maps every expected service to its state. Missing containers
	// are StateAbsent.
	States map[string]compose.ContainerState

	// Containers maps services to the container chosen to represent them.
	Containers map[string]compose.Container
}

// statePriority ranks states when a service has several containers.
var statePriority = map[compose.ContainerState]int{
	compose.StateRunningHealthy:   5,
	compose.StateRunningUnknown:   4,
	compose.StateRunningUnhealthy: 3,
	compose.StateCreated:          2,
	compose.StateExited:           1,
	compose.StateAbsent:           0,
}

// ContainerStatus lists the project's containers and maps them onto the
// expected services. With an empty expected list, every listed service is
// expected.
//
// # Outputs
//
//   - ContainerStatus: Snapshot
//   - error: If the runtime could not be queried. Callers decide whether
//     that means "unknown" or "nothing running".
func (i *Inspector) ContainerStatus(ctx context.Context, composeProject string, expected []string) (ContainerStatus, error) {
	containers, err := i.lister.ListContainers(ctx, composeProject)
	if err != nil {
		return ContainerStatus{}, fmt.Errorf("inspect %s: %w", composeProject, err)
	}
	return BuildStatus(composeProject, expected, containers), nil
}

// BuildStatus folds a container list into a ContainerStatus.
func BuildStatus(composeProject string, expected []string, containers []compose.Container) ContainerStatus {
	best := make(map[string]compose.Container)
	for _, c := range containers {
		prev, ok := best[c.Service]
		if !ok || statePriority[c.State] > statePriority[prev.State] {
			best[c.Service] = c
		}
	}

	if len(expected) == 0 {
		for svc := range best {
			expected = append(expected, svc)
		}
		sort.Strings(expected)
	}

	status := ContainerStatus{
		ComposeProject: composeProject,
		Expected:       expected,
		States:         make(map[string]compose.ContainerState, len(expected)),
		Containers:     make(map[string]compose.Container, len(expected)),
	}
	for _, svc := range expected {
		c, ok := best[svc]
		if !ok {
			status.States[svc] = compose.StateAbsent
			continue
		}
		status.States[svc] = c.State
		status.Containers[svc] = c
	}
	return status
}

// Running returns expected services whose container is running.
func (s ContainerStatus) Running() []string {
	var out []string
	for _, svc := range s.Expected {
		if s.States[svc].IsRunning() {
			out = append(out, svc)
		}
	}
	return out
}

// NotRunning returns expected services whose container is not running.
func (s ContainerStatus) NotRunning() []string {
	var out []string
	for _, svc := range s.Expected {
		if !s.States[svc].IsRunning() {
			out = append(out, svc)
		}
	}
	return out
}

// AllRunning reports whether every expected service is running.
func (s ContainerStatus) AllRunning() bool {
	return len(s.Expected) > 0 && len(s.NotRunning()) == 0
}

// AnyRunning reports whether at least one expected service is running.
func (s ContainerStatus) AnyRunning() bool {
	return len(s.Running()) > 0
}

// UpToDate reports whether the stack needs no action: every expected
// service is running and none reports unhealthy. Containers without a
// healthcheck count as up to date.
func (s ContainerStatus) UpToDate() bool {
	if !s.AllRunning() {
		return false
	}
	for _, svc := range s.Expected {
		if s.States[svc] == compose.StateRunningUnhealthy {
			return false
		}
	}
	return true
}

// Counts tallies expected services by state.
func (s ContainerStatus) Counts() map[compose.ContainerState]int {
	counts := make(map[compose.ContainerState]int)
	for _, svc := range s.Expected {
		counts[s.States[svc]]++
	}
	return counts
}
