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
	"fmt"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// engineAPI is the slice of the Docker client EngineLister uses.
type engineAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	Close() error
}

// EngineLister lists containers through the Docker Engine API.
//
// It sees the same containers as CLILister for docker but skips the
// subprocess and the JSON format quirks. Select it with PARITY_ENGINE_API=1.
type EngineLister struct {
	api engineAPI
}

// NewEngineLister connects using DOCKER_HOST and friends from the
// environment, negotiating the API version with the daemon.
func NewEngineLister() (*EngineLister, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &EngineLister{api: cli}, nil
}

// ListContainers lists all containers labelled with the compose project.
func (l *EngineLister) ListContainers(ctx context.Context, composeProject string) ([]Container, error) {
	list, err := l.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelDockerProject+"="+composeProject)),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers for %s: %w", composeProject, err)
	}

	out := make([]Container, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		service := c.Labels[LabelService]
		if service == "" {
			service = ExtractServiceName(name, composeProject)
		}
		out = append(out, Container{
			Name:    name,
			Service: service,
			State:   MapState(c.State, c.Status),
			Status:  c.Status,
		})
	}
	return out, nil
}

// Close releases the client connection.
func (l *EngineLister) Close() error {
	return l.api.Close()
}

var _ ContainerLister = (*EngineLister)(nil)
