// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/parity/cmd/parity/internal/infra/compose"
	"github.com/AleutianAI/parity/cmd/parity/internal/inspect"
	"github.com/AleutianAI/parity/cmd/parity/internal/plan"
	"github.com/AleutianAI/parity/cmd/parity/internal/util"
	"github.com/AleutianAI/parity/pkg/ux"
)

// StatusReport is the health report of one environment.
type StatusReport struct {
	Environment string
	Mode        plan.Mode
	Status      inspect.ContainerStatus

	// Current is true when the running marker names this environment.
	Current bool
}

// Healthy reports whether every expected service is running.
func (r *StatusReport) Healthy() bool {
	return r.Status.AllRunning()
}

// Status inspects env's containers. An empty env means the environment
// recorded as running.
func (e *Engine) Status(ctx context.Context, env string) (*StatusReport, error) {
	ctx, span := startPhase(ctx, "status")
	defer span.End()

	marker, err := e.store.LoadMarker()
	if err != nil {
		e.log.Warn("cannot read running marker", "error", err)
		marker = nil
	}
	if env == "" {
		if marker == nil {
			return nil, util.NewStackError(util.KindPrerequisite, "no environment is recorded as running",
				"Name one: parity status <env>", nil)
		}
		env = marker.Environment
	}

	d, err := e.loadDescriptor()
	if err != nil {
		return nil, err
	}
	p, err := plan.Build(e.projectDir, env, d, e.detectBackend())
	if errors.Is(err, plan.ErrNoTarget) {
		return nil, util.NewStackError(util.KindPrerequisite,
			fmt.Sprintf("no deployment target named %q", env), targetAddHint(env), err)
	}
	if err != nil {
		return nil, err
	}

	status, err := e.inspector.ContainerStatus(ctx, p.ComposeProject, p.ExpectedServices)
	if err != nil {
		return nil, util.NewStackError(util.KindPrerequisite, "cannot query the container runtime",
			"Make sure the container runtime is running", err)
	}
	return &StatusReport{
		Environment: env,
		Mode:        p.Mode,
		Status:      status,
		Current:     marker != nil && marker.Matches(d.Name, env),
	}, nil
}

// Print renders the report as a status table.
func (r *StatusReport) Print(c *ux.Console) {
	rows := make([]ux.StatusRow, 0, len(r.Status.Expected))
	for _, svc := range r.Status.Expected {
		state := r.Status.States[svc]
		rows = append(rows, ux.StatusRow{
			Name:   svc,
			State:  string(state),
			Icon:   stateIcon(state),
			Detail: r.Status.Containers[svc].Status,
		})
	}
	title := fmt.Sprintf("%s (%s)", r.Status.ComposeProject, r.Mode)
	c.StatusTable(title, rows)

	running := len(r.Status.Running())
	switch {
	case r.Healthy():
		c.Success(fmt.Sprintf("%d/%d services running", running, len(r.Status.Expected)))
	case running > 0:
		c.Warning(fmt.Sprintf("%d/%d services running", running, len(r.Status.Expected)))
		c.Remediation("Retry the missing services: parity up " + r.Environment)
	default:
		c.Warning(r.Status.ComposeProject + " is not running")
		c.Remediation("Start it: parity up " + r.Environment)
	}
}

func stateIcon(s compose.ContainerState) ux.Icon {
	switch s {
	case compose.StateRunningHealthy, compose.StateRunningUnknown:
		return ux.IconSuccess
	case compose.StateRunningUnhealthy:
		return ux.IconWarning
	case compose.StateExited:
		return ux.IconError
	default:
		return ux.IconPending
	}
}
