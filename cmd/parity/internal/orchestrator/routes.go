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
	"fmt"
	"path/filepath"

	"github.com/AleutianAI/parity/cmd/parity/config"
	"github.com/AleutianAI/parity/cmd/parity/internal/plan"
	"github.com/AleutianAI/parity/cmd/parity/internal/platform"
	"github.com/AleutianAI/parity/cmd/parity/internal/routing"
	"github.com/AleutianAI/parity/cmd/parity/internal/util"
)

// RoutingResult reports a routing regeneration.
type RoutingResult struct {
	Path    string
	Changed bool
	Routers []string

	// TLS is false when development fell back to HTTP.
	TLS bool
}

// RegenerateRouting rewrites the routing file for env without touching
// containers. The proxy picks the change up on its own.
//
// # Outputs
//
//   - *RoutingResult: What was written
//   - error: KindPrerequisite for a missing descriptor or target,
//     KindGeneration when the table cannot be built or written
func (e *Engine) RegenerateRouting(ctx context.Context, env string) (*RoutingResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := startPhase(ctx, "routes")
	defer span.End()

	d, err := e.loadDescriptor()
	if err != nil {
		return nil, err
	}

	var target *config.DeploymentTarget
	if plan.ResolveMode(env) == plan.Deployment {
		t, ok := d.Target(env)
		if !ok {
			return nil, util.NewStackError(util.KindPrerequisite,
				fmt.Sprintf("no deployment target named %q", env),
				targetAddHint(env), plan.ErrNoTarget)
		}
		target = &t
	}

	table, tls, err := e.buildTable(ctx, d, env, e.detectBackend(), target)
	if err != nil {
		return nil, err
	}
	path, changed, err := e.writeTable(table)
	if err != nil {
		return nil, err
	}
	return &RoutingResult{Path: path, Changed: changed, Routers: table.RouterNames(), TLS: tls}, nil
}

// writeRouting builds and writes the table for one bring-up.
func (e *Engine) writeRouting(ctx context.Context, d *config.ProjectDescriptor, env string, backend platform.Backend, target *config.DeploymentTarget) (changed, tls bool, err error) {
	table, tls, err := e.buildTable(ctx, d, env, backend, target)
	if err != nil {
		return false, false, err
	}
	_, changed, err = e.writeTable(table)
	return changed, tls, err
}

// buildTable generates the routing table. In development it first makes
// sure a certificate exists and falls back to HTTP when it cannot.
func (e *Engine) buildTable(ctx context.Context, d *config.ProjectDescriptor, env string, backend platform.Backend, target *config.DeploymentTarget) (*routing.Table, bool, error) {
	if plan.ResolveMode(env) == plan.Development {
		st := e.certs.Ensure(ctx, e.projectDir, e.runtime.DevDomain)
		if !st.Available {
			e.console.Warning(fmt.Sprintf("No development certificate (%s); routes are HTTP-only", st.Reason))
		}
		return routing.GenerateDevelopment(d.Services, backend, routing.DevOptions{
			Domain:      e.runtime.DevDomain,
			HostAlias:   e.runtime.HostAlias,
			TLS:         st.Available,
			Certificate: st.Certificate(),
		}), st.Available, nil
	}

	if target == nil {
		return nil, false, util.NewStackError(util.KindGeneration,
			fmt.Sprintf("no deployment target for %s", env), targetAddHint(env), plan.ErrNoTarget)
	}
	table, err := routing.GenerateDeployment(d.Services, *target)
	if err != nil {
		return nil, false, util.NewStackError(util.KindGeneration,
			fmt.Sprintf("cannot generate routing for %s", env),
			fmt.Sprintf("Set appDomain for target %q in %s", env, config.DescriptorFile), err)
	}
	return table, true, nil
}

func (e *Engine) writeTable(table *routing.Table) (string, bool, error) {
	path := filepath.Join(e.projectDir, routing.DynamicFile)
	changed, err := routing.Write(path, table)
	if err != nil {
		return path, false, util.NewStackError(util.KindGeneration,
			"cannot write "+routing.DynamicFile,
			"Check the permissions of "+filepath.Dir(routing.DynamicFile), err)
	}
	if changed {
		e.log.Info("routing updated", "path", routing.DynamicFile, "routers", len(table.Routers))
	} else {
		e.log.Debug("routing unchanged", "path", routing.DynamicFile)
	}
	return path, changed, nil
}
