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
	"os"

	"github.com/AleutianAI/parity/cmd/parity/config"
	"github.com/AleutianAI/parity/cmd/parity/internal/infra/compose"
	"github.com/AleutianAI/parity/cmd/parity/internal/plan"
)

// DownOptions configures Down.
type DownOptions struct {
	// Volumes also deletes the environment's volumes and data directory.
	// The operator must confirm.
	Volumes bool
}

// DownResult reports a tear-down.
type DownResult struct {
	Environment    string
	ComposeProject string

	// MarkerCleared is true when the running marker named this environment.
	MarkerCleared bool

	// DataRemoved is true when .parity/data/<env> was deleted.
	DataRemoved bool
}

// Down stops env's containers.
//
// # Description
//
// The overlay plan is used when it can be built. When it cannot (no
// target, overlays deleted), the runtime is asked to tear the project down
// by name alone, so a half-configured environment can still be stopped.
// With Volumes, the environment's volumes and its data directory are
// removed after an explicit confirmation; the secrets in .env are kept and
// will be reused by the next bring-up.
//
// # Outputs
//
//   - *DownResult: What was done
//   - error: util.ErrCancelled when the volume deletion is declined, or
//     the runtime error
func (e *Engine) Down(ctx context.Context, env string, opts DownOptions) (*DownResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := startPhase(ctx, "down")
	defer span.End()

	d, err := e.loadDescriptor()
	if err != nil {
		return nil, err
	}

	project := compose.Project{Name: plan.ComposeProjectName(d.Name, env), Dir: e.projectDir}
	if p, err := plan.Build(e.projectDir, env, d, e.detectBackend()); err == nil {
		project = p.Project()
	} else {
		e.log.Debug("tearing down by project name only", "reason", err)
	}
	result := &DownResult{Environment: env, ComposeProject: project.Name}

	if opts.Volumes {
		e.console.WarningBox("Destroy data",
			fmt.Sprintf("This deletes every volume of %s, including its database.\nThe secrets in .env are kept.", project.Name))
		if err := e.consent(ctx, fmt.Sprintf("Delete all %s data?", env)); err != nil {
			return nil, err
		}
	}

	release, err := e.lock()
	if err != nil {
		return nil, err
	}
	defer release()

	spinner := e.console.Spinner("Stopping " + project.Name)
	spinner.Start()
	_, err = e.executor.Down(ctx, project, compose.DownOptions{RemoveVolumes: opts.Volumes, RemoveOrphans: true})
	if err != nil {
		spinner.Stop()
		return nil, fmt.Errorf("stop %s: %w", project.Name, err)
	}
	spinner.StopWithSuccess(project.Name + " stopped")

	if opts.Volumes {
		dir := config.EnvDataDir(e.projectDir, env)
		if err := os.RemoveAll(dir); err != nil {
			e.log.Warn("cannot remove data directory", "dir", dir, "error", err)
			e.console.Warning("Could not remove " + dir + ": " + err.Error())
		} else {
			result.DataRemoved = true
		}
	}

	if m, err := e.store.LoadMarker(); err == nil && m != nil && m.Matches(d.Name, env) {
		if err := e.store.ClearMarker(); err != nil {
			e.log.Warn("cannot clear running marker", "error", err)
		} else {
			result.MarkerCleared = true
		}
	}

	e.log.Info("environment stopped", "environment", env, "compose_project", project.Name, "volumes", opts.Volumes)
	return result, nil
}
