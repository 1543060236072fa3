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
	"strconv"

	"github.com/AleutianAI/parity/cmd/parity/config"
	"github.com/AleutianAI/parity/cmd/parity/internal/infra/compose"
	"github.com/AleutianAI/parity/cmd/parity/internal/inspect"
	"github.com/AleutianAI/parity/cmd/parity/internal/plan"
	"github.com/AleutianAI/parity/cmd/parity/internal/platform"
	"github.com/AleutianAI/parity/cmd/parity/internal/util"
	"github.com/AleutianAI/parity/pkg/logging"
)

// checkConflicts runs the CheckingConflicts phase.
//
// # Description
//
// Three conflicts are checked in order. Each is resolved only with the
// operator's consent; a decline returns util.ErrCancelled before anything
// is stopped or written.
//
//  1. A different parity environment whose proxy is running.
//  2. In deployment with Supabase, the Supabase CLI's own local stack.
//  3. A foreign process listening on 80 or 443. Killing it needs an
//     answer from a person; --yes alone is refused.
//
// Inspection itself never fails; an inspector that cannot tell reports no
// conflict.
func (e *Engine) checkConflicts(ctx context.Context, d *config.ProjectDescriptor, p *plan.Plan, log *logging.Logger) error {
	ctx, span := startPhase(ctx, "conflicts")
	defer span.End()

	if running := e.inspector.DetectRunningEnvironment(ctx); running != nil && !running.Matches(d.Name, p.Environment) {
		log.Info("competing environment running", "compose_project", running.ComposeProject)
		e.console.Warning(fmt.Sprintf("%s (%s) is already running and holds ports 80/443", running.Environment, running.ComposeProject))
		if err := e.consent(ctx, fmt.Sprintf("Stop %s and continue?", running.ComposeProject)); err != nil {
			return err
		}
		if err := e.stopEnvironment(ctx, running); err != nil {
			return err
		}
	}

	if p.Mode == plan.Deployment && p.Backend.Kind == platform.Supabase &&
		e.inspector.CheckCompetingLocalService(ctx, p.Backend.Ports.All()) {
		log.Info("supabase CLI stack running")
		e.console.Warning("The Supabase CLI local stack is running on the ports this deployment needs")
		if err := e.consent(ctx, "Stop it with `supabase stop` and continue?"); err != nil {
			return err
		}
		_, stderr, code, err := e.proc.RunInDir(ctx, e.projectDir, nil, "supabase", "stop")
		if err != nil || code != 0 {
			return util.NewStackError(util.KindConflict, "could not stop the Supabase CLI stack",
				"Run `supabase stop` manually, then retry",
				util.NewCommandError("supabase stop", code, stderr, err))
		}
		e.console.Success("Stopped the Supabase CLI stack")
	}

	if conflict := e.inspector.CheckPortConflicts(ctx, inspect.ProxyPorts); conflict != nil {
		log.Info("port conflict", "port", conflict.Port, "pid", conflict.PID, "process", conflict.Process)
		e.console.Warning(conflict.String())
		if conflict.PID <= 0 {
			return util.NewStackError(util.KindConflict, conflict.String(),
				fmt.Sprintf("Stop whatever is listening on port %d, then retry", conflict.Port), nil)
		}
		if util.AssumesConsent(e.prompter) {
			return util.NewStackError(util.KindConflict,
				fmt.Sprintf("%s (PID %d) is not part of parity; --yes does not stop it", conflict.Process, conflict.PID),
				fmt.Sprintf("Stop it manually (kill %d), or re-run without --yes to be asked", conflict.PID), nil)
		}
		if err := e.consent(ctx, fmt.Sprintf("Stop %s (PID %d) and continue?", conflict.Process, conflict.PID)); err != nil {
			return err
		}
		if _, err := e.proc.Run(ctx, "kill", strconv.Itoa(conflict.PID)); err != nil {
			return util.NewStackError(util.KindConflict,
				fmt.Sprintf("could not stop %s (PID %d)", conflict.Process, conflict.PID),
				fmt.Sprintf("Stop it manually (sudo kill %d), then retry", conflict.PID), err)
		}
		e.console.Success(fmt.Sprintf("Stopped %s", conflict.Process))
	}
	return nil
}

// consent asks a yes/no question and maps "no" to util.ErrCancelled.
func (e *Engine) consent(ctx context.Context, question string) error {
	ok, err := e.prompter.Confirm(ctx, question)
	if err != nil {
		return err
	}
	if !ok {
		e.console.Info("Nothing was changed.")
		return util.ErrCancelled
	}
	return nil
}

// stopEnvironment tears down another environment by compose project name
// and clears the marker.
func (e *Engine) stopEnvironment(ctx context.Context, m *config.RunningMarker) error {
	project := compose.Project{Name: m.ComposeProject, Dir: m.ProjectDir}
	if _, err := e.executor.Down(ctx, project, compose.DownOptions{RemoveOrphans: true}); err != nil {
		return util.NewStackError(util.KindConflict,
			"could not stop "+m.ComposeProject,
			fmt.Sprintf("Stop it manually: parity down %s --project-dir %s", m.Environment, m.ProjectDir), err)
	}
	if err := e.store.ClearMarker(); err != nil {
		e.log.Warn("cannot clear running marker", "error", err)
	}
	e.console.Success("Stopped " + m.ComposeProject)
	return nil
}
