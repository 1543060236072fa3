// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/parity/cmd/parity/internal/orchestrator"
	"github.com/AleutianAI/parity/cmd/parity/internal/plan"
	"github.com/AleutianAI/parity/cmd/parity/internal/routing"
	"github.com/AleutianAI/parity/cmd/parity/internal/util"
)

func runRoutes(cmd *cobra.Command, args []string) error {
	env := envArg(args, defaultEnvironment)
	if routesWatch && plan.ResolveMode(env) != plan.Development {
		return util.NewStackError(util.KindPrerequisite, "--watch is only available for development",
			"Run: parity routes "+env, nil)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(context.WithoutCancel(ctx))

	regenerate := func() error {
		res, err := s.Engine.RegenerateRouting(ctx, env)
		if err != nil {
			return err
		}
		printRouting(s, res)
		return nil
	}
	if err := regenerate(); err != nil {
		return err
	}
	if !routesWatch {
		return nil
	}

	w, err := routing.NewWatcher(s.Engine.WatchedFiles(), func() error {
		err := regenerate()
		if err != nil {
			s.Console.Error(err.Error())
			if r := util.Remediation(err); r != "" {
				s.Console.Remediation(r)
			}
		}
		return err
	}, routing.WatcherOptions{Logger: s.Logger})
	if err != nil {
		return err
	}
	s.Console.Info("Watching for changes. Press Ctrl+C to stop.")
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func printRouting(s *Session, res *orchestrator.RoutingResult) {
	if !res.Changed {
		s.Console.Muted(res.Path + " is up to date")
		return
	}
	scheme := "https"
	if !res.TLS {
		scheme = "http"
	}
	s.Console.Success(fmt.Sprintf("Wrote %s (%s: %s)", res.Path, scheme, strings.Join(res.Routers, ", ")))
}
