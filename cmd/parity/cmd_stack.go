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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/parity/cmd/parity/internal/orchestrator"
)

const defaultEnvironment = "development"

// envArg returns the environment named on the command line, or fallback.
func envArg(args []string, fallback string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return fallback
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	_, err = s.Engine.Up(ctx, envArg(args, defaultEnvironment))
	return err
}

func runDown(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	_, err = s.Engine.Down(ctx, envArg(args, defaultEnvironment), orchestrator.DownOptions{Volumes: downVolumes})
	return err
}

// runStatus prints the health table. An unhealthy environment exits
// non-zero so scripts can gate on it.
func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	report, err := s.Engine.Status(ctx, envArg(args, ""))
	if err != nil {
		return err
	}
	report.Print(s.Console)
	if !report.Healthy() {
		return errUnhealthy
	}
	return nil
}
