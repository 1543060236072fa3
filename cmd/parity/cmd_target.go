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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/parity/cmd/parity/config"
	"github.com/AleutianAI/parity/pkg/ux"
)

// runTargetAdd adds a deployment target from flags, or asks for it when
// --domain is absent.
func runTargetAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	d, err := s.Engine.Descriptor()
	if err != nil {
		return err
	}

	var t config.DeploymentTarget
	if targetDomain == "" {
		t, err = s.Engine.PromptTarget(ctx, args[0])
		if err != nil {
			return err
		}
	} else {
		t = config.DeploymentTarget{
			Name:         args[0],
			AppDomain:    targetDomain,
			APIDomain:    targetAPIDomain,
			StudioDomain: targetStudioDomain,
			SSL:          config.SSLPolicy(targetSSL),
		}
		if t.RequiresOperatorEmail() {
			if _, err := s.Engine.EnsureOperatorEmail(ctx); err != nil {
				return err
			}
		}
	}
	t.SSH = config.SSHConfig{Host: targetSSHHost, User: targetSSHUser, Port: targetSSHPort}

	return s.Engine.AddTarget(d, t)
}

func runTargetRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	return s.Engine.RemoveTarget(args[0])
}

func runTargetList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	d, err := s.Engine.Descriptor()
	if err != nil {
		return err
	}
	if len(d.Targets) == 0 {
		s.Console.Info("No deployment targets. Add one with: parity target add <name> --domain <app domain>")
		return nil
	}

	rows := make([]ux.StatusRow, 0, len(d.Targets))
	for _, t := range d.Targets {
		rows = append(rows, ux.StatusRow{
			Name:   t.Name,
			State:  string(t.Policy()),
			Icon:   ux.IconBullet,
			Detail: fmt.Sprintf("%s, %s, %s", t.AppDomain, t.ResolvedAPIDomain(), t.ResolvedStudioDomain()),
		})
	}
	s.Console.StatusTable(d.Name+" deployment targets", rows)
	return nil
}
