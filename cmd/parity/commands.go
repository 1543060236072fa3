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

	"github.com/AleutianAI/parity/pkg/ux"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// --- Global Command Variables ---
var (
	projectDir       string
	assumeYes        bool
	logLevel         string
	runtimeName      string
	personalityLevel string // UX personality level (full/minimal/machine)

	downVolumes bool
	routesWatch bool

	targetDomain       string
	targetAPIDomain    string
	targetStudioDomain string
	targetSSL          string
	targetSSHHost      string
	targetSSHUser      string
	targetSSHPort      int

	rootCmd = &cobra.Command{
		Use:   "parity",
		Short: "Run the same container topology in development and deployment",
		Long: `parity brings a project's environments up and down with one command.

"development" runs only the reverse proxy in a container and routes to
services on your machine. Every other environment name is a deployment
target from parity.yaml and runs the full stack.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	// --- Environment Lifecycle ---
	upCmd = &cobra.Command{
		Use:   "up [env]",
		Short: "Bring an environment up (default: development)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runUp, // Defined in cmd_stack.go
	}
	downCmd = &cobra.Command{
		Use:   "down [env]",
		Short: "Stop an environment's containers (default: development)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDown, // Defined in cmd_stack.go
	}
	statusCmd = &cobra.Command{
		Use:   "status [env]",
		Short: "Show container health (default: the running environment)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStatus, // Defined in cmd_stack.go
	}
	routesCmd = &cobra.Command{
		Use:   "routes [env]",
		Short: "Regenerate the proxy routing file without touching containers",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRoutes, // Defined in cmd_routes.go
	}

	// --- Deployment Targets ---
	targetCmd = &cobra.Command{
		Use:   "target",
		Short: "Manage deployment targets in parity.yaml",
	}
	targetAddCmd = &cobra.Command{
		Use:   "add <name>",
		Short: "Add a deployment target",
		Args:  cobra.ExactArgs(1),
		RunE:  runTargetAdd, // Defined in cmd_target.go
	}
	targetRemoveCmd = &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a deployment target",
		Args:    cobra.ExactArgs(1),
		RunE:    runTargetRemove, // Defined in cmd_target.go
	}
	targetListCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List deployment targets",
		Args:    cobra.NoArgs,
		RunE:    runTargetList, // Defined in cmd_target.go
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&projectDir, "project-dir", "C", ".", "Project root containing parity.yaml")
	pf.BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to every confirmation (non-interactive)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (env PARITY_LOG_LEVEL)")
	pf.StringVar(&runtimeName, "runtime", "", "Container runtime: docker or podman (env PARITY_RUNTIME)")
	pf.StringVar(&personalityLevel, "personality", "", "Output style: full, minimal, machine (env PARITY_PERSONALITY)")

	downCmd.Flags().BoolVar(&downVolumes, "volumes", false, "Also delete volumes and the environment's data (asks first)")
	routesCmd.Flags().BoolVarP(&routesWatch, "watch", "w", false, "Regenerate on changes to parity.yaml and supabase/config.toml")

	af := targetAddCmd.Flags()
	af.StringVar(&targetDomain, "domain", "", "App domain, e.g. demo.example.com")
	af.StringVar(&targetAPIDomain, "api-domain", "", "API domain (default: api.<domain>)")
	af.StringVar(&targetStudioDomain, "studio-domain", "", "Studio domain (default: studio.<domain>)")
	af.StringVar(&targetSSL, "ssl", "", "Certificate policy: selfsigned or letsencrypt (default: selfsigned)")
	af.StringVar(&targetSSHHost, "ssh-host", "", "Remote host for the deployment transport")
	af.StringVar(&targetSSHUser, "ssh-user", "", "Remote user")
	af.IntVar(&targetSSHPort, "ssh-port", 0, "Remote SSH port")

	targetCmd.AddCommand(targetAddCmd, targetRemoveCmd, targetListCmd)
	rootCmd.AddCommand(upCmd, downCmd, statusCmd, routesCmd, targetCmd)
}
