// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plan resolves an environment name to a topology and assembles the
// ordered compose overlay list for it.
package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/parity/cmd/parity/config"
	"github.com/AleutianAI/parity/cmd/parity/internal/infra/compose"
	"github.com/AleutianAI/parity/cmd/parity/internal/platform"
	"github.com/AleutianAI/parity/cmd/parity/internal/util"
)

// Mode is the topology of an environment.
type Mode string

const (
	// Development runs only the proxy in a container.
	Development Mode = "development"

	// Deployment runs the whole stack in containers.
	Deployment Mode = "deployment"
)

// Overlay locations, relative to the project root.
const (
	OverlayDir         = ".parity/compose"
	BaseOverlay        = "base.yml"
	DevelopmentOverlay = "development.yml"
	DeploymentOverlay  = "deployment.yml"
	SupabaseOverlay    = "supabase.yml"
)

// ErrNoTarget means env selects deployment mode but the descriptor has no
// target of that name. The orchestrator offers to create one.
var ErrNoTarget = errors.New("no deployment target configured")

// ResolveMode maps an environment name to its Mode. Only the exact,
// case-sensitive name "development" selects Development.
func ResolveMode(env string) Mode {
	if env == config.DevelopmentEnv {
		return Development
	}
	return Deployment
}

// Plan is everything needed to invoke the runtime for one environment.
type Plan struct {
	Environment string
	Mode        Mode
	ProjectDir  string

	// ComposeProject is "<project>-<env>".
	ComposeProject string

	// Overlays are absolute paths: base first, platform-specific last.
	Overlays []string

	// ExpectedServices are the compose services the overlays define, in
	// first-seen order.
	ExpectedServices []string

	Backend platform.Backend

	// Target is nil in Development mode.
	Target *config.DeploymentTarget
}

// Project returns the compose invocation target for this plan.
func (p *Plan) Project() compose.Project {
	return compose.Project{Name: p.ComposeProject, Dir: p.ProjectDir, Files: p.Overlays}
}

// ComposeProjectName returns "<project>-<env>".
func ComposeProjectName(project, env string) string {
	return project + "-" + env
}

// OverlayNames returns the overlay file names for a mode, in order.
func OverlayNames(mode Mode, backend platform.Kind) []string {
	switch mode {
	case Development:
		return []string{BaseOverlay, DevelopmentOverlay}
	default:
		names := []string{BaseOverlay, DeploymentOverlay}
		switch backend {
		case platform.Supabase:
			names = append(names, SupabaseOverlay)
		case platform.None:
		}
		return names
	}
}

// Build assembles the plan for env.
//
// # Description
//
// Resolves the mode, looks up the deployment target in Deployment mode,
// and checks every overlay exists. Nothing is written.
//
// # Outputs
//
//   - *Plan: The assembled plan
//   - error: ErrNoTarget (wrapped) for an unconfigured deployment
//     environment, or a KindPrerequisite StackError for a missing overlay
func Build(projectDir, env string, d *config.ProjectDescriptor, backend platform.Backend) (*Plan, error) {
	p := &Plan{
		Environment:    env,
		Mode:           ResolveMode(env),
		ProjectDir:     projectDir,
		ComposeProject: ComposeProjectName(d.Name, env),
		Backend:        backend,
	}

	if p.Mode == Deployment {
		target, ok := d.Target(env)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNoTarget, env)
		}
		p.Target = &target
	}

	seen := make(map[string]bool)
	for _, name := range OverlayNames(p.Mode, backend.Kind) {
		path := filepath.Join(projectDir, OverlayDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, util.NewStackError(util.KindPrerequisite,
					fmt.Sprintf("compose overlay %s is missing", filepath.Join(OverlayDir, name)),
					"Restore "+OverlayDir+" from version control or re-scaffold the project",
					err)
			}
			return nil, util.NewStackError(util.KindPrerequisite,
				"cannot read compose overlay "+path, "Check the file permissions", err)
		}
		services, err := OverlayServices(data)
		if err != nil {
			return nil, util.NewStackError(util.KindPrerequisite,
				fmt.Sprintf("compose overlay %s is not valid YAML", name),
				"Fix the syntax error reported above", err)
		}
		for _, s := range services {
			if !seen[s] {
				seen[s] = true
				p.ExpectedServices = append(p.ExpectedServices, s)
			}
		}
		p.Overlays = append(p.Overlays, path)
	}
	return p, nil
}

// OverlayServices returns the keys of a compose file's services mapping in
// document order.
func OverlayServices(data []byte) ([]string, error) {
	var doc struct {
		Services yaml.Node `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Services.Kind != yaml.MappingNode {
		return nil, nil
	}
	var names []string
	for i := 0; i+1 < len(doc.Services.Content); i += 2 {
		names = append(names, doc.Services.Content[i].Value)
	}
	return names, nil
}
