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
	"path/filepath"

	"github.com/AleutianAI/parity/cmd/parity/config"
	"github.com/AleutianAI/parity/cmd/parity/internal/platform"
	"github.com/AleutianAI/parity/cmd/parity/internal/util"
)

func targetAddHint(env string) string {
	return fmt.Sprintf("Add it with: parity target add %s --domain <app domain>", env)
}

// offerTarget asks whether to configure a missing deployment target and,
// on yes, prompts for it and saves parity.yaml. On no it returns
// util.ErrCancelled without writing anything.
func (e *Engine) offerTarget(ctx context.Context, d *config.ProjectDescriptor, env string) error {
	e.console.Warning(fmt.Sprintf("%s has no deployment target named %q", config.DescriptorFile, env))

	ok, err := e.prompter.Confirm(ctx, fmt.Sprintf("Configure deployment target %q now?", env))
	if err != nil {
		return e.promptFailed(err, env)
	}
	if !ok {
		e.console.Info("Nothing was changed. " + targetAddHint(env))
		return util.ErrCancelled
	}

	t, err := e.PromptTarget(ctx, env)
	if err != nil {
		return err
	}
	return e.AddTarget(d, t)
}

// PromptTarget asks the operator for a deployment target's domain and
// certificate policy. A letsencrypt answer also makes sure the operator
// email is on record.
func (e *Engine) PromptTarget(ctx context.Context, env string) (config.DeploymentTarget, error) {
	domain, err := e.prompter.Input(ctx, fmt.Sprintf("App domain for %s", env), "app.example.com", config.ValidateDomain)
	if err != nil {
		return config.DeploymentTarget{}, e.promptFailed(err, env)
	}
	ssl, err := e.prompter.Select(ctx, "Certificates", []string{string(config.SSLSelfSigned), string(config.SSLLetsEncrypt)})
	if err != nil {
		return config.DeploymentTarget{}, e.promptFailed(err, env)
	}

	t := config.DeploymentTarget{Name: env, AppDomain: domain, SSL: config.SSLPolicy(ssl)}
	if err := config.ValidateTarget(t); err != nil {
		return config.DeploymentTarget{}, util.NewStackError(util.KindPrerequisite,
			fmt.Sprintf("deployment target %q is invalid", env), targetAddHint(env), err)
	}
	if t.RequiresOperatorEmail() {
		if _, err := e.EnsureOperatorEmail(ctx); err != nil {
			return config.DeploymentTarget{}, err
		}
	}
	return t, nil
}

// AddTarget validates t, appends it to d, and saves parity.yaml.
func (e *Engine) AddTarget(d *config.ProjectDescriptor, t config.DeploymentTarget) error {
	if err := config.ValidateTarget(t); err != nil {
		return util.NewStackError(util.KindPrerequisite,
			fmt.Sprintf("deployment target %q is invalid", t.Name), targetAddHint(t.Name), err)
	}
	if err := d.AddTarget(t); err != nil {
		return util.NewStackError(util.KindPrerequisite, err.Error(),
			fmt.Sprintf("Remove it first: parity target remove %s", t.Name), err)
	}
	if err := config.SaveDescriptor(e.projectDir, d); err != nil {
		return util.NewStackError(util.KindPrerequisite, "cannot save "+config.DescriptorFile,
			"Check the permissions of "+config.DescriptorFile, err)
	}
	e.log.Info("deployment target added", "target", t.Name, "app_domain", t.AppDomain, "ssl", t.Policy())
	e.console.Success(fmt.Sprintf("Added deployment target %s (%s, %s)", t.Name, t.AppDomain, t.Policy()))
	return nil
}

// Descriptor loads parity.yaml.
func (e *Engine) Descriptor() (*config.ProjectDescriptor, error) {
	return e.loadDescriptor()
}

// RemoveTarget deletes the deployment target named env from parity.yaml.
// Running containers of that environment are left alone.
func (e *Engine) RemoveTarget(env string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.loadDescriptor()
	if err != nil {
		return err
	}
	if err := d.RemoveTarget(env); err != nil {
		return util.NewStackError(util.KindPrerequisite, err.Error(), "List targets with: parity target list", err)
	}
	if err := config.SaveDescriptor(e.projectDir, d); err != nil {
		return util.NewStackError(util.KindPrerequisite, "cannot save "+config.DescriptorFile,
			"Check the permissions of "+config.DescriptorFile, err)
	}
	e.log.Info("deployment target removed", "target", env)
	e.console.Success("Removed deployment target " + env)
	return nil
}

// WatchedFiles returns the inputs of the routing table: parity.yaml and
// the backend config.
func (e *Engine) WatchedFiles() []string {
	return []string{
		filepath.Join(e.projectDir, config.DescriptorFile),
		filepath.Join(e.projectDir, platform.SupabaseConfigPath),
	}
}

// EnsureOperatorEmail returns the ACME contact from settings, prompting
// for it and saving it when missing.
func (e *Engine) EnsureOperatorEmail(ctx context.Context) (string, error) {
	settings, err := e.store.LoadSettings()
	if err != nil {
		return "", util.NewStackError(util.KindPrerequisite, "cannot read operator settings",
			"Check ~/.parity/settings.yaml", err)
	}
	if settings.OperatorEmail != "" {
		return settings.OperatorEmail, nil
	}

	email, err := e.prompter.Input(ctx, "Operator email for Let's Encrypt", "ops@example.com", config.ValidateEmail)
	if err != nil {
		if errors.Is(err, util.ErrNonInteractive) {
			return "", util.NewStackError(util.KindPrerequisite,
				"letsencrypt targets need an operator email",
				"Add `operatorEmail: you@example.com` to ~/.parity/settings.yaml", err)
		}
		return "", err
	}
	settings.OperatorEmail = email
	if err := e.store.SaveSettings(settings); err != nil {
		return "", util.NewStackError(util.KindPrerequisite, "cannot save operator settings",
			"Check ~/.parity/settings.yaml", err)
	}
	return email, nil
}

func (e *Engine) promptFailed(err error, env string) error {
	if errors.Is(err, util.ErrNonInteractive) {
		return util.NewStackError(util.KindPrerequisite,
			fmt.Sprintf("deployment target %q is not configured and there is no terminal to ask", env),
			targetAddHint(env), err)
	}
	return err
}
