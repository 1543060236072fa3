// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package config is the parity Config Store.

It owns three kinds of configuration:

  - The project descriptor (parity.yaml at the project root): project name,
    services, and deployment targets.
  - User-level state (~/.parity): operator settings and the marker naming
    the environment that was last brought up. Both sit behind StateStore.
  - Runtime settings read from PARITY_* environment variables.

# Descriptor Example

	name: demo
	services:
	  - name: app
	    type: nextjs
	    port: 3000
	targets:
	  - name: production
	    appDomain: demo.example.com
	    ssl: letsencrypt
*/
package config

import (
	"strings"
	"time"
)

// DescriptorFile is the project descriptor file name at the project root.
const DescriptorFile = "parity.yaml"

// DevelopmentEnv is the one environment name that selects development mode.
// It can never be a deployment target.
const DevelopmentEnv = "development"

// ProjectDescriptor is the root of parity.yaml.
type ProjectDescriptor struct {
	// Name is the DNS-safe project name, used in compose project names.
	Name string `yaml:"name" validate:"required,dnslabel"`

	// Services run on the host in development and in containers in deployment.
	Services []Service `yaml:"services" validate:"dive"`

	// Targets are the deployment environments.
	Targets []DeploymentTarget `yaml:"targets,omitempty" validate:"dive"`

	// Migrated lists load-time rewrites of deprecated fields.
	Migrated []string `yaml:"-"`
}

// Service is one routable application service.
type Service struct {
	Name string `yaml:"name" validate:"required,dnslabel"`

	// Type is a framework tag (nextjs, go, fastapi, ...). Informational.
	Type string `yaml:"type,omitempty"`

	Port int `yaml:"port" validate:"required,min=1,max=65535"`
}

// SSLPolicy selects how a deployment target gets certificates.
type SSLPolicy string

const (
	// SSLSelfSigned uses a locally generated certificate.
	SSLSelfSigned SSLPolicy = "selfsigned"

	// SSLLetsEncrypt obtains certificates from a public CA via ACME.
	// Requires an operator email in user settings.
	SSLLetsEncrypt SSLPolicy = "letsencrypt"
)

// DeploymentTarget describes one deployment environment.
type DeploymentTarget struct {
	// Name matches the environment name passed to `parity up`.
	Name string `yaml:"name" validate:"required,dnslabel,ne=development"`

	// AppDomain is the primary domain. Services are routed at <service>.<AppDomain>.
	AppDomain string `yaml:"appDomain" validate:"required,fqdn"`

	// Domain is the deprecated spelling of AppDomain. Rewritten on load.
	Domain string `yaml:"domain,omitempty"`

	// APIDomain overrides the default api.<AppDomain>.
	APIDomain string `yaml:"apiDomain,omitempty" validate:"omitempty,fqdn"`

	// StudioDomain overrides the default studio.<AppDomain>.
	StudioDomain string `yaml:"studioDomain,omitempty" validate:"omitempty,fqdn"`

	SSH SSHConfig `yaml:"ssh,omitempty"`

	// SSL is the certificate policy. Empty means SSLSelfSigned.
	SSL SSLPolicy `yaml:"ssl,omitempty" validate:"omitempty,oneof=selfsigned letsencrypt"`
}

// SSHConfig holds remote host connection fields. parity stores them for
// the deployment transport and does not use them itself.
type SSHConfig struct {
	Host    string `yaml:"host,omitempty" validate:"omitempty,hostname_rfc1123|ip"`
	User    string `yaml:"user,omitempty"`
	Port    int    `yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	KeyPath string `yaml:"keyPath,omitempty"`
}

// ResolvedAPIDomain returns APIDomain or api.<AppDomain>.
func (t DeploymentTarget) ResolvedAPIDomain() string {
	if t.APIDomain != "" {
		return t.APIDomain
	}
	return "api." + t.AppDomain
}

// ResolvedStudioDomain returns StudioDomain or studio.<AppDomain>.
func (t DeploymentTarget) ResolvedStudioDomain() string {
	if t.StudioDomain != "" {
		return t.StudioDomain
	}
	return "studio." + t.AppDomain
}

// Policy returns the effective SSL policy.
func (t DeploymentTarget) Policy() SSLPolicy {
	if t.SSL == "" {
		return SSLSelfSigned
	}
	return t.SSL
}

// RequiresOperatorEmail reports whether the target needs an ACME contact.
func (t DeploymentTarget) RequiresOperatorEmail() bool {
	return t.Policy() == SSLLetsEncrypt
}

// Target returns the target named env, if any.
func (d *ProjectDescriptor) Target(env string) (DeploymentTarget, bool) {
	for _, t := range d.Targets {
		if t.Name == env {
			return t, true
		}
	}
	return DeploymentTarget{}, false
}

// ServiceNames returns service names in declaration order.
func (d *ProjectDescriptor) ServiceNames() []string {
	names := make([]string, len(d.Services))
	for i, s := range d.Services {
		names[i] = s.Name
	}
	return names
}

// =============================================================================
// User-level State
// =============================================================================

// Settings are operator-wide preferences stored in ~/.parity/settings.yaml.
type Settings struct {
	// OperatorEmail is the ACME contact for letsencrypt targets.
	OperatorEmail string `yaml:"operatorEmail,omitempty" validate:"omitempty,email"`

	// Runtime is the preferred container runtime ("docker" or "podman").
	Runtime string `yaml:"runtime,omitempty" validate:"omitempty,oneof=docker podman"`
}

// RunningMarker records the environment parity last brought up.
//
// The marker alone is not proof that anything is running; the inspector
// cross-checks it against the container runtime.
type RunningMarker struct {
	Project        string    `yaml:"project"`
	Environment    string    `yaml:"environment"`
	ComposeProject string    `yaml:"composeProject"`
	ProjectDir     string    `yaml:"projectDir"`
	StartedAt      time.Time `yaml:"startedAt"`
}

// Matches reports whether the marker names the given project environment.
func (m RunningMarker) Matches(project, env string) bool {
	return m.Project == project && m.Environment == env
}

// EnvPrefix converts an environment name into its secret-key prefix:
// upper-cased, with every non-alphanumeric rune replaced by '_'.
//
//	EnvPrefix("staging")   // "STAGING_"
//	EnvPrefix("eu-west")   // "EU_WEST_"
func EnvPrefix(env string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(env) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	b.WriteByte('_')
	return b.String()
}
