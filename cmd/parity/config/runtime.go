// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Runtime holds process-level settings from PARITY_* environment variables.
// Command-line flags override these after parsing.
type Runtime struct {
	// Runtime is "docker", "podman", or empty to auto-detect.
	Runtime string `env:"PARITY_RUNTIME" validate:"omitempty,oneof=docker podman"`

	// DevDomain is the development base domain.
	DevDomain string `env:"PARITY_DEV_DOMAIN" envDefault:"localhost" validate:"required,hostname_rfc1123"`

	// HostAlias is how the proxy container reaches the host.
	HostAlias string `env:"PARITY_HOST_ALIAS" envDefault:"host.docker.internal" validate:"required,hostname_rfc1123"`

	// Home is the user-level state directory. Empty means ~/.parity.
	Home string `env:"PARITY_HOME"`

	LogLevel string `env:"PARITY_LOG_LEVEL" envDefault:"info"`

	// DBPort is the host port of the deployment database, used for migrations.
	DBPort int `env:"PARITY_DB_PORT" envDefault:"5432" validate:"min=1,max=65535"`

	// EngineAPI lists containers through the Docker Engine API instead of
	// the compose CLI. Docker only.
	EngineAPI bool `env:"PARITY_ENGINE_API"`

	// MetricsFile receives bring-up metrics in Prometheus text format.
	MetricsFile string `env:"PARITY_METRICS_FILE"`

	// TraceFile receives phase spans as JSON lines.
	TraceFile string `env:"PARITY_TRACE_FILE"`
}

// LoadRuntime parses Runtime from the environment.
func LoadRuntime() (Runtime, error) {
	var rt Runtime
	if err := env.Parse(&rt); err != nil {
		return Runtime{}, fmt.Errorf("parse env: %w", err)
	}
	if err := rt.Validate(); err != nil {
		return Runtime{}, err
	}
	return rt, nil
}

// Validate checks Runtime after flags have been applied.
func (r Runtime) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid runtime settings: %v", describeValidation(err))
	}
	return nil
}
