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
Package routing builds the reverse proxy's routing table and writes it as a
Traefik dynamic configuration file.

The table is always derived, never edited: every bring-up regenerates it
from the descriptor's services, the detected backend platform, and in
deployment mode the target's domains. Traefik watches the file and reloads
on change, so writing it is the whole integration.

# Development

Services run on the host. Each service gets a router
Host(`<service>.<devDomain>`) forwarding to http://<hostAlias>:<port>.
A detected Supabase stack adds supabase-api and supabase-studio routers,
and the Traefik dashboard is exposed at traefik.<devDomain>.

# Deployment

Services run in containers on the compose network. Routers match
Host(`<service>.<appDomain>`) and forward to http://<service>:<port>.
Supabase containers carry their own router labels, so no platform routers
are emitted here.
*/
package routing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/AleutianAI/parity/cmd/parity/config"
	"github.com/AleutianAI/parity/cmd/parity/internal/platform"
)

// Entry points defined in the base proxy overlay.
const (
	EntryPointWeb       = "web"
	EntryPointWebSecure = "websecure"
)

// Fixed router names.
const (
	DashboardRouter      = "dashboard"
	SupabaseAPIRouter    = "supabase-api"
	SupabaseStudioRouter = "supabase-studio"

	// DashboardService is Traefik's built-in API handler.
	DashboardService = "api@internal"

	// LetsEncryptResolver matches the resolver name in the deployment overlay.
	LetsEncryptResolver = "letsencrypt"
)

// ErrNoDomain is returned when a deployment target has no app domain.
var ErrNoDomain = errors.New("deployment target has no app domain")

// Router maps a host rule to a backend service.
type Router struct {
	Name         string
	Rule         string
	Service      string
	TLS          bool
	CertResolver string
}

// Backend is a load-balanced target.
type Backend struct {
	Name string
	URL  string
}

// Table is a complete routing table.
type Table struct {
	Routers  map[string]Router
	Backends map[string]Backend

	// Certificates are static TLS pairs served by the proxy. Development only.
	Certificates []Certificate
}

// Certificate is a cert/key pair as paths inside the proxy container.
type Certificate struct {
	CertFile string
	KeyFile  string
}

func newTable() *Table {
	return &Table{Routers: make(map[string]Router), Backends: make(map[string]Backend)}
}

func (t *Table) add(r Router, b *Backend) {
	t.Routers[r.Name] = r
	if b != nil {
		t.Backends[b.Name] = *b
	}
}

// RouterNames returns router names sorted.
func (t *Table) RouterNames() []string {
	names := make([]string, 0, len(t.Routers))
	for n := range t.Routers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HostRule renders a Traefik Host matcher.
func HostRule(host string) string {
	return fmt.Sprintf("Host(`%s`)", host)
}

// DevOptions parameterizes development routing.
type DevOptions struct {
	// Domain is the development base domain, e.g. "localhost".
	Domain string

	// HostAlias is how the proxy container reaches the host.
	HostAlias string

	// TLS is false when no development certificate is available.
	TLS bool

	// Certificate is served when TLS is true.
	Certificate Certificate
}

// GenerateDevelopment builds the development routing table.
//
// # Description
//
// Produces one router per service, the dashboard router, and for
// platform.Supabase the two platform routers. An empty service list is
// valid.
//
// # Inputs
//
//   - services: Declared services, in any order
//   - backend: Result of platform.Detect
//   - opts: Domain, host alias, and TLS material
//
// # Example
//
//	t := routing.GenerateDevelopment(
//	    []config.Service{{Name: "app", Port: 3000}},
//	    platform.Backend{},
//	    routing.DevOptions{Domain: "localhost", HostAlias: "host.docker.internal", TLS: true},
//	)
//	t.Routers["app"].Rule // Host(`app.localhost`)
func GenerateDevelopment(services []config.Service, backend platform.Backend, opts DevOptions) *Table {
	t := newTable()
	hostTarget := func(port int) string {
		return fmt.Sprintf("http://%s:%d", opts.HostAlias, port)
	}

	for _, svc := range services {
		t.add(
			Router{Name: svc.Name, Rule: HostRule(svc.Name + "." + opts.Domain), Service: svc.Name, TLS: opts.TLS},
			&Backend{Name: svc.Name, URL: hostTarget(svc.Port)},
		)
	}

	switch backend.Kind {
	case platform.Supabase:
		t.add(
			Router{Name: SupabaseAPIRouter, Rule: HostRule("api." + opts.Domain), Service: SupabaseAPIRouter, TLS: opts.TLS},
			&Backend{Name: SupabaseAPIRouter, URL: hostTarget(backend.Ports.API)},
		)
		t.add(
			Router{Name: SupabaseStudioRouter, Rule: HostRule("studio." + opts.Domain), Service: SupabaseStudioRouter, TLS: opts.TLS},
			&Backend{Name: SupabaseStudioRouter, URL: hostTarget(backend.Ports.Studio)},
		)
	case platform.None:
	}

	t.add(Router{Name: DashboardRouter, Rule: HostRule("traefik." + opts.Domain), Service: DashboardService, TLS: opts.TLS}, nil)

	if opts.TLS && opts.Certificate.CertFile != "" {
		t.Certificates = []Certificate{opts.Certificate}
	}
	return t
}

// GenerateDeployment builds the routing table for a deployment target.
// TLS is always on; letsencrypt targets name the ACME resolver.
func GenerateDeployment(services []config.Service, target config.DeploymentTarget) (*Table, error) {
	if target.AppDomain == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoDomain, target.Name)
	}
	resolver := ""
	if target.Policy() == config.SSLLetsEncrypt {
		resolver = LetsEncryptResolver
	}

	t := newTable()
	for _, svc := range services {
		t.add(
			Router{
				Name:         svc.Name,
				Rule:         HostRule(svc.Name + "." + target.AppDomain),
				Service:      svc.Name,
				TLS:          true,
				CertResolver: resolver,
			},
			&Backend{Name: svc.Name, URL: fmt.Sprintf("http://%s:%d", svc.Name, svc.Port)},
		)
	}
	return t, nil
}
