// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routing

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/parity/cmd/parity/config"
	"github.com/AleutianAI/parity/cmd/parity/internal/platform"
)

var devOpts = DevOptions{Domain: "localhost", HostAlias: "host.docker.internal", TLS: true}

func TestGenerateDevelopment_SingleService(t *testing.T) {
	table := GenerateDevelopment([]config.Service{{Name: "app", Port: 3000}}, platform.Backend{}, devOpts)

	app, ok := table.Routers["app"]
	require.True(t, ok)
	assert.Equal(t, "Host(`app.localhost`)", app.Rule)
	assert.Equal(t, "app", app.Service)
	assert.True(t, app.TLS)
	assert.Equal(t, "http://host.docker.internal:3000", table.Backends["app"].URL)
}

func TestGenerateDevelopment_RouterCount(t *testing.T) {
	for n := 0; n <= 5; n++ {
		t.Run(fmt.Sprintf("%d services", n), func(t *testing.T) {
			var services []config.Service
			for i := 0; i < n; i++ {
				services = append(services, config.Service{Name: fmt.Sprintf("svc%d", i), Port: 3000 + i})
			}
			table := GenerateDevelopment(services, platform.Backend{Kind: platform.None}, devOpts)

			assert.Len(t, table.Routers, n+1, "N service routers plus the dashboard")
			assert.Len(t, table.Backends, n)
			assert.NotContains(t, table.Routers, SupabaseAPIRouter)
			assert.NotContains(t, table.Routers, SupabaseStudioRouter)
			assert.Equal(t, DashboardService, table.Routers[DashboardRouter].Service)
		})
	}
}

func TestGenerateDevelopment_Supabase(t *testing.T) {
	backend := platform.Backend{Kind: platform.Supabase, Ports: platform.Ports{API: 64321, DB: 64322, Studio: 64323}}
	table := GenerateDevelopment([]config.Service{{Name: "web", Port: 5173}}, backend, devOpts)

	assert.Len(t, table.Routers, 4)
	assert.Equal(t, "Host(`api.localhost`)", table.Routers[SupabaseAPIRouter].Rule)
	assert.Equal(t, "http://host.docker.internal:64321", table.Backends[SupabaseAPIRouter].URL)
	assert.Equal(t, "Host(`studio.localhost`)", table.Routers[SupabaseStudioRouter].Rule)
	assert.Equal(t, "http://host.docker.internal:64323", table.Backends[SupabaseStudioRouter].URL)
}

func TestGenerateDevelopment_HTTPOnly(t *testing.T) {
	opts := devOpts
	opts.TLS = false
	opts.Certificate = Certificate{CertFile: "/etc/traefik/certs/dev.pem", KeyFile: "/etc/traefik/certs/dev-key.pem"}
	table := GenerateDevelopment([]config.Service{{Name: "app", Port: 3000}}, platform.Backend{}, opts)

	assert.False(t, table.Routers["app"].TLS)
	assert.Empty(t, table.Certificates)
}

func TestGenerateDeployment(t *testing.T) {
	services := []config.Service{{Name: "app", Port: 3000}, {Name: "admin", Port: 4000}}

	t.Run("selfsigned", func(t *testing.T) {
		table, err := GenerateDeployment(services, config.DeploymentTarget{Name: "staging", AppDomain: "staging.example.com"})
		require.NoError(t, err)
		assert.Len(t, table.Routers, 2)
		app := table.Routers["app"]
		assert.Equal(t, "Host(`app.staging.example.com`)", app.Rule)
		assert.True(t, app.TLS)
		assert.Empty(t, app.CertResolver)
		assert.Equal(t, "http://admin:4000", table.Backends["admin"].URL)
	})

	t.Run("letsencrypt", func(t *testing.T) {
		table, err := GenerateDeployment(services, config.DeploymentTarget{
			Name: "production", AppDomain: "example.com", SSL: config.SSLLetsEncrypt,
		})
		require.NoError(t, err)
		for _, r := range table.Routers {
			assert.True(t, r.TLS)
			assert.Equal(t, LetsEncryptResolver, r.CertResolver)
		}
		assert.NotContains(t, table.Routers, SupabaseAPIRouter)
		assert.NotContains(t, table.Routers, DashboardRouter)
	})

	t.Run("empty services", func(t *testing.T) {
		table, err := GenerateDeployment(nil, config.DeploymentTarget{Name: "staging", AppDomain: "example.com"})
		require.NoError(t, err)
		assert.Empty(t, table.Routers)
	})

	t.Run("no domain", func(t *testing.T) {
		_, err := GenerateDeployment(services, config.DeploymentTarget{Name: "staging"})
		assert.True(t, errors.Is(err, ErrNoDomain))
	})
}

func TestRouterNamesSorted(t *testing.T) {
	table := GenerateDevelopment([]config.Service{{Name: "zeta", Port: 1}, {Name: "alpha", Port: 2}}, platform.Backend{}, devOpts)
	assert.Equal(t, []string{"alpha", DashboardRouter, "zeta"}, table.RouterNames())
}

func TestFixedRoutersUseReservedNames(t *testing.T) {
	backend := platform.Backend{Kind: platform.Supabase, Ports: platform.Ports{API: 54321, DB: 54322, Studio: 54323}}
	table := GenerateDevelopment(nil, backend, devOpts)

	require.Len(t, table.Routers, 3)
	for name, r := range table.Routers {
		host := strings.TrimSuffix(strings.TrimPrefix(r.Rule, "Host(`"), "`)")
		label := strings.SplitN(host, ".", 2)[0]
		assert.True(t, config.IsReservedServiceName(name), "router %s", name)
		assert.True(t, config.IsReservedServiceName(label), "host %s", host)
	}
}
