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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/parity/cmd/parity/config"
	"github.com/AleutianAI/parity/cmd/parity/internal/platform"
)

func TestRender_Development(t *testing.T) {
	opts := devOpts
	opts.Certificate = Certificate{CertFile: "/etc/traefik/certs/dev.pem", KeyFile: "/etc/traefik/certs/dev-key.pem"}
	table := GenerateDevelopment([]config.Service{{Name: "app", Port: 3000}}, platform.Backend{}, opts)

	data, err := Render(table)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Generated by parity"))

	var cfg dynamicConfig
	require.NoError(t, yaml.Unmarshal(data, &cfg))

	app := cfg.HTTP.Routers["app"]
	assert.Equal(t, "Host(`app.localhost`)", app.Rule)
	assert.Equal(t, []string{EntryPointWebSecure}, app.EntryPoints)
	require.NotNil(t, app.TLS)
	assert.Equal(t, "http://host.docker.internal:3000", cfg.HTTP.Services["app"].LoadBalancer.Servers[0].URL)
	assert.NotContains(t, cfg.HTTP.Services, DashboardRouter)

	require.NotNil(t, cfg.TLS)
	assert.Equal(t, "/etc/traefik/certs/dev.pem", cfg.TLS.Certificates[0].CertFile)
}

func TestRender_HTTPOnlyUsesWebEntryPoint(t *testing.T) {
	opts := devOpts
	opts.TLS = false
	table := GenerateDevelopment([]config.Service{{Name: "app", Port: 3000}}, platform.Backend{}, opts)

	data, err := Render(table)
	require.NoError(t, err)

	var cfg dynamicConfig
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, []string{EntryPointWeb}, cfg.HTTP.Routers["app"].EntryPoints)
	assert.Nil(t, cfg.HTTP.Routers["app"].TLS)
	assert.Nil(t, cfg.TLS)
}

func TestRender_Deterministic(t *testing.T) {
	services := []config.Service{{Name: "b", Port: 2}, {Name: "a", Port: 1}, {Name: "c", Port: 3}}
	first, err := Render(GenerateDevelopment(services, platform.Backend{}, devOpts))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Render(GenerateDevelopment(services, platform.Backend{}, devOpts))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestWrite_OnlyWhenChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".parity", "proxy", "dynamic.yml")
	table := GenerateDevelopment([]config.Service{{Name: "app", Port: 3000}}, platform.Backend{}, devOpts)

	changed, err := Write(path, table)
	require.NoError(t, err)
	assert.True(t, changed)

	info, err := os.Stat(path)
	require.NoError(t, err)
	mtime := info.ModTime()

	changed, err = Write(path, table)
	require.NoError(t, err)
	assert.False(t, changed, "identical table must not rewrite the file")
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, mtime, info.ModTime())

	table.Backends["app"] = Backend{Name: "app", URL: "http://host.docker.internal:3001"}
	changed, err = Write(path, table)
	require.NoError(t, err)
	assert.True(t, changed)
}
