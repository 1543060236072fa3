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
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/parity/cmd/parity/config"
)

// DynamicFile is the project-relative path of the generated routing file.
const DynamicFile = ".parity/proxy/dynamic.yml"

const generatedHeader = "# Generated by parity. Changes are overwritten on every bring-up.\n"

// Traefik file-provider schema, restricted to what Table can express.
type dynamicConfig struct {
	HTTP httpConfig `yaml:"http"`
	TLS  *tlsConfig `yaml:"tls,omitempty"`
}

type httpConfig struct {
	Routers  map[string]routerConfig  `yaml:"routers"`
	Services map[string]serviceConfig `yaml:"services,omitempty"`
}

type routerConfig struct {
	Rule        string     `yaml:"rule"`
	Service     string     `yaml:"service"`
	EntryPoints []string   `yaml:"entryPoints"`
	TLS         *routerTLS `yaml:"tls,omitempty"`
}

type routerTLS struct {
	CertResolver string `yaml:"certResolver,omitempty"`
}

type serviceConfig struct {
	LoadBalancer loadBalancer `yaml:"loadBalancer"`
}

type loadBalancer struct {
	Servers []server `yaml:"servers"`
}

type server struct {
	URL string `yaml:"url"`
}

type tlsConfig struct {
	Certificates []certConfig `yaml:"certificates"`
}

type certConfig struct {
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// Render serializes t as a Traefik dynamic configuration. Output is
// deterministic: yaml.v3 sorts map keys.
func Render(t *Table) ([]byte, error) {
	cfg := dynamicConfig{
		HTTP: httpConfig{
			Routers:  make(map[string]routerConfig, len(t.Routers)),
			Services: make(map[string]serviceConfig, len(t.Backends)),
		},
	}
	for name, r := range t.Routers {
		rc := routerConfig{Rule: r.Rule, Service: r.Service, EntryPoints: []string{EntryPointWeb}}
		if r.TLS {
			rc.EntryPoints = []string{EntryPointWebSecure}
			rc.TLS = &routerTLS{CertResolver: r.CertResolver}
		}
		cfg.HTTP.Routers[name] = rc
	}
	for name, b := range t.Backends {
		cfg.HTTP.Services[name] = serviceConfig{LoadBalancer: loadBalancer{Servers: []server{{URL: b.URL}}}}
	}
	if len(t.Certificates) > 0 {
		cfg.TLS = &tlsConfig{}
		for _, c := range t.Certificates {
			cfg.TLS.Certificates = append(cfg.TLS.Certificates, certConfig(c))
		}
	}

	var buf bytes.Buffer
	buf.WriteString(generatedHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode routing table: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode routing table: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders t to path, replacing the file wholesale. When the content
// is already identical the file is left untouched and changed is false.
func Write(path string, t *Table) (changed bool, err error) {
	data, err := Render(t)
	if err != nil {
		return false, err
	}
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := config.WriteFileAtomic(path, data, 0o644); err != nil {
		return false, err
	}
	return true, nil
}
