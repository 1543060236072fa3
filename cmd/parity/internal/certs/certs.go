// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package certs wraps mkcert to produce the development TLS certificate.
//
// Certificates are a convenience. Every failure degrades to HTTP-only
// development with a warning; nothing here returns an error.
package certs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/AleutianAI/parity/cmd/parity/internal/infra/process"
	"github.com/AleutianAI/parity/cmd/parity/internal/routing"
	"github.com/AleutianAI/parity/pkg/logging"
)

// Certificate locations. The host directory is mounted into the proxy at
// ProxyDir by the base overlay.
const (
	HostDir  = ".parity/proxy/certs"
	ProxyDir = "/etc/traefik/certs"
	CertName = "dev.pem"
	KeyName  = "dev-key.pem"
)

// Status is the outcome of Ensure.
type Status struct {
	// Available is false when development must run HTTP-only.
	Available bool

	// Generated is true when mkcert ran during this call.
	Generated bool

	// Reason explains why Available is false.
	Reason string
}

// Certificate returns the proxy-side paths of the pair.
func (s Status) Certificate() routing.Certificate {
	if !s.Available {
		return routing.Certificate{}
	}
	return routing.Certificate{
		CertFile: ProxyDir + "/" + CertName,
		KeyFile:  ProxyDir + "/" + KeyName,
	}
}

// Provisioner ensures a development certificate exists.
type Provisioner interface {
	Ensure(ctx context.Context, projectDir, domain string) Status
}

// Mkcert provisions certificates with the mkcert CLI.
type Mkcert struct {
	proc process.Manager
	log  *logging.Logger
}

// NewMkcert creates a Mkcert provisioner.
func NewMkcert(proc process.Manager, log *logging.Logger) *Mkcert {
	if log == nil {
		log = logging.Nop()
	}
	return &Mkcert{proc: proc, log: log}
}

// Ensure reuses an existing pair or asks mkcert for one covering domain
// and *.domain.
func (m *Mkcert) Ensure(ctx context.Context, projectDir, domain string) Status {
	dir := filepath.Join(projectDir, HostDir)
	certPath := filepath.Join(dir, CertName)
	keyPath := filepath.Join(dir, KeyName)

	if fileExists(certPath) && fileExists(keyPath) {
		return Status{Available: true}
	}

	if _, err := m.proc.LookPath("mkcert"); err != nil {
		return m.degrade("mkcert is not installed; install it and run `mkcert -install` for HTTPS in development")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return m.degrade("cannot create " + dir + ": " + err.Error())
	}

	_, stderr, code, err := m.proc.RunInDir(ctx, projectDir, nil, "mkcert",
		"-cert-file", certPath, "-key-file", keyPath, domain, "*."+domain)
	if err != nil {
		return m.degrade("mkcert failed: " + err.Error())
	}
	if code != 0 {
		return m.degrade("mkcert failed: " + stderr)
	}
	if !fileExists(certPath) || !fileExists(keyPath) {
		return m.degrade("mkcert did not produce " + certPath)
	}

	m.log.Info("generated development certificate", "domain", domain, "dir", dir)
	return Status{Available: true, Generated: true}
}

func (m *Mkcert) degrade(reason string) Status {
	m.log.Warn("development TLS unavailable, routing over HTTP only", "reason", reason)
	return Status{Reason: reason}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

var _ Provisioner = (*Mkcert)(nil)
