// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package inspect answers read-only questions about the host and the
// container runtime: which parity environment is running, who holds the
// proxy ports, whether a competing local emulator is up, and what state
// each expected container is in.
//
// Host probes are advisory. When the underlying tool is missing or fails,
// they report "nothing found" and log at debug level instead of returning
// an error.
package inspect

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/parity/cmd/parity/config"
	"github.com/AleutianAI/parity/cmd/parity/internal/infra/compose"
	"github.com/AleutianAI/parity/cmd/parity/internal/infra/process"
	"github.com/AleutianAI/parity/pkg/logging"
)

// ProxyService is the compose service name of the reverse proxy.
const ProxyService = "proxy"

// ProxyPorts are the privileged ports the proxy binds.
var ProxyPorts = []int{80, 443}

// runtimeProcessPrefixes name processes that forward container ports on the
// host. A port held by one of these belongs to a container, not a rival.
// lsof truncates command names, so prefixes are matched.
var runtimeProcessPrefixes = []string{
	"docker",
	"com.docke",
	"vpnkit",
	"rootlessp",
	"gvproxy",
	"podman",
	"conmon",
	"orbstack",
	"slirp4netns",
	"pasta",
}

// PortConflict names a non-runtime process listening on a required port.
type PortConflict struct {
	Port    int
	PID     int
	Process string
}

func (c PortConflict) String() string {
	if c.Process == "" {
		return fmt.Sprintf("port %d is in use", c.Port)
	}
	return fmt.Sprintf("port %d is in use by %s (PID %d)", c.Port, c.Process, c.PID)
}

// Config holds Inspector dependencies.
type Config struct {
	Proc   process.Manager
	Lister compose.ContainerLister
	Store  config.StateStore
	Logger *logging.Logger

	// DialTimeout bounds each competing-service probe. Default: 300ms.
	DialTimeout time.Duration
}

// Inspector is the read-side view of host and runtime state.
type Inspector struct {
	proc        process.Manager
	lister      compose.ContainerLister
	store       config.StateStore
	log         *logging.Logger
	dialTimeout time.Duration
}

// New creates an Inspector.
func New(cfg Config) *Inspector {
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}
	return &Inspector{
		proc:        cfg.Proc,
		lister:      cfg.Lister,
		store:       cfg.Store,
		log:         log,
		dialTimeout: timeout,
	}
}

// =============================================================================
// Running Environment
// =============================================================================

// DetectRunningEnvironment returns the marker of the environment parity
// last started, but only if its proxy container is still running.
//
// # Description
//
// The marker file can outlive its containers (runtime reset, machine
// reboot, manual `docker rm`). A marker whose proxy is not running is
// treated as stale and ignored. Any failure reading the marker or querying
// the runtime also yields nil.
//
// # Outputs
//
//   - *config.RunningMarker: The live environment, or nil
func (i *Inspector) DetectRunningEnvironment(ctx context.Context) *config.RunningMarker {
	marker, err := i.store.LoadMarker()
	if err != nil {
		i.log.Debug("running marker unreadable", "error", err)
		return nil
	}
	if marker == nil {
		return nil
	}

	containers, err := i.lister.ListContainers(ctx, marker.ComposeProject)
	if err != nil {
		i.log.Debug("cannot confirm running environment", "compose_project", marker.ComposeProject, "error", err)
		return nil
	}
	for _, c := range containers {
		if c.Service == ProxyService && c.State.IsRunning() {
			return marker
		}
	}

	i.log.Debug("ignoring stale running marker", "environment", marker.Environment)
	return nil
}

// =============================================================================
// Port Conflicts
// =============================================================================

// CheckPortConflicts reports the first non-runtime process listening on
// any of ports, or nil.
//
// # Description
//
// Uses `lsof -nP -iTCP:<port> -sTCP:LISTEN -Fpc`. Processes that forward
// container ports (docker-proxy, gvproxy, rootlessport, ...) are skipped,
// since they are parity's own proxy or another container the runtime
// will report on its own.
//
// # Limitations
//
//   - Without lsof, or without permission to see root-owned sockets, this
//     returns nil.
func (i *Inspector) CheckPortConflicts(ctx context.Context, ports []int) *PortConflict {
	if _, err := i.proc.LookPath("lsof"); err != nil {
		i.log.Debug("lsof not available, skipping port conflict check")
		return nil
	}

	for _, port := range ports {
		out, err := i.proc.Run(ctx, "lsof", "-nP", fmt.Sprintf("-iTCP:%d", port), "-sTCP:LISTEN", "-Fpc")
		if err != nil {
			// lsof exits 1 when nothing matches.
			continue
		}
		for _, holder := range parseLsof(string(out)) {
			if isRuntimeProcess(holder.Process) {
				continue
			}
			holder.Port = port
			return &holder
		}
	}
	return nil
}

// parseLsof parses -F field output: "p<pid>" starts a process, "c<cmd>"
// names it.
func parseLsof(output string) []PortConflict {
	var holders []PortConflict
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 2 {
			continue
		}
		switch line[0] {
		case 'p':
			pid, err := strconv.Atoi(line[1:])
			if err != nil {
				continue
			}
			holders = append(holders, PortConflict{PID: pid})
		case 'c':
			if len(holders) > 0 {
				holders[len(holders)-1].Process = line[1:]
			}
		}
	}
	return holders
}

func isRuntimeProcess(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range runtimeProcessPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// =============================================================================
// Competing Local Services
// =============================================================================

// CheckCompetingLocalService reports whether anything accepts TCP
// connections on localhost at any of knownPorts. Used to detect a BaaS
// CLI's own emulator stack.
func (i *Inspector) CheckCompetingLocalService(ctx context.Context, knownPorts []int) bool {
	dialer := net.Dialer{Timeout: i.dialTimeout}
	for _, port := range knownPorts {
		if ctx.Err() != nil {
			return false
		}
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			continue
		}
		conn.Close()
		i.log.Debug("competing local service detected", "port", port)
		return true
	}
	return false
}
