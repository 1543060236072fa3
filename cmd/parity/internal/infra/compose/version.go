// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrRuntimeTooOld is returned when the compose tool predates MinimumVersion.
var ErrRuntimeTooOld = errors.New("container runtime compose version too old")

var versionPattern = regexp.MustCompile(`v?(\d+\.\d+\.\d+)`)

// MinimumVersion returns the oldest supported compose version for r.
func MinimumVersion(r Runtime) string {
	if r == RuntimePodman {
		return "1.0.0"
	}
	return "2.0.0"
}

// Version asks the compose tool for its version.
//
// docker prints "2.24.5" (or "v2.24.5") for `docker compose version --short`.
// podman-compose prints several lines; the one naming podman-compose wins.
func (e *DefaultExecutor) Version(ctx context.Context) (string, error) {
	name, lead := e.config.Runtime.Binary()
	args := append(append([]string{}, lead...), "version")
	if e.config.Runtime == RuntimeDocker {
		args = append(args, "--short")
	}

	out, err := e.proc.Run(ctx, name, args...)
	if err != nil {
		return "", fmt.Errorf("%s version: %w", name, err)
	}
	return parseVersion(string(out), e.config.Runtime)
}

func parseVersion(output string, r Runtime) (string, error) {
	lines := strings.Split(output, "\n")
	if r == RuntimePodman {
		for _, line := range lines {
			if strings.Contains(line, "podman-compose") {
				if m := versionPattern.FindStringSubmatch(line); m != nil {
					return m[1], nil
				}
			}
		}
	}
	if m := versionPattern.FindStringSubmatch(output); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("could not find a version in %q", strings.TrimSpace(output))
}

// CheckVersion returns ErrRuntimeTooOld when version is below the minimum.
func CheckVersion(r Runtime, version string) error {
	min := MinimumVersion(r)
	v := "v" + strings.TrimPrefix(version, "v")
	if !semver.IsValid(v) {
		return fmt.Errorf("unparseable compose version %q", version)
	}
	if semver.Compare(v, "v"+min) < 0 {
		return fmt.Errorf("%w: found %s, need %s or newer", ErrRuntimeTooOld, version, min)
	}
	return nil
}
