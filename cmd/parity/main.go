// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"os"

	"github.com/AleutianAI/parity/cmd/parity/internal/util"
	"github.com/AleutianAI/parity/pkg/ux"
)

// errUnhealthy is returned by status when an environment is not fully
// running. The table already explains it, so nothing more is printed.
var errUnhealthy = errors.New("environment is not healthy")

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the root command and maps its error to an exit code.
func run(args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, util.ErrCancelled) && !errors.Is(err, errUnhealthy) {
		report(ux.NewConsole(rootCmd.OutOrStdout(), rootCmd.ErrOrStderr(), ux.GetPersonality().Level), err)
	}
	if errors.Is(err, errUnhealthy) {
		return util.ExitFailure
	}
	return util.ExitCode(err)
}

// report prints err and its remediation. A partial startup is a warning,
// not an error: part of the environment is serving.
func report(c *ux.Console, err error) {
	if util.IsKind(err, util.KindPartialStartup) {
		c.Warning(err.Error())
	} else {
		c.Error(err.Error())
	}
	if r := util.Remediation(err); r != "" {
		c.Remediation(r)
	}
}
