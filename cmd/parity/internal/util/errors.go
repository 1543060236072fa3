// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Cancellation
// =============================================================================

// ErrCancelled marks an operator decline. It is a clean outcome, not a
// failure, and maps to exit code 0.
var ErrCancelled = errors.New("cancelled by operator")

// =============================================================================
// Stack Error Taxonomy
// =============================================================================

// ErrorKind classifies orchestration failures.
type ErrorKind string

const (
	// KindPrerequisite covers a missing runtime, an uninitialized project,
	// a missing manifest, or invalid configuration. Nothing was mutated.
	KindPrerequisite ErrorKind = "prerequisite"

	// KindConflict is a competing environment or port holder that the
	// operator did not resolve.
	KindConflict ErrorKind = "conflict"

	// KindInconsistency is persisted state that contradicts itself, such as
	// an initialized database with no credentials on disk.
	KindInconsistency ErrorKind = "configuration-inconsistency"

	// KindGeneration is a failure producing secrets or routing. Always fatal.
	KindGeneration ErrorKind = "generation"

	// KindPartialStartup means some, not all, expected containers started.
	KindPartialStartup ErrorKind = "partial-startup"

	// KindTotalStartup means no expected container is running.
	KindTotalStartup ErrorKind = "total-startup"
)

// StackError is a classified failure carrying an operator-facing
// remediation.
//
// # Description
//
// Every fatal path in the orchestrator returns a *StackError so the CLI can
// print what happened and what to run next. Wrapped errors stay reachable
// through errors.Is/As.
//
// # Example
//
//	return util.NewStackError(util.KindPrerequisite,
//	    "container runtime not found",
//	    "Install Docker Desktop or set PARITY_RUNTIME=podman", err)
type StackError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Message is a one-line description of what went wrong.
	Message string

	// Remediation is the concrete next step for the operator.
	Remediation string

	// Err is the underlying cause, may be nil.
	Err error
}

// NewStackError builds a *StackError.
func NewStackError(kind ErrorKind, message, remediation string, err error) *StackError {
	return &StackError{
		Kind:        kind,
		Message:     message,
		Remediation: remediation,
		Err:         err,
	}
}

// Error returns "<message>: <cause>" without the remediation, which is
// rendered separately by the CLI.
func (e *StackError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *StackError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a *StackError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *StackError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// Remediation extracts the remediation text from err, or "".
func Remediation(err error) string {
	var se *StackError
	if errors.As(err, &se) {
		return se.Remediation
	}
	return ""
}

// =============================================================================
// Exit Codes
// =============================================================================

const (
	// ExitOK is success, including operator cancellation.
	ExitOK = 0

	// ExitPrerequisite is a prerequisite or validation error.
	ExitPrerequisite = 1

	// ExitFailure is any other failure.
	ExitFailure = 2
)

// ExitCode maps an error returned by a command to the process exit code.
//
//	nil, ErrCancelled      -> 0
//	KindPrerequisite       -> 1
//	PartialStartup         -> 0 (something is running; remediation printed)
//	everything else        -> 2
func ExitCode(err error) int {
	if err == nil || errors.Is(err, ErrCancelled) {
		return ExitOK
	}
	var se *StackError
	if errors.As(err, &se) {
		switch se.Kind {
		case KindPrerequisite:
			return ExitPrerequisite
		case KindPartialStartup:
			return ExitOK
		}
	}
	return ExitFailure
}

// =============================================================================
// Command Error Type
// =============================================================================

// CommandError wraps a subprocess failure with its stderr.
//
// # Example
//
//	err := NewCommandError("docker compose up", 1, "port is already allocated", cause)
//	fmt.Println(err) // "docker compose up (exit 1): port is already allocated"
type CommandError struct {
	// Command is the command line that was executed.
	Command string

	// ExitCode is the process exit code (-1 if unknown).
	ExitCode int

	// Stderr is the trimmed standard error output.
	Stderr string

	// Wrapped is the underlying error, may be nil.
	Wrapped error
}

// Error prefers stderr over the wrapped error in the message.
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// NewCommandError creates a CommandError. Stderr is trimmed.
func NewCommandError(cmd string, exitCode int, stderr string, wrapped error) *CommandError {
	return &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr),
		Wrapped:  wrapped,
	}
}

// ExtractStderr returns the stderr of the first CommandError in err's chain.
func ExtractStderr(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Stderr
	}
	return ""
}
