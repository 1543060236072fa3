// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"github.com/AleutianAI/parity/cmd/parity/internal/inspect"
	"github.com/AleutianAI/parity/cmd/parity/internal/migrate"
	"github.com/AleutianAI/parity/cmd/parity/internal/plan"
)

// State is a bring-up state.
type State string

const (
	StateIdle              State = "idle"
	StateResolvingMode     State = "resolving-mode"
	StateCheckingConflicts State = "checking-conflicts"
	StateAlreadyUpToDate   State = "already-up-to-date"
	StateReconciling       State = "reconciling"
	StateStarting          State = "starting"
	StateHealthy           State = "healthy"
	StatePartiallyFailed   State = "partially-failed"
	StateFailed            State = "failed"

	// StateCancelled is reached when the operator declines a prompt.
	// Nothing has been mutated.
	StateCancelled State = "cancelled"
)

// transitions lists the legal successors of each state. Any state may move
// to Failed or Cancelled.
var transitions = map[State][]State{
	StateIdle:              {StateResolvingMode},
	StateResolvingMode:     {StateCheckingConflicts},
	StateCheckingConflicts: {StateAlreadyUpToDate, StateReconciling},
	StateReconciling:       {StateStarting},
	StateStarting:          {StateHealthy, StatePartiallyFailed},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to State) bool {
	if to == StateFailed || to == StateCancelled {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends a bring-up.
func (s State) Terminal() bool {
	switch s {
	case StateAlreadyUpToDate, StateHealthy, StatePartiallyFailed, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Outcome describes one bring-up.
type Outcome struct {
	// RunID correlates log lines and spans of one invocation.
	RunID string

	Environment    string
	Mode           plan.Mode
	ComposeProject string

	// State is the final state. Transitions lists every state visited,
	// starting with StateIdle.
	State       State
	Transitions []State

	// Status is the last container snapshot taken.
	Status inspect.ContainerStatus

	// SecretsGenerated counts keys written to .env during this run.
	SecretsGenerated int

	// RoutingChanged is true when the routing file was rewritten.
	RoutingChanged bool

	// CertificatesAvailable is false when development fell back to HTTP.
	CertificatesAvailable bool

	// Migration is set after a healthy deployment bring-up with a backend
	// platform.
	Migration *migrate.Outcome

	// Warnings collects non-fatal degradations.
	Warnings []string
}

func newOutcome(runID, env string) *Outcome {
	return &Outcome{
		RunID:       runID,
		Environment: env,
		State:       StateIdle,
		Transitions: []State{StateIdle},
	}
}

// moveTo records a transition. Illegal moves panic; they are programming
// errors and are converted to an error by the caller's recoverPanic.
func (o *Outcome) moveTo(next State) {
	if !CanTransition(o.State, next) {
		panic("orchestrator: illegal transition " + string(o.State) + " -> " + string(next))
	}
	o.State = next
	o.Transitions = append(o.Transitions, next)
}

func (o *Outcome) warn(msg string) {
	o.Warnings = append(o.Warnings, msg)
}
