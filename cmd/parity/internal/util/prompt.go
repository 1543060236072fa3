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
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrNonInteractive is returned by Input/Select when no terminal is attached.
var ErrNonInteractive = errors.New("interactive input required but no terminal is attached")

// UserPrompter asks the operator questions.
//
// # Description
//
// All orchestration paths that need consent (stopping a competing
// environment, configuring a missing target) go through this interface so
// tests can script the answers and CI runs can decline by default.
//
// # Contract
//
//   - Confirm returns (false, nil) on an explicit "no".
//   - Every method returns ErrCancelled when the operator aborts (Ctrl-C).
//   - Input and Select return ErrNonInteractive when they cannot ask.
type UserPrompter interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
	Input(ctx context.Context, prompt, placeholder string, validate func(string) error) (string, error)
	Select(ctx context.Context, prompt string, options []string) (string, error)
}

// =============================================================================
// Terminal Prompter (huh)
// =============================================================================

// TerminalPrompter renders prompts with huh forms.
type TerminalPrompter struct{}

// NewTerminalPrompter returns a huh-backed prompter.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{}
}

// Confirm shows a yes/no question.
func (p *TerminalPrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	var ok bool
	field := huh.NewConfirm().
		Title(prompt).
		Affirmative("Yes").
		Negative("No").
		Value(&ok)
	if err := huh.NewForm(huh.NewGroup(field)).RunWithContext(ctx); err != nil {
		return false, formError("confirm", err)
	}
	return ok, nil
}

// Input asks for a single line of text.
func (p *TerminalPrompter) Input(ctx context.Context, prompt, placeholder string, validate func(string) error) (string, error) {
	var value string
	field := huh.NewInput().
		Title(prompt).
		Placeholder(placeholder).
		Value(&value)
	if validate != nil {
		field = field.Validate(validate)
	}
	if err := huh.NewForm(huh.NewGroup(field)).RunWithContext(ctx); err != nil {
		return "", formError("input", err)
	}
	return value, nil
}

// Select asks the operator to pick one option.
func (p *TerminalPrompter) Select(ctx context.Context, prompt string, options []string) (string, error) {
	var value string
	field := huh.NewSelect[string]().
		Title(prompt).
		Options(huh.NewOptions(options...)...).
		Value(&value)
	if err := huh.NewForm(huh.NewGroup(field)).RunWithContext(ctx); err != nil {
		return "", formError("select", err)
	}
	return value, nil
}

// formError maps a failed huh form to ErrCancelled when the operator
// aborted it (Ctrl-C) or the command was interrupted.
func formError(kind string, err error) error {
	if errors.Is(err, huh.ErrUserAborted) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s prompt: %w", kind, ErrCancelled)
	}
	return fmt.Errorf("%s prompt: %w", kind, err)
}

// =============================================================================
// Non-interactive Prompters
// =============================================================================

// StaticPrompter answers every Confirm with Answer and refuses free-form input.
//
// With Answer=false it is the safe default for CI. With Answer=true it
// implements --yes: the flag is the operator's consent to stop parity's own
// environments, but not to kill foreign processes (see AssumesConsent).
type StaticPrompter struct {
	Answer bool
}

// Confirm returns the fixed answer.
func (p StaticPrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	return p.Answer, nil
}

// Input always fails with ErrNonInteractive.
func (p StaticPrompter) Input(ctx context.Context, prompt, placeholder string, validate func(string) error) (string, error) {
	return "", ErrNonInteractive
}

// Select always fails with ErrNonInteractive.
func (p StaticPrompter) Select(ctx context.Context, prompt string, options []string) (string, error) {
	return "", ErrNonInteractive
}

// AssumesConsent reports whether p answers yes without asking anyone.
// Callers about to do something outside parity's own stacks, such as
// killing a foreign process, refuse when it does.
func AssumesConsent(p UserPrompter) bool {
	s, ok := p.(StaticPrompter)
	return ok && s.Answer
}

// NewPrompter picks the prompter for the current process: --yes wins, then
// a TTY gets huh forms, and anything else declines.
func NewPrompter(assumeYes bool) UserPrompter {
	if assumeYes {
		return StaticPrompter{Answer: true}
	}
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return NewTerminalPrompter()
	}
	return StaticPrompter{Answer: false}
}

// =============================================================================
// Scripted Prompter for Testing
// =============================================================================

// ScriptedPrompter replays queued answers and records every question.
//
// # Example
//
//	p := &ScriptedPrompter{Confirms: []bool{false}}
//	ok, _ := p.Confirm(ctx, "Stop staging?") // false
//	p.Asked // ["Stop staging?"]
type ScriptedPrompter struct {
	Confirms []bool
	Inputs   []string
	Selects  []string

	// Asked records prompts in order.
	Asked []string

	mu sync.Mutex
}

// Confirm pops the next queued answer; an empty queue answers false.
func (p *ScriptedPrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Asked = append(p.Asked, prompt)
	if len(p.Confirms) == 0 {
		return false, nil
	}
	answer := p.Confirms[0]
	p.Confirms = p.Confirms[1:]
	return answer, nil
}

// Input pops the next queued input and runs validate on it.
func (p *ScriptedPrompter) Input(ctx context.Context, prompt, placeholder string, validate func(string) error) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Asked = append(p.Asked, prompt)
	if len(p.Inputs) == 0 {
		return "", ErrNonInteractive
	}
	answer := p.Inputs[0]
	p.Inputs = p.Inputs[1:]
	if validate != nil {
		if err := validate(answer); err != nil {
			return "", err
		}
	}
	return answer, nil
}

// Select pops the next queued selection.
func (p *ScriptedPrompter) Select(ctx context.Context, prompt string, options []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Asked = append(p.Asked, prompt)
	if len(p.Selects) == 0 {
		return "", ErrNonInteractive
	}
	answer := p.Selects[0]
	p.Selects = p.Selects[1:]
	return answer, nil
}

var (
	_ UserPrompter = (*TerminalPrompter)(nil)
	_ UserPrompter = StaticPrompter{}
	_ UserPrompter = (*ScriptedPrompter)(nil)
)
