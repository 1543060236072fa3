// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the parity CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	ColorAccent  = lipgloss.Color("#20B9B4")
	ColorBright  = lipgloss.Color("#2CD7C7")
	ColorBorder  = lipgloss.Color("#16858E")
	ColorSlate   = lipgloss.Color("#5B7C87")
	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style

	TableHeader lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),

	TableHeader: lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with its semantic color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Console
// =============================================================================

// Console writes styled messages at a fixed personality level.
//
// Machine level prints stable "OK:", "WARN:", "ERROR:" prefixes without
// color, suitable for scripts and CI logs. Warnings and errors always go
// to the error writer at machine level.
type Console struct {
	out   io.Writer
	err   io.Writer
	level PersonalityLevel
	mu    sync.Mutex
}

// NewConsole creates a Console. Nil writers default to stdout and stderr.
func NewConsole(out, errOut io.Writer, level PersonalityLevel) *Console {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Console{out: out, err: errOut, level: level}
}

// Default returns a stdout/stderr Console at the global personality level.
func Default() *Console {
	return NewConsole(nil, nil, GetPersonality().Level)
}

// Level reports the console's personality level.
func (c *Console) Level() PersonalityLevel {
	return c.level
}

// Out returns the primary writer.
func (c *Console) Out() io.Writer {
	return c.out
}

func (c *Console) printf(w io.Writer, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(w, format, args...)
}

// Title prints a styled title. Silent at machine level.
func (c *Console) Title(text string) {
	if c.level == PersonalityMachine {
		return
	}
	c.printf(c.out, "%s\n", Styles.Title.Render(text))
}

// Success prints a success line.
func (c *Console) Success(text string) {
	switch c.level {
	case PersonalityMachine:
		c.printf(c.out, "OK: %s\n", text)
	case PersonalityMinimal:
		c.printf(c.out, "%s %s\n", IconSuccess.Render(), text)
	default:
		c.printf(c.out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning line.
func (c *Console) Warning(text string) {
	switch c.level {
	case PersonalityMachine:
		c.printf(c.err, "WARN: %s\n", text)
	case PersonalityMinimal:
		c.printf(c.out, "%s %s\n", IconWarning.Render(), text)
	default:
		c.printf(c.out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error line.
func (c *Console) Error(text string) {
	switch c.level {
	case PersonalityMachine:
		c.printf(c.err, "ERROR: %s\n", text)
	case PersonalityMinimal:
		c.printf(c.err, "%s %s\n", IconError.Render(), text)
	default:
		c.printf(c.err, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational line.
func (c *Console) Info(text string) {
	if c.level == PersonalityMachine {
		c.printf(c.out, "%s\n", text)
		return
	}
	c.printf(c.out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text. Silent at machine level.
func (c *Console) Muted(text string) {
	if c.level == PersonalityMachine {
		return
	}
	c.printf(c.out, "%s\n", Styles.Muted.Render(text))
}

// Remediation prints the commands an operator should run next.
func (c *Console) Remediation(text string) {
	if text == "" {
		return
	}
	if c.level == PersonalityMachine {
		c.printf(c.err, "REMEDIATION: %s\n", text)
		return
	}
	for _, line := range strings.Split(text, "\n") {
		c.printf(c.err, "  %s %s\n", IconArrow.Render(), line)
	}
}

// Box prints content in a rounded box under title.
func (c *Console) Box(title, content string) {
	if c.level == PersonalityMachine {
		c.printf(c.out, "%s: %s\n", title, content)
		return
	}
	c.printf(c.out, "%s\n", Styles.Box.Width(64).Render(Styles.Title.Render(title)+"\n"+content))
}

// WarningBox prints content in a warning-styled box.
func (c *Console) WarningBox(title, content string) {
	if c.level == PersonalityMachine {
		c.printf(c.err, "WARN %s: %s\n", title, content)
		return
	}
	c.printf(c.out, "%s\n", Styles.WarningBox.Width(64).Render(Styles.Warning.Bold(true).Render(title)+"\n"+content))
}
