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
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStackError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("exec: \"docker\": executable file not found")
	err := NewStackError(KindPrerequisite, "container runtime not found", "Install Docker", cause)

	assert.Equal(t, "container runtime not found: "+cause.Error(), err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsKind(err, KindPrerequisite))
	assert.False(t, IsKind(err, KindConflict))
	assert.Equal(t, "Install Docker", Remediation(fmt.Errorf("wrapped: %w", err)))
}

func TestStackError_NoCause(t *testing.T) {
	err := NewStackError(KindTotalStartup, "no containers running", "", nil)
	assert.Equal(t, "no containers running", err.Error())
	assert.Nil(t, errors.Unwrap(err))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"cancelled", ErrCancelled, ExitOK},
		{"wrapped cancelled", fmt.Errorf("up: %w", ErrCancelled), ExitOK},
		{"prerequisite", NewStackError(KindPrerequisite, "x", "", nil), ExitPrerequisite},
		{"partial", NewStackError(KindPartialStartup, "x", "", nil), ExitOK},
		{"total", NewStackError(KindTotalStartup, "x", "", nil), ExitFailure},
		{"inconsistency", NewStackError(KindInconsistency, "x", "", nil), ExitFailure},
		{"plain", errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestCommandError(t *testing.T) {
	cause := errors.New("exit status 1")

	withStderr := NewCommandError("docker compose up", 1, "  port is already allocated\n", cause)
	assert.Equal(t, "docker compose up (exit 1): port is already allocated", withStderr.Error())
	assert.ErrorIs(t, withStderr, cause)
	assert.Equal(t, "port is already allocated", ExtractStderr(fmt.Errorf("ctx: %w", withStderr)))

	noStderr := NewCommandError("lsof", 2, "", cause)
	assert.Equal(t, "lsof (exit 2): exit status 1", noStderr.Error())

	bare := NewCommandError("true", 0, "", nil)
	assert.Equal(t, "true (exit 0)", bare.Error())
	assert.Empty(t, ExtractStderr(errors.New("plain")))
}

func TestScriptedPrompter(t *testing.T) {
	ctx := context.Background()
	p := &ScriptedPrompter{
		Confirms: []bool{true},
		Inputs:   []string{"bad", "example.com"},
		Selects:  []string{"letsencrypt"},
	}

	ok, err := p.Confirm(ctx, "first?")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Confirm(ctx, "second?")
	require.NoError(t, err)
	assert.False(t, ok, "empty queue answers no")

	_, err = p.Input(ctx, "domain", "", func(s string) error {
		if s == "bad" {
			return errors.New("invalid")
		}
		return nil
	})
	assert.Error(t, err)

	v, err := p.Input(ctx, "domain", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "example.com", v)

	sel, err := p.Select(ctx, "ssl", []string{"selfsigned", "letsencrypt"})
	require.NoError(t, err)
	assert.Equal(t, "letsencrypt", sel)

	_, err = p.Select(ctx, "again", nil)
	assert.ErrorIs(t, err, ErrNonInteractive)

	assert.Equal(t, []string{"first?", "second?", "domain", "domain", "ssl", "again"}, p.Asked)
}

func TestStaticPrompter(t *testing.T) {
	ctx := context.Background()
	yes := StaticPrompter{Answer: true}
	ok, err := yes.Confirm(ctx, "stop?")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = yes.Input(ctx, "domain", "", nil)
	assert.ErrorIs(t, err, ErrNonInteractive)

	assert.IsType(t, StaticPrompter{}, NewPrompter(true))
}

func TestFormError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		cancelled bool
	}{
		{"ctrl-c", huh.ErrUserAborted, true},
		{"wrapped ctrl-c", fmt.Errorf("run: %w", huh.ErrUserAborted), true},
		{"interrupted", context.Canceled, true},
		{"timeout", huh.ErrTimeout, false},
		{"other", errors.New("tty closed"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := formError("confirm", tt.err)
			assert.Contains(t, err.Error(), "confirm prompt")
			assert.Equal(t, tt.cancelled, errors.Is(err, ErrCancelled))
			if tt.cancelled {
				assert.Equal(t, ExitOK, ExitCode(err), "an aborted prompt is a clean cancel")
			} else {
				assert.ErrorIs(t, err, tt.err)
				assert.NotEqual(t, ExitOK, ExitCode(err))
			}
		})
	}
}

func TestAssumesConsent(t *testing.T) {
	assert.True(t, AssumesConsent(StaticPrompter{Answer: true}))
	assert.True(t, AssumesConsent(NewPrompter(true)))
	assert.False(t, AssumesConsent(StaticPrompter{Answer: false}))
	assert.False(t, AssumesConsent(&ScriptedPrompter{Confirms: []bool{true}}))
	assert.False(t, AssumesConsent(NewTerminalPrompter()))
}
