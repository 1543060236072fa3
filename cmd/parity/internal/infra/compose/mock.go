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
	"sync"
)

// MockExecutor is a test double for Executor.
//
// Unset funcs succeed with an empty Result. Every call is recorded.
//
// # Example
//
//	mock := &MockExecutor{
//	    UpFunc: func(ctx context.Context, p Project, opts UpOptions) (*Result, error) {
//	        return &Result{Success: true}, nil
//	    },
//	}
//	mock.Up(ctx, project, UpOptions{})
//	len(mock.UpCalls) // 1
type MockExecutor struct {
	UpFunc      func(ctx context.Context, p Project, opts UpOptions) (*Result, error)
	DownFunc    func(ctx context.Context, p Project, opts DownOptions) (*Result, error)
	VersionFunc func(ctx context.Context) (string, error)
	RuntimeName Runtime

	UpCalls   []MockUpCall
	DownCalls []MockDownCall

	mu sync.Mutex
}

// MockUpCall records one Up invocation.
type MockUpCall struct {
	Project Project
	Opts    UpOptions
}

// MockDownCall records one Down invocation.
type MockDownCall struct {
	Project Project
	Opts    DownOptions
}

func (m *MockExecutor) Up(ctx context.Context, p Project, opts UpOptions) (*Result, error) {
	m.mu.Lock()
	m.UpCalls = append(m.UpCalls, MockUpCall{Project: p, Opts: opts})
	m.mu.Unlock()
	if m.UpFunc != nil {
		return m.UpFunc(ctx, p, opts)
	}
	return &Result{Success: true}, nil
}

func (m *MockExecutor) Down(ctx context.Context, p Project, opts DownOptions) (*Result, error) {
	m.mu.Lock()
	m.DownCalls = append(m.DownCalls, MockDownCall{Project: p, Opts: opts})
	m.mu.Unlock()
	if m.DownFunc != nil {
		return m.DownFunc(ctx, p, opts)
	}
	return &Result{Success: true}, nil
}

func (m *MockExecutor) Version(ctx context.Context) (string, error) {
	if m.VersionFunc != nil {
		return m.VersionFunc(ctx)
	}
	return "2.24.5", nil
}

func (m *MockExecutor) Runtime() Runtime {
	if m.RuntimeName == "" {
		return RuntimeDocker
	}
	return m.RuntimeName
}

var _ Executor = (*MockExecutor)(nil)
