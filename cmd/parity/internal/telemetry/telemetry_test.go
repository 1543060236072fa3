// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordAndWrite(t *testing.T) {
	m := NewMetrics()
	m.RecordBringUp("deployment", "healthy", 12*time.Second)
	m.RecordBringUp("deployment", "healthy", 3*time.Second)
	m.RecordContainers(map[string]int{"running-healthy": 4, "exited": 1})
	m.RecordSecretsGenerated("staging", 6)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bringups.WithLabelValues("deployment", "healthy")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.containers.WithLabelValues("running-healthy")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.secretsGenerated.WithLabelValues("staging")))

	path := filepath.Join(t.TempDir(), "metrics", "parity.prom")
	require.NoError(t, m.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `parity_bringup_total{mode="deployment",outcome="healthy"} 2`)
	assert.Contains(t, text, "parity_bringup_duration_seconds_count")
}

func TestMetrics_ContainersReset(t *testing.T) {
	m := NewMetrics()
	m.RecordContainers(map[string]int{"exited": 2})
	m.RecordContainers(map[string]int{"running-healthy": 1})

	assert.Equal(t, 1, testutil.CollectAndCount(m.containers))
}

func TestMetrics_WriteFileEmptyPath(t *testing.T) {
	assert.NoError(t, NewMetrics().WriteFile(""))
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_WritesSpans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	shutdown, err := InitTracing(context.Background(), TracingConfig{File: path, ServiceVersion: "test"})
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "parity.up.reconcile")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "parity.up.reconcile"))
}

//nolint:staticcheck // nil context is the case under test
func TestInitTracing_NilContext(t *testing.T) {
	_, err := InitTracing(nil, TracingConfig{})
	assert.ErrorIs(t, err, ErrNilContext)
}
