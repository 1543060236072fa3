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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds per-invocation bring-up metrics on a private registry.
//
// parity is a short-lived CLI, so nothing is served. WriteFile dumps the
// registry in Prometheus text format for a node_exporter textfile
// collector to pick up.
type Metrics struct {
	registry *prometheus.Registry

	// bringups counts bring-up attempts.
	// Labels: mode (development, deployment), outcome (healthy, partial, failed, up_to_date, cancelled)
	bringups *prometheus.CounterVec

	// duration measures bring-up wall time.
	// Labels: mode
	duration *prometheus.HistogramVec

	// containers is the last observed container count per state.
	// Labels: state
	containers *prometheus.GaugeVec

	// secretsGenerated counts keys generated during bring-up.
	// Labels: environment
	secretsGenerated *prometheus.CounterVec
}

// NewMetrics creates Metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		bringups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parity",
			Subsystem: "bringup",
			Name:      "total",
			Help:      "Bring-up attempts by mode and outcome",
		}, []string{"mode", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "parity",
			Subsystem: "bringup",
			Name:      "duration_seconds",
			Help:      "Bring-up wall time in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
		containers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "parity",
			Name:      "containers",
			Help:      "Expected containers by observed state after the last bring-up",
		}, []string{"state"}),
		secretsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parity",
			Subsystem: "secrets",
			Name:      "generated_total",
			Help:      "Secret keys generated during bring-up",
		}, []string{"environment"}),
	}
}

// RecordBringUp records one finished bring-up.
func (m *Metrics) RecordBringUp(mode, outcome string, d time.Duration) {
	m.bringups.WithLabelValues(mode, outcome).Inc()
	m.duration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordContainers replaces the container-state gauge.
func (m *Metrics) RecordContainers(counts map[string]int) {
	m.containers.Reset()
	for state, n := range counts {
		m.containers.WithLabelValues(state).Set(float64(n))
	}
}

// RecordSecretsGenerated adds n generated keys for env.
func (m *Metrics) RecordSecretsGenerated(env string, n int) {
	m.secretsGenerated.WithLabelValues(env).Add(float64(n))
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteFile writes the registry to path atomically. An empty path is a no-op.
func (m *Metrics) WriteFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
