// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the engine's Prometheus metrics.
type Metrics struct {
	ExecutionsTotal  *prometheus.CounterVec
	SnapshotScripts  prometheus.Gauge
	SnapshotReloads  prometheus.Counter
	RefreshFailures  prometheus.Counter
	ExecutionSeconds prometheus.Histogram
}

// NewMetrics creates and registers engine metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelscript_executions_total",
				Help: "Total script executions by outcome",
			},
			[]string{"status"},
		),
		SnapshotScripts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "modelscript_snapshot_scripts",
				Help: "Number of scripts in the current snapshot",
			},
		),
		SnapshotReloads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "modelscript_snapshot_reloads_total",
				Help: "Total snapshot replacements from provider change events",
			},
		),
		RefreshFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "modelscript_refresh_failures_total",
				Help: "Total failed provider refresh attempts",
			},
		),
		ExecutionSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "modelscript_execution_seconds",
				Help:    "Script execution wall time",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.SnapshotScripts,
		m.SnapshotReloads,
		m.RefreshFailures,
		m.ExecutionSeconds,
	)

	return m
}
