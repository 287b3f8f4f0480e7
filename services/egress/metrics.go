// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package egress

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Egress Control
// =============================================================================

var (
	// egressCallsTotal counts guard executions by provider and status.
	// Labels: provider, status (allowed, blocked, failed)
	egressCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "copilot",
		Subsystem: "egress",
		Name:      "calls_total",
		Help:      "Total egress call attempts by provider and status",
	}, []string{"provider", "status"})

	// egressModeTotal counts allowed calls by effective mode.
	// Labels: provider, mode (off, report-only, enforce)
	egressModeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "copilot",
		Subsystem: "egress",
		Name:      "mode_total",
		Help:      "Allowed egress calls by provider and effective mode",
	}, []string{"provider", "mode"})

	// egressRedactionsTotal counts detector firings by label.
	// Labels: label ([EMAIL], [SSN], ...)
	egressRedactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "copilot",
		Subsystem: "egress",
		Name:      "redactions_total",
		Help:      "Detector firings by replacement label",
	}, []string{"label"})

	// egressLatencySeconds measures end-to-end egress latency including guard checks.
	// Labels: provider
	egressLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "copilot",
		Subsystem: "egress",
		Name:      "latency_seconds",
		Help:      "End-to-end egress latency including guard checks",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"provider"})
)

// RecordEgressAllowed records a guard execution that reached the executor.
func RecordEgressAllowed(provider, mode string, durationSec float64) {
	egressCallsTotal.WithLabelValues(provider, "allowed").Inc()
	egressModeTotal.WithLabelValues(provider, mode).Inc()
	egressLatencySeconds.WithLabelValues(provider).Observe(durationSec)
}

// RecordEgressBlockedOrFailed records a guard execution that returned an
// error: "blocked" for policy violations, "failed" for executor errors.
func RecordEgressBlockedOrFailed(provider string, err error) {
	status := "failed"
	if errors.Is(err, ErrProviderNotAllowed) {
		status = "blocked"
	}
	egressCallsTotal.WithLabelValues(provider, status).Inc()
}

// RecordRedaction records one detector firing.
func RecordRedaction(label string) {
	egressRedactionsTotal.WithLabelValues(label).Inc()
}
