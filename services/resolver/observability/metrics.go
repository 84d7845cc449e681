// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the resolver.
//
// # Description
//
// Metrics cover the disambiguation protocol's transition points:
//   - Round loads (presented, missing, empty)
//   - Resolution outcomes and latency
//   - In-flight resolutions
//   - Rejected duplicate selections
//   - Dropped telemetry events
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "ownertrace"

const disambigSubsystem = "disambig"

// ProtocolMetrics holds all Prometheus metrics for the disambiguation
// protocol. Initialize once at startup via InitMetrics().
type ProtocolMetrics struct {
	// RoundLoadsTotal counts Loading transitions by result.
	// Labels: result (presented, missing, empty)
	RoundLoadsTotal *prometheus.CounterVec

	// ResolutionsTotal counts settled resolution calls by outcome.
	// Labels: outcome (resolved, still_ambiguous, failed)
	ResolutionsTotal *prometheus.CounterVec

	// ResolutionDurationSeconds measures resolution call latency.
	// Labels: outcome
	ResolutionDurationSeconds *prometheus.HistogramVec

	// ActiveResolutions tracks rounds currently in Resolving.
	ActiveResolutions prometheus.Gauge

	// ChooseRejectedTotal counts selections ignored because a
	// resolution was already in flight or the round was terminal.
	ChooseRejectedTotal prometheus.Counter

	// TelemetryDroppedTotal counts undelivered telemetry events.
	TelemetryDroppedTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance, initialized by InitMetrics().
var DefaultMetrics *ProtocolMetrics

var initOnce sync.Once

// InitMetrics creates and registers all protocol metrics against the
// default Prometheus registry. Idempotent: later calls return the
// instance from the first.
func InitMetrics() *ProtocolMetrics {
	initOnce.Do(registerMetrics)
	return DefaultMetrics
}

func registerMetrics() {
	DefaultMetrics = &ProtocolMetrics{
		RoundLoadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: disambigSubsystem,
				Name:      "round_loads_total",
				Help:      "Total round load attempts by result",
			},
			[]string{"result"},
		),

		ResolutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: disambigSubsystem,
				Name:      "resolutions_total",
				Help:      "Total settled resolution calls by outcome",
			},
			[]string{"outcome"},
		),

		ResolutionDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: disambigSubsystem,
				Name:      "resolution_duration_seconds",
				Help:      "Resolution call latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"outcome"},
		),

		ActiveResolutions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: disambigSubsystem,
				Name:      "active_resolutions",
				Help:      "Rounds currently awaiting a resolution call",
			},
		),

		ChooseRejectedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: disambigSubsystem,
				Name:      "choose_rejected_total",
				Help:      "Selections ignored due to the in-flight guard",
			},
		),

		TelemetryDroppedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: disambigSubsystem,
				Name:      "telemetry_dropped_total",
				Help:      "Telemetry events dropped on delivery failure",
			},
		),
	}
}

// LoadResult labels for RoundLoadsTotal.
const (
	LoadPresented = "presented"
	LoadMissing   = "missing"
	LoadEmpty     = "empty"
)

// RecordRoundLoad records one Loading transition.
func (m *ProtocolMetrics) RecordRoundLoad(result string) {
	if m == nil {
		return
	}
	m.RoundLoadsTotal.WithLabelValues(result).Inc()
}

// RecordResolution records one settled resolution call.
func (m *ProtocolMetrics) RecordResolution(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
	m.ResolutionDurationSeconds.WithLabelValues(outcome).Observe(seconds)
}

// ResolutionStarted increments the in-flight gauge.
func (m *ProtocolMetrics) ResolutionStarted() {
	if m == nil {
		return
	}
	m.ActiveResolutions.Inc()
}

// ResolutionEnded decrements the in-flight gauge.
func (m *ProtocolMetrics) ResolutionEnded() {
	if m == nil {
		return
	}
	m.ActiveResolutions.Dec()
}

// RecordChooseRejected counts one ignored duplicate selection.
func (m *ProtocolMetrics) RecordChooseRejected() {
	if m == nil {
		return
	}
	m.ChooseRejectedTotal.Inc()
}

// RecordTelemetryDropped counts one undelivered telemetry event.
func (m *ProtocolMetrics) RecordTelemetryDropped() {
	if m == nil {
		return
	}
	m.TelemetryDroppedTotal.Inc()
}
