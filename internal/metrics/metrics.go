// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes Prometheus counters for beacon traffic and state.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lantern",
			Subsystem: "link",
			Name:      "frames_total",
			Help:      "Frames moved over beacon links.",
		},
		[]string{"node", "direction", "type"},
	)
	frameErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lantern",
			Subsystem: "link",
			Name:      "frame_errors_total",
			Help:      "Packets dropped by the link decoder.",
		},
		[]string{"node", "reason"},
	)
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lantern",
			Subsystem: "node",
			Name:      "state_transitions_total",
			Help:      "Node state machine transitions.",
		},
		[]string{"node", "from", "to"},
	)
	nodeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lantern",
			Subsystem: "node",
			Name:      "events_total",
			Help:      "Notable node events such as address collisions or a full registry.",
		},
		[]string{"node", "event"},
	)
	hubMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lantern",
			Subsystem: "hub",
			Name:      "messages_total",
			Help:      "Messages relayed by the hub.",
		},
		[]string{"node", "outcome"},
	)
	hubSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lantern",
			Subsystem: "hub",
			Name:      "sessions",
			Help:      "Connected hub sessions.",
		},
	)
)

// Node events
const (
	EventCollision    = "address_collision"
	EventRegistryFull = "registry_full"
	EventSuppressed   = "flood_suppressed"
	EventHoldoff      = "alarm_holdoff"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(frames, frameErrors, transitions, nodeEvents, hubMessages, hubSessions)
	})
}

func RecordFrame(node, direction, msgType string) {
	RegisterMetrics()
	frames.WithLabelValues(node, direction, msgType).Inc()
}

func RecordFrameError(node, reason string) {
	RegisterMetrics()
	frameErrors.WithLabelValues(node, reason).Inc()
}

func RecordTransition(node, from, to string) {
	RegisterMetrics()
	transitions.WithLabelValues(node, from, to).Inc()
}

func RecordEvent(node, event string) {
	RegisterMetrics()
	nodeEvents.WithLabelValues(node, event).Inc()
}

func RecordHubMessage(node, outcome string) {
	RegisterMetrics()
	hubMessages.WithLabelValues(node, outcome).Inc()
}

func SetHubSessions(n int) {
	RegisterMetrics()
	hubSessions.Set(float64(n))
}
