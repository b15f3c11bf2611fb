// Package metrics defines the custom Prometheus metrics of the identity
// service. It is the single source of truth for metric names, labels and help
// strings. All metrics are registered with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "identity"

// ── Login metrics ─────────────────────────────────────────────────────────────

// LoginAttemptsTotal counts login attempts by the source that decided them.
// Labels:
//   - source: "INTERNAL", "SIS", "HR" or "none" when every source declined
//   - outcome: "success", "degraded", "denied" or "error"
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by deciding source and outcome.",
	},
	[]string{"source", "outcome"},
)

// LoginDuration measures end-to-end login latency including federation calls.
var LoginDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "login_duration_seconds",
		Help:      "Duration of login requests from credential receipt to token issue.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
	},
	[]string{"outcome"},
)

// ── External identity systems ─────────────────────────────────────────────────

// ExternalCallsTotal counts calls made to external identity systems.
// Labels:
//   - system: e.g. "SIS_UNDERGRADUATE", "HR"
//   - result: "accepted", "denied", "transport_error", "profile_unavailable"
var ExternalCallsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "external_calls_total",
		Help:      "Total number of calls to external identity systems, by result.",
	},
	[]string{"system", "result"},
)

// ExternalCallDuration measures latency of a single external authentication call.
var ExternalCallDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "external_call_duration_seconds",
		Help:      "Duration of calls to external identity systems.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"system"},
)

// ── Accounts ──────────────────────────────────────────────────────────────────

// UsersProvisionedTotal counts reconciliation writes.
// Labels:
//   - source: authentication source of the profile
//   - action: "created", "updated" or "conflict"
var UsersProvisionedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "users_provisioned_total",
		Help:      "Total number of users created or updated from external profiles.",
	},
	[]string{"source", "action"},
)

// ── Request gate ──────────────────────────────────────────────────────────────

// GateDecisionsTotal counts how requests left the authentication gate.
// Label:
//   - result: "authenticated", "anonymous", "invalid_token", "unknown_user", "inactive_user"
var GateDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_decisions_total",
		Help:      "Total number of authentication gate decisions, by result.",
	},
	[]string{"result"},
)

// ── Login event dispatch ──────────────────────────────────────────────────────

// LoginEventsQueueDepth tracks pending login events per dispatcher worker.
var LoginEventsQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "login_events_queue_depth",
		Help:      "Current number of login events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// LoginEventsDroppedTotal counts events dropped because a worker queue was full.
var LoginEventsDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_events_dropped_total",
		Help:      "Total number of login events dropped because the dispatcher was saturated.",
	},
)
