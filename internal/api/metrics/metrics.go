// Package metrics defines the custom Prometheus metrics of the records API.
// It is the single source of truth for metric names, labels, and help strings.
//
// All metrics register with the default Prometheus registry on package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "records_api"

// ── Gate metrics ──────────────────────────────────────────────────────────────

// GateDenialsTotal counts requests rejected by the access gate.
// Label:
//   - reason: credential_missing, credential_malformed, credential_invalid,
//     identity_not_found or insufficient_permission
var GateDenialsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_denials_total",
		Help:      "Total number of requests denied by the access gate, by reason.",
	},
	[]string{"reason"},
)

// AuthorizationDecisionsTotal counts capability checks.
// Labels:
//   - capability: the permission name that was checked
//   - result: "granted", "denied" or "error"
var AuthorizationDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authorization_decisions_total",
		Help:      "Total number of capability checks, by capability and result.",
	},
	[]string{"capability", "result"},
)

// GateDuration measures the time spent admitting a request.
var GateDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gate_duration_seconds",
		Help:      "Duration of token verification, identity resolution and authorization.",
		Buckets:   prometheus.DefBuckets,
	},
)

// ── Login metrics ─────────────────────────────────────────────────────────────

// LoginsTotal counts login attempts.
// Label:
//   - result: "success", "invalid_credentials", "throttled" or "error"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// ── Audit metrics ─────────────────────────────────────────────────────────────

// AuditEventsTotal counts audit events leaving the dispatcher.
// Label:
//   - result: "stored", "failed" or "dropped"
var AuditEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_events_total",
		Help:      "Total number of audit events handled by the dispatcher, by result.",
	},
	[]string{"result"},
)

// AuditQueueDepth tracks pending events per dispatcher worker.
// Label:
//   - worker_id: numeric worker index
var AuditQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Current number of audit events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)
