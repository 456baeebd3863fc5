// Package telemetry provides the Prometheus metrics and OpenTelemetry
// tracing wired around the Governance Facade's preCall/postCall path.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the governance core's Prometheus instruments.
type Metrics struct {
	PolicyEvaluationsTotal *prometheus.CounterVec
	PreCallDuration        prometheus.Histogram
	PostCallDuration       prometheus.Histogram
	AuditRecordsTotal      *prometheus.CounterVec
	ChainVerifyErrorsTotal prometheus.Counter
	RateLimitKeys          prometheus.Gauge
	ActiveSessions         prometheus.Gauge
}

// NewMetrics creates and registers all metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		PolicyEvaluationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "governance",
				Name:      "policy_evaluations_total",
				Help:      "Total policy evaluations by decision.",
			},
			[]string{"decision"},
		),
		PreCallDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "governance",
				Name:      "precall_duration_seconds",
				Help:      "Duration of PreCall evaluations.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		PostCallDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "governance",
				Name:      "postcall_duration_seconds",
				Help:      "Duration of PostCall audit recording.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		AuditRecordsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "governance",
				Name:      "audit_records_total",
				Help:      "Total audit records appended by result status.",
			},
			[]string{"status"},
		),
		ChainVerifyErrorsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "governance",
				Name:      "chain_verify_errors_total",
				Help:      "Total chain integrity errors found by Verify across all sessions.",
			},
		),
		RateLimitKeys: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "governance",
				Name:      "rate_limit_keys",
				Help:      "Number of distinct rate-limit keys currently tracked.",
			},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "governance",
				Name:      "active_sessions",
				Help:      "Number of sessions with at least one open audit chain handle.",
			},
		),
	}
}
