// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neftie_tokens_issued_total",
			Help: "Total number of session tokens issued",
		},
	)

	LoginFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neftie_login_failures_total",
			Help: "Total number of rejected logins by reason",
		},
		[]string{"reason"},
	)

	GateRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neftie_gate_rejections_total",
			Help: "Total number of gated operations called without a valid session",
		},
		[]string{"operation"},
	)

	GraphQLOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neftie_graphql_operations_total",
			Help: "Total number of GraphQL requests by operation type and outcome",
		},
		[]string{"type", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neftie_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	ReconciledRefs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neftie_reconcile_refs_total",
			Help: "Total number of post references repaired by the reconcile sweep",
		},
		[]string{"action"},
	)
)
