// Package metrics provides Prometheus collectors for the KisaanSeva service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kisaanseva"

var (
	// HTTPRequestsTotal tracks inbound HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestDuration tracks inbound HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// SessionTransitions tracks access session state changes by event.
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "transitions_total",
			Help:      "Total number of access session transitions by event",
		},
		[]string{"event"},
	)

	// OTPVerifications tracks consent verification attempts by outcome.
	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "otp_verifications_total",
			Help:      "Total number of OTP verification attempts by outcome",
		},
		[]string{"outcome"},
	)

	// SweepExpirations tracks sessions expired by the background sweep.
	SweepExpirations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "sweep_expired_total",
			Help:      "Total number of sessions expired by the periodic sweep",
		},
	)

	// GatewayDecisions tracks data gateway authorizations by outcome.
	GatewayDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "decisions_total",
			Help:      "Total number of gateway authorization decisions",
		},
		[]string{"outcome"},
	)

	// StagingTransitions tracks moderation actions on staged items.
	StagingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "staging",
			Name:      "transitions_total",
			Help:      "Total number of staged item moderation actions",
		},
		[]string{"action"},
	)

	// FanoutFarmers tracks farmers processed by notification fan-out by result.
	FanoutFarmers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "farmers_total",
			Help:      "Total number of farmers processed by fan-out by result",
		},
		[]string{"result"},
	)

	// IngestRecords tracks records pulled from open data sources by outcome.
	IngestRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Total number of ingested source records by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// FanoutDuration tracks fan-out run duration.
	FanoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "run_duration_seconds",
			Help:      "Duration of fan-out runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
