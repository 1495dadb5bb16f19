// Package metrics defines Prometheus metrics for auditseal.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditseal_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditseal_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditseal_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	PackagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditseal_packages_total",
			Help: "Package builds that reached a terminal state",
		},
		[]string{"status"},
	)

	BuildStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditseal_build_step_duration_seconds",
			Help:    "Duration of each package build step",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"step"},
	)

	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditseal_verifications_total",
			Help: "Package verifications by result",
		},
		[]string{"result"},
	)

	VerificationCheckFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditseal_verification_check_failures_total",
			Help: "Failed verification checks by check name",
		},
		[]string{"check"},
	)

	KeyRotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auditseal_key_rotations_total",
			Help: "Signing key rotations",
		},
	)

	PacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditseal_packs_total",
			Help: "Audit packs that reached a terminal state",
		},
		[]string{"status"},
	)

	BuildQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditseal_build_queue_depth",
			Help: "Current build queue depth",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		PackagesTotal, BuildStepDuration,
		VerificationsTotal, VerificationCheckFailures,
		KeyRotationsTotal, PacksTotal, BuildQueueDepth,
	)
}
