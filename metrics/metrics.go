package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidecar_ipc_messages_written_total",
			Help: "Total number of IPC message files written",
		},
		[]string{"group"},
	)

	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidecar_send_failures_total",
			Help: "Total number of rejected or failed send requests",
		},
		[]string{"reason"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidecar_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sidecar_http_request_duration_seconds",
			Help:    "Time taken to handle HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sidecar_rate_limited_requests_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	GroupsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sidecar_groups_loaded",
			Help: "Number of groups in the active groups config",
		},
	)

	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sidecar_build_info",
			Help: "Constant 1, labelled with the application name and lock digest",
		},
		[]string{"app", "lock_digest"},
	)
)

// Send failure reasons.
const (
	ReasonInvalidRequest = "invalid_request"
	ReasonUnknownGroup   = "unknown_group"
	ReasonIPCUnavailable = "ipc_unavailable"
	ReasonWriteError     = "write_error"
)
