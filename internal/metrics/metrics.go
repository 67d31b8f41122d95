package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestsTotal counts ingress HTTP requests by method, path, status.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idgateway_requests_total",
			Help: "Total ingress HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDurationSeconds measures ingress request latency.
	RequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "idgateway_request_duration_seconds",
			Help:    "Ingress request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ChecksTotal counts every check dispatch by check name and outcome
	// kind (passed/failed/deferred/error).
	ChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idgateway_checks_total",
			Help: "Total validation checks dispatched, by check name and outcome",
		},
		[]string{"check", "outcome"},
	)

	// ItemsFinalizedTotal counts terminal queue-item resolutions.
	ItemsFinalizedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idgateway_items_finalized_total",
			Help: "Total queue items removed, by reason",
		},
		[]string{"reason"},
	)

	// PoolCooldownsTotal counts connection cooldowns by error class and
	// endpoint.
	PoolCooldownsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idgateway_pool_cooldowns_total",
			Help: "Total connection cooldowns applied, by error class and endpoint",
		},
		[]string{"error_class", "endpoint"},
	)

	// QueueDepth reports the current queue length.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "idgateway_queue_depth",
			Help: "Current number of items in the queue",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDurationSeconds,
		ChecksTotal,
		ItemsFinalizedTotal,
		PoolCooldownsTotal,
		QueueDepth,
	)
}
