package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendmessage_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sendmessage_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	RelayResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendmessage_relay_results_total",
			Help: "Relay requests by result code",
		},
		[]string{"code"},
	)

	MessagesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendmessage_messages_dispatched_total",
			Help: "Messages handed to the transport core",
		},
		[]string{"transport"},
	)

	DispatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendmessage_dispatch_failures_total",
			Help: "Messages the transport core refused",
		},
		[]string{"transport"},
	)

	// Configuration metrics
	PropertyEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendmessage_property_events_total",
			Help: "Property change notifications delivered to listeners",
		},
		[]string{"op"}, // "set" or "delete"
	)

	PropertyFeedRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sendmessage_property_feed_restarts_total",
			Help: "Times the property change feed was lost and resubscribed",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendmessage_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendmessage_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sendmessage_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	PostgresLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sendmessage_postgres_latency_seconds",
			Help:    "PostgreSQL query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
