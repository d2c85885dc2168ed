package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionTransitions counts friend connection commands by kind and outcome code.
	ConnectionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thirtyday_connection_transitions_total",
		Help: "Friend connection commands by kind (invite, reinvite, accept, reject) and outcome",
	}, []string{"kind", "outcome"})

	// ChangeEventsPublished counts "connections changed" signals sent, by feed source.
	ChangeEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thirtyday_change_events_published_total",
		Help: "Connection change signals published",
	}, []string{"source"})

	// ChangeEventsReceived counts "connections changed" signals received, by feed source.
	ChangeEventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thirtyday_change_events_received_total",
		Help: "Connection change signals received from the feed",
	}, []string{"source"})

	// ChangeEventsCoalesced counts signals folded into an already pending refetch.
	ChangeEventsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thirtyday_change_events_coalesced_total",
		Help: "Connection change signals dropped because a refetch was already pending",
	})

	// ViewCacheResults counts connection view cache lookups by result.
	ViewCacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thirtyday_view_cache_results_total",
		Help: "Connection view cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thirtyday_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "thirtyday_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// WebSocketConnectionsTotal is the gauge of open connection feed sockets.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thirtyday_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thirtyday_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// APIKeyAuthentications counts API key authentication attempts by outcome.
	APIKeyAuthentications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thirtyday_api_key_authentications_total",
		Help: "API key authentication attempts by outcome",
	}, []string{"outcome"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
