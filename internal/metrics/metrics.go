package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP request metrics for API server
var (
	// HTTPRequestDuration tracks the duration of HTTP requests
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests by method, path, and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestsTotal counts the total number of HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)
)

// Sync and upstream metrics
var (
	// SyncRunning indicates whether a sync is currently in flight
	SyncRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "usage_sync_running",
			Help: "Whether a sync or backfill is currently running (0 or 1)",
		},
	)

	// SyncRunsTotal counts completed sync passes by kind
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_sync_runs_total",
			Help: "Total number of completed sync passes by kind (regular, adaptive)",
		},
		[]string{"kind"},
	)

	// SyncDaysTotal counts per-day outcomes during sync passes
	SyncDaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_sync_days_total",
			Help: "Total number of per-day sync outcomes (synced, skipped, empty, error)",
		},
		[]string{"outcome"},
	)

	// SyncMonthsTotal counts per-month outcomes during sync passes
	SyncMonthsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_sync_months_total",
			Help: "Total number of per-month sync outcomes (synced, skipped, error)",
		},
		[]string{"outcome"},
	)

	// UpstreamRequestsTotal counts upstream API calls by operation and outcome
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of upstream API calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// NotificationsTotal counts notification attempts by channel and outcome
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notification attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)
)

// RecordHTTPRequest records metrics for an HTTP request
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordSyncDay records the outcome of one day in a sync pass
func RecordSyncDay(outcome string) {
	SyncDaysTotal.WithLabelValues(outcome).Inc()
}

// RecordSyncMonth records the outcome of one month in a sync pass
func RecordSyncMonth(outcome string) {
	SyncMonthsTotal.WithLabelValues(outcome).Inc()
}

// RecordUpstreamRequest records an upstream API call outcome
func RecordUpstreamRequest(operation, outcome string) {
	UpstreamRequestsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordNotification records a notification attempt outcome
func RecordNotification(channel, outcome string) {
	NotificationsTotal.WithLabelValues(channel, outcome).Inc()
}
