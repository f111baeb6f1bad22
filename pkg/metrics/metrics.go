// Package metrics documents the Prometheus metrics exposed by the sync
// client. All metrics are defined in their respective packages (client,
// cache, ratelimit, pagination) to maintain modularity and avoid circular
// dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the sync client.
// All metrics are automatically registered via promauto in their packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Pagination Metrics (pkg/pagination):
//   - glsync_pages_fetched_total{style} (Counter): top-level pages by style (rest, graphql)
//   - glsync_nested_pages_total (Counter): nested collection pages fetched
//   - glsync_streams_dropped_total{reason} (Counter): nested streams dropped (error, missing_cursor)
//   - glsync_nested_inflight_requests (Gauge): advances currently holding a concurrency slot
//   - glsync_merge_waves_total (Counter): merge waves executed
//   - glsync_snapshots_total (Counter): batch snapshots emitted
//
// Request Metrics (pkg/client):
//   - glsync_requests_total{endpoint, status} (Counter): requests by endpoint and HTTP status
//   - glsync_request_duration_seconds{endpoint} (Histogram): request duration
//   - glsync_errors_total{class} (Counter): errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - glsync_retries_total{error_class} (Counter): retry attempts
//   - glsync_retry_backoff_seconds{error_class} (Histogram): backoff durations
//   - glsync_retry_exhausted_total{error_class} (Counter): exhausted retry budgets
//
// Cache Metrics (pkg/cache):
//   - glsync_cache_hits_total (Counter)
//   - glsync_cache_misses_total (Counter)
//   - glsync_cache_size_bytes (Gauge)
//   - glsync_304_responses_total (Counter)
//   - glsync_conditional_requests_total (Counter)
//   - glsync_cache_errors_total{operation} (Counter)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - glsync_rate_limit_remaining (Gauge)
//   - glsync_rate_limit_blocks_total (Counter)
//   - glsync_rate_limit_throttles_total (Counter)
//
// Example Prometheus Queries:
//
//	# Cache Hit Rate
//	rate(glsync_cache_hits_total[5m]) /
//	(rate(glsync_cache_hits_total[5m]) + rate(glsync_cache_misses_total[5m]))
//
//	# Dropped Nested Streams
//	rate(glsync_streams_dropped_total[5m])
//
//	# Concurrency Cap Utilization
//	glsync_nested_inflight_requests
//
//	# P95 Request Latency
//	histogram_quantile(0.95, rate(glsync_request_duration_seconds_bucket[5m]))
