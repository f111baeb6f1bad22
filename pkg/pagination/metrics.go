package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the pagination engine.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glsync_pages_fetched_total",
		Help: "Total top-level pages fetched by pagination style",
	}, []string{"style"}) // "rest", "graphql"

	nestedPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glsync_nested_pages_total",
		Help: "Total nested collection pages fetched",
	})

	streamsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glsync_streams_dropped_total",
		Help: "Nested field streams dropped before exhaustion by reason",
	}, []string{"reason"}) // "error", "missing_cursor"

	nestedInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "glsync_nested_inflight_requests",
		Help: "Nested stream advances currently holding a concurrency slot",
	})

	mergeWavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glsync_merge_waves_total",
		Help: "Total merge waves executed across all batches",
	})

	snapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glsync_snapshots_total",
		Help: "Total batch snapshots emitted after merge waves",
	})
)
