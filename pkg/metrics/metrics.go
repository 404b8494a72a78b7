package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Backend metrics
	LatestVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_latest_version",
			Help: "Latest committed version known to the backend",
		},
	)

	OpenSnapshots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_open_snapshots",
			Help: "Number of snapshot handles currently live",
		},
	)

	WriteBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_write_batch_duration_seconds",
			Help:    "Time taken for an atomic backend write batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	// JMT metrics
	JMTNodesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_jmt_nodes_written_total",
			Help: "Total JMT nodes written, by substore",
		},
		[]string{"substore"},
	)

	JMTProofDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_jmt_proof_duration_seconds",
			Help:    "Time taken to assemble a JMT membership/non-membership proof",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"substore"},
	)

	JMTPrunedVersions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_jmt_pruned_versions_total",
			Help: "Total number of versions removed by retention pruning",
		},
	)

	// Commit pipeline metrics
	CommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_commits_total",
			Help: "Total number of successful commits",
		},
	)

	CommitsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_commits_failed_total",
			Help: "Total number of failed commit attempts, by reason",
		},
		[]string{"reason"},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_commit_duration_seconds",
			Help:    "Time taken to apply a Delta and advance the version",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommitLeavesTotal = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_commit_leaves",
			Help:    "Number of verifiable leaves written per commit",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 4096},
		},
	)

	// Overlay metrics
	DeltaForksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_delta_forks_total",
			Help: "Total number of Deltas forked from a Snapshot or another Delta",
		},
	)

	DeltaWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_delta_writes_total",
			Help: "Total number of writes accumulated in Deltas, by kind",
		},
		[]string{"kind"}, // verifiable, nonverifiable
	)

	// Watch service metrics
	WatchSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_watch_subscribers",
			Help: "Number of active watch subscribers",
		},
	)

	WatchEventsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_watch_events_delivered_total",
			Help: "Total number of watch entries delivered to subscribers",
		},
	)

	WatchEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_watch_events_dropped_total",
			Help: "Total number of watch entries dropped due to a full subscriber buffer",
		},
	)

	// RPC metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_rpc_requests_total",
			Help: "Total number of RPC requests by method and status",
		},
		[]string{"method", "status"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		LatestVersion,
		OpenSnapshots,
		WriteBatchDuration,
		JMTNodesWritten,
		JMTProofDuration,
		JMTPrunedVersions,
		CommitsTotal,
		CommitsFailedTotal,
		CommitDuration,
		CommitLeavesTotal,
		DeltaForksTotal,
		DeltaWritesTotal,
		WatchSubscribers,
		WatchEventsDelivered,
		WatchEventsDropped,
		RPCRequestsTotal,
		RPCRequestDuration,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
