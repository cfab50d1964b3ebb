package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pod metrics
	PodOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lakota_pod_ops_total",
			Help: "Total number of Pod operations by backend, op and outcome",
		},
		[]string{"backend", "op", "outcome"},
	)

	PodOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lakota_pod_op_duration_seconds",
			Help:    "Pod operation duration in seconds by backend and op",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	PodCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lakota_pod_cache_hits_total",
			Help: "Total number of cache-pod reads served from the fast tier",
		},
	)

	PodCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lakota_pod_cache_misses_total",
			Help: "Total number of cache-pod reads that fell through to the slow tier",
		},
	)

	// Codec metrics
	CodecEncodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lakota_codec_encode_duration_seconds",
			Help:    "Column encode duration in seconds by logical type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	CodecDecodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lakota_codec_decode_duration_seconds",
			Help:    "Column decode duration in seconds by logical type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	// Changelog / series metrics
	ChangelogHeadsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lakota_changelog_heads_total",
			Help: "Number of changelog heads for a series (>1 means divergent)",
		},
		[]string{"series"},
	)

	SeriesWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lakota_series_write_duration_seconds",
			Help:    "Time taken to build and append a write's revision(s)",
			Buckets: prometheus.DefBuckets,
		},
	)

	SeriesReadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lakota_series_read_duration_seconds",
			Help:    "Time taken to materialise a read's frame",
			Buckets: prometheus.DefBuckets,
		},
	)

	MergesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lakota_merges_total",
			Help: "Total number of merge operations completed",
		},
	)

	DefragsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lakota_defrags_total",
			Help: "Total number of defrag operations completed",
		},
	)

	// GC metrics
	GCRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lakota_gc_runs_total",
			Help: "Total number of gc runs",
		},
	)

	GCBlobsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lakota_gc_blobs_deleted_total",
			Help: "Total number of unreachable blobs deleted by gc",
		},
	)

	GCDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lakota_gc_duration_seconds",
			Help:    "Time taken for a gc run in seconds",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900},
		},
	)

	// Push/pull metrics
	SyncBlobsTransferredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lakota_sync_blobs_transferred_total",
			Help: "Total number of blobs transferred by push/pull, by direction",
		},
		[]string{"direction"},
	)

	SyncBlobsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lakota_sync_blobs_skipped_total",
			Help: "Total number of blobs skipped (already present) by push/pull",
		},
		[]string{"direction"},
	)
)

func init() {
	prometheus.MustRegister(PodOpsTotal)
	prometheus.MustRegister(PodOpDuration)
	prometheus.MustRegister(PodCacheHitsTotal)
	prometheus.MustRegister(PodCacheMissesTotal)
	prometheus.MustRegister(CodecEncodeDuration)
	prometheus.MustRegister(CodecDecodeDuration)
	prometheus.MustRegister(ChangelogHeadsTotal)
	prometheus.MustRegister(SeriesWriteDuration)
	prometheus.MustRegister(SeriesReadDuration)
	prometheus.MustRegister(MergesTotal)
	prometheus.MustRegister(DefragsTotal)
	prometheus.MustRegister(GCRunsTotal)
	prometheus.MustRegister(GCBlobsDeletedTotal)
	prometheus.MustRegister(GCDuration)
	prometheus.MustRegister(SyncBlobsTransferredTotal)
	prometheus.MustRegister(SyncBlobsSkippedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
