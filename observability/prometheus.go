package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/pcedit"
)

const namespace = "pcedit"

var _ pcedit.MetricsCollector = (*PrometheusCollector)(nil)

// PrometheusCollector implements pcedit.MetricsCollector with Prometheus
// counters and histograms.
type PrometheusCollector struct {
	tileFetches   *prometheus.CounterVec
	tileLatency   prometheus.Histogram
	tileBytes     prometheus.Counter
	fetchRetries  prometheus.Counter
	pointsLoaded  prometheus.Counter
	commits       *prometheus.CounterVec
	commitLatency prometheus.Histogram
	opsAccepted   prometheus.Counter
	indices       prometheus.Counter
	compactions   prometheus.Counter
	pointsRemoved prometheus.Counter
	brushHits     prometheus.Histogram
}

// NewPrometheusCollector creates the collector and registers its metrics
// with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &PrometheusCollector{
		tileFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_fetches_total",
			Help:      "Tile fetches by result.",
		}, []string{"result"}),
		tileLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tile_fetch_duration_seconds",
			Help:      "Tile fetch latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
		tileBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_bytes_total",
			Help:      "Bytes of tile payload fetched.",
		}),
		fetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_fetch_retries_total",
			Help:      "Retried tile fetches.",
		}),
		pointsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_loaded_total",
			Help:      "Points written into point stores.",
		}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Commits by result.",
		}, []string{"result"}),
		commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Commit latency across all chunks.",
			Buckets:   prometheus.DefBuckets,
		}),
		opsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_accepted_total",
			Help:      "Operations accepted by the session server.",
		}),
		indices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indices_accepted_total",
			Help:      "Point indices carried by accepted operations.",
		}),
		compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions_total",
			Help:      "Completed compactions.",
		}),
		pointsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_removed_total",
			Help:      "Deleted points dropped by compaction.",
		}),
		brushHits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "brush_hits",
			Help:      "Points hit per brush application.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}

	for _, m := range []prometheus.Collector{
		c.tileFetches, c.tileLatency, c.tileBytes, c.fetchRetries, c.pointsLoaded,
		c.commits, c.commitLatency, c.opsAccepted, c.indices,
		c.compactions, c.pointsRemoved, c.brushHits,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordTileFetch implements pcedit.MetricsCollector.
func (c *PrometheusCollector) RecordTileFetch(d time.Duration, bytes int, err error) {
	c.tileFetches.WithLabelValues(result(err)).Inc()
	c.tileLatency.Observe(d.Seconds())
	c.tileBytes.Add(float64(bytes))
}

// RecordTileCommit implements pcedit.MetricsCollector.
func (c *PrometheusCollector) RecordTileCommit(points int) {
	c.pointsLoaded.Add(float64(points))
}

// RecordFetchRetry implements pcedit.MetricsCollector.
func (c *PrometheusCollector) RecordFetchRetry() {
	c.fetchRetries.Inc()
}

// RecordCommit implements pcedit.MetricsCollector.
func (c *PrometheusCollector) RecordCommit(accepted, indices int, d time.Duration, err error) {
	c.commits.WithLabelValues(result(err)).Inc()
	c.commitLatency.Observe(d.Seconds())
	c.opsAccepted.Add(float64(accepted))
	c.indices.Add(float64(indices))
}

// RecordCompaction implements pcedit.MetricsCollector.
func (c *PrometheusCollector) RecordCompaction(removed int, _ time.Duration) {
	c.compactions.Inc()
	c.pointsRemoved.Add(float64(removed))
}

// RecordBrush implements pcedit.MetricsCollector.
func (c *PrometheusCollector) RecordBrush(hits int, _ time.Duration) {
	c.brushHits.Observe(float64(hits))
}
