package pcedit

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/pcedit/stream"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// observability package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordTileFetch is called once per tile after all fetch attempts.
	// bytes is the payload size, err is nil if successful.
	RecordTileFetch(duration time.Duration, bytes int, err error)

	// RecordTileCommit is called when a tile's points land in the store.
	RecordTileCommit(points int)

	// RecordFetchRetry is called before a tile fetch is retried.
	RecordFetchRetry()

	// RecordCommit is called after each commit. accepted is the number of
	// operations accepted, indices the number of indices they carried.
	RecordCommit(accepted, indices int, duration time.Duration, err error)

	// RecordCompaction is called after each compaction.
	RecordCompaction(removed int, duration time.Duration)

	// RecordBrush is called for each brush application.
	RecordBrush(hits int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordTileFetch(time.Duration, int, error)   {}
func (NoopMetricsCollector) RecordTileCommit(int)                        {}
func (NoopMetricsCollector) RecordFetchRetry()                           {}
func (NoopMetricsCollector) RecordCommit(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordCompaction(int, time.Duration)         {}
func (NoopMetricsCollector) RecordBrush(int, time.Duration)              {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	TileFetchCount      atomic.Int64
	TileFetchErrors     atomic.Int64
	TileFetchBytes      atomic.Int64
	TileFetchTotalNanos atomic.Int64
	TileCommitCount     atomic.Int64
	PointsCommitted     atomic.Int64
	FetchRetries        atomic.Int64
	CommitCount         atomic.Int64
	CommitErrors        atomic.Int64
	OpsAccepted         atomic.Int64
	IndicesAccepted     atomic.Int64
	CompactionCount     atomic.Int64
	PointsRemoved       atomic.Int64
	BrushCount          atomic.Int64
	BrushHits           atomic.Int64
}

// RecordTileFetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTileFetch(duration time.Duration, bytes int, err error) {
	b.TileFetchCount.Add(1)
	b.TileFetchTotalNanos.Add(duration.Nanoseconds())
	b.TileFetchBytes.Add(int64(bytes))
	if err != nil {
		b.TileFetchErrors.Add(1)
	}
}

// RecordTileCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTileCommit(points int) {
	b.TileCommitCount.Add(1)
	b.PointsCommitted.Add(int64(points))
}

// RecordFetchRetry implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFetchRetry() {
	b.FetchRetries.Add(1)
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(accepted, indices int, duration time.Duration, err error) {
	b.CommitCount.Add(1)
	b.OpsAccepted.Add(int64(accepted))
	b.IndicesAccepted.Add(int64(indices))
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

// RecordCompaction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCompaction(removed int, duration time.Duration) {
	b.CompactionCount.Add(1)
	b.PointsRemoved.Add(int64(removed))
}

// RecordBrush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBrush(hits int, duration time.Duration) {
	b.BrushCount.Add(1)
	b.BrushHits.Add(int64(hits))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		TileFetchCount:    b.TileFetchCount.Load(),
		TileFetchErrors:   b.TileFetchErrors.Load(),
		TileFetchBytes:    b.TileFetchBytes.Load(),
		TileFetchAvgNanos: b.getAvgFetchNanos(),
		TileCommitCount:   b.TileCommitCount.Load(),
		PointsCommitted:   b.PointsCommitted.Load(),
		FetchRetries:      b.FetchRetries.Load(),
		CommitCount:       b.CommitCount.Load(),
		CommitErrors:      b.CommitErrors.Load(),
		OpsAccepted:       b.OpsAccepted.Load(),
		IndicesAccepted:   b.IndicesAccepted.Load(),
		CompactionCount:   b.CompactionCount.Load(),
		PointsRemoved:     b.PointsRemoved.Load(),
		BrushCount:        b.BrushCount.Load(),
		BrushHits:         b.BrushHits.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgFetchNanos() int64 {
	count := b.TileFetchCount.Load()
	if count == 0 {
		return 0
	}
	return b.TileFetchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	TileFetchCount    int64
	TileFetchErrors   int64
	TileFetchBytes    int64
	TileFetchAvgNanos int64
	TileCommitCount   int64
	PointsCommitted   int64
	FetchRetries      int64
	CommitCount       int64
	CommitErrors      int64
	OpsAccepted       int64
	IndicesAccepted   int64
	CompactionCount   int64
	PointsRemoved     int64
	BrushCount        int64
	BrushHits         int64
}

// streamObserver forwards streaming measurements to a MetricsCollector.
type streamObserver struct {
	m MetricsCollector
}

var _ stream.Observer = streamObserver{}

func (o streamObserver) OnTileFetched(d time.Duration, bytes int, err error) {
	o.m.RecordTileFetch(d, bytes, err)
}

func (o streamObserver) OnTileCommitted(points int) { o.m.RecordTileCommit(points) }

func (o streamObserver) OnRetry(string) { o.m.RecordFetchRetry() }
