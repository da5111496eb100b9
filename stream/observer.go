package stream

import "time"

// Observer receives streaming measurements.
type Observer interface {
	// OnTileFetched is called after each fetch attempt sequence of a tile.
	OnTileFetched(duration time.Duration, bytes int, err error)
	// OnTileCommitted is called when a tile's points are written to the store.
	OnTileCommitted(points int)
	// OnRetry is called before a fetch is retried.
	OnRetry(tileID string)
}

// NoopObserver discards all measurements.
type NoopObserver struct{}

func (NoopObserver) OnTileFetched(time.Duration, int, error) {}
func (NoopObserver) OnTileCommitted(int)                     {}
func (NoopObserver) OnRetry(string)                          {}
