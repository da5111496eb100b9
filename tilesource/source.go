package tilesource

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/hupe1980/pcedit/tile"
)

// ErrNotFound is returned when a tile does not exist. It is never retried.
var ErrNotFound = errors.New("tilesource: tile not found")

// Source fetches the stored bytes of a tile.
type Source interface {
	Fetch(ctx context.Context, datasetID string, t tile.Tile) ([]byte, error)
}

// Catalog lists the tiles of a dataset ordered by BaseIndex.
type Catalog interface {
	Tiles(ctx context.Context, datasetID string) ([]tile.Tile, error)
}

// FetchError describes a failed tile fetch. Unless it wraps ErrNotFound or a
// context error the failure is considered transient.
type FetchError struct {
	TileID     string
	StatusCode int // HTTP status, 0 when not applicable
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("tilesource: fetch %s: status %d: %v", e.TileID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("tilesource: fetch %s: %v", e.TileID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether retrying the fetch may succeed.
func (e *FetchError) Transient() bool {
	return IsTransient(e.Err)
}

// IsTransient reports whether retrying a fetch that failed with err may
// succeed. Missing tiles and cancellation are final; everything else is
// treated as transient I/O.
func IsTransient(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// ObjectKey returns the storage key of a tile relative to a store root.
func ObjectKey(datasetID string, t tile.Tile) string {
	return path.Join(datasetID, "tiles", t.Key()+".bin")
}
