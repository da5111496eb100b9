package tilesource

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/pcedit/tile"
)

// MemorySource serves tiles from memory.
type MemorySource struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	tiles   map[string][]tile.Tile
	fetches atomic.Int64
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		blobs: make(map[string][]byte),
		tiles: make(map[string][]tile.Tile),
	}
}

// Put stores the payload of a tile and adds it to the dataset catalog.
func (m *MemorySource) Put(datasetID string, t tile.Tile, data []byte) {
	copied := make([]byte, len(data))
	copy(copied, data)

	m.mu.Lock()
	defer m.mu.Unlock()

	key := ObjectKey(datasetID, t)
	if _, ok := m.blobs[key]; !ok {
		m.tiles[datasetID] = append(m.tiles[datasetID], t)
	}
	m.blobs[key] = copied
}

// Fetch implements Source.
func (m *MemorySource) Fetch(ctx context.Context, datasetID string, t tile.Tile) ([]byte, error) {
	m.fetches.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{TileID: t.ID, Err: err}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[ObjectKey(datasetID, t)]
	if !ok {
		return nil, &FetchError{TileID: t.ID, Err: ErrNotFound}
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

// Tiles implements Catalog.
func (m *MemorySource) Tiles(_ context.Context, datasetID string) ([]tile.Tile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return tile.SortByBase(m.tiles[datasetID]), nil
}

// Fetches returns how many Fetch calls were made.
func (m *MemorySource) Fetches() int64 {
	return m.fetches.Load()
}
