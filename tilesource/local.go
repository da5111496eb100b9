package tilesource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hupe1980/pcedit/internal/mmap"
	"github.com/hupe1980/pcedit/tile"
)

// LocalSource reads tiles from the tiler's on-disk layout
// {root}/{dataset}/tiles/{z}_{x}_{y}.bin.
type LocalSource struct {
	root string
}

// NewLocalSource creates a LocalSource rooted at root.
func NewLocalSource(root string) *LocalSource {
	return &LocalSource{root: root}
}

// Fetch implements Source.
func (s *LocalSource) Fetch(ctx context.Context, datasetID string, t tile.Tile) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{TileID: t.ID, Err: err}
	}

	m, err := mmap.Open(filepath.Join(s.root, filepath.FromSlash(ObjectKey(datasetID, t))))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = ErrNotFound
		}
		return nil, &FetchError{TileID: t.ID, Err: err}
	}
	defer m.Close()

	// The mapping is released on return, so hand out a copy.
	data := make([]byte, m.Len())
	copy(data, m.Bytes())
	return data, nil
}

// Tiles implements Catalog by scanning the tile directory. Tiles are ordered
// the way the tiler writes them (row-major over y, then x) and assigned
// consecutive base indices from their point counts.
func (s *LocalSource) Tiles(ctx context.Context, datasetID string) ([]tile.Tile, error) {
	dir := filepath.Join(s.root, datasetID, "tiles")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("tilesource: list %s: %w", dir, err)
	}

	var tiles []tile.Tile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bin") {
			continue
		}
		t, ok := parseTileName(e.Name())
		if !ok {
			continue
		}
		t.ID = t.Key()
		t.URI = filepath.Join(dir, e.Name())
		tiles = append(tiles, t)
	}

	sort.Slice(tiles, func(i, j int) bool {
		a, b := tiles[i], tiles[j]
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})

	base := 0
	for i := range tiles {
		data, err := s.Fetch(ctx, datasetID, tiles[i])
		if err != nil {
			return nil, err
		}
		count, err := pointCount(tiles[i], data)
		if err != nil {
			return nil, err
		}
		tiles[i].Points = count
		tiles[i].BaseIndex = base
		base += count
	}
	return tiles, nil
}

// parseTileName parses "{z}_{x}_{y}.bin".
func parseTileName(name string) (tile.Tile, bool) {
	parts := strings.Split(strings.TrimSuffix(name, ".bin"), "_")
	if len(parts) != 3 {
		return tile.Tile{}, false
	}
	var coords [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return tile.Tile{}, false
		}
		coords[i] = v
	}
	return tile.Tile{Z: coords[0], X: coords[1], Y: coords[2]}, true
}

func pointCount(t tile.Tile, data []byte) (int, error) {
	p, err := tile.DecodeTile(t, data)
	if err != nil {
		return 0, err
	}
	return p.Count, nil
}
