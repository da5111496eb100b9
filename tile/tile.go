package tile

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Tile describes a contiguous, independently fetchable range of the global
// point index space.
type Tile struct {
	ID        string `json:"id"`
	Z         int    `json:"z"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	URI       string `json:"uri"`
	Points    int    `json:"points"`
	BaseIndex int    `json:"base_index"`
}

// End returns the exclusive end of the tile's index range.
func (t Tile) End() int {
	return t.BaseIndex + t.Points
}

// Key returns the storage key "{z}_{x}_{y}" used by the tiling backend.
func (t Tile) Key() string {
	return fmt.Sprintf("%d_%d_%d", t.Z, t.X, t.Y)
}

func (t Tile) String() string {
	return fmt.Sprintf("tile %s (%s) [%d,%d)", t.ID, t.Key(), t.BaseIndex, t.End())
}

// Signature is the ordered concatenation of tile ids. Two tile lists with the
// same signature describe the same load.
func Signature(tiles []Tile) string {
	var b strings.Builder
	for i, t := range tiles {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(t.ID)
	}
	return b.String()
}

// SortByBase returns a copy of tiles ordered by BaseIndex.
func SortByBase(tiles []Tile) []Tile {
	out := make([]Tile, len(tiles))
	copy(out, tiles)
	sort.SliceStable(out, func(i, j int) bool { return out[i].BaseIndex < out[j].BaseIndex })
	return out
}

// TotalPoints returns the end of the highest tile range.
func TotalPoints(tiles []Tile) int {
	total := 0
	for _, t := range tiles {
		total = max(total, t.End())
	}
	return total
}

var (
	// ErrOverlap is returned when two tiles share indices.
	ErrOverlap = errors.New("tile: overlapping index ranges")
	// ErrGap is returned when the tiles do not cover [0, total) contiguously.
	ErrGap = errors.New("tile: index ranges leave a gap")
)

// Validate checks that tiles partition [0, total) without overlap or gaps.
func Validate(tiles []Tile, total int) error {
	sorted := SortByBase(tiles)
	next := 0
	for _, t := range sorted {
		if t.Points < 0 || t.BaseIndex < 0 {
			return fmt.Errorf("tile: %s has negative range", t)
		}
		switch {
		case t.BaseIndex < next:
			return fmt.Errorf("%w: %s starts before %d", ErrOverlap, t, next)
		case t.BaseIndex > next:
			return fmt.Errorf("%w: [%d,%d) not covered", ErrGap, next, t.BaseIndex)
		}
		next = t.End()
	}
	if next != total {
		return fmt.Errorf("%w: tiles end at %d, dataset has %d points", ErrGap, next, total)
	}
	return nil
}
