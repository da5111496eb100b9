package stream

import (
	"github.com/hupe1980/pcedit/tile"
)

// Prefix tracks which tiles have landed and the end of the contiguous
// loaded range starting at index 0.
type Prefix struct {
	tiles  []tile.Tile // ordered by BaseIndex
	loaded []bool
	next   int // first tile not yet part of the prefix
	end    int
}

// NewPrefix creates a tracker for tiles ordered by BaseIndex.
func NewPrefix(tiles []tile.Tile) *Prefix {
	return &Prefix{
		tiles:  tiles,
		loaded: make([]bool, len(tiles)),
	}
}

// MarkLoaded records tile i as loaded and returns the new prefix end.
func (p *Prefix) MarkLoaded(i int) int {
	if i < 0 || i >= len(p.tiles) {
		return p.end
	}
	p.loaded[i] = true
	for p.next < len(p.tiles) && p.loaded[p.next] {
		p.end = p.tiles[p.next].End()
		p.next++
	}
	return p.end
}

// End returns the end of the contiguous loaded prefix.
func (p *Prefix) End() int {
	return p.end
}

// Loaded reports whether tile i has landed.
func (p *Prefix) Loaded(i int) bool {
	return p.loaded[i]
}

// Complete reports whether every tile has landed.
func (p *Prefix) Complete() bool {
	return p.next == len(p.tiles)
}
