package pointbuf

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hupe1980/pcedit/internal/bitmap"
)

// CompactionResult describes one compaction pass.
type CompactionResult struct {
	// Store is the densely packed replacement store.
	Store *Store
	// Removed is the number of deleted points dropped.
	Removed int
	// Kept is the new logical point count.
	Kept int
	// Bounds is the bounding box of the kept points.
	Bounds Box
}

// Compact rewrites src into a new store that only holds Alive points, in
// their original relative order. src is left untouched and must be discarded
// by the caller. Compact takes the writer lease on src, so it fails with
// ErrWriterBusy while a streamer is still filling it.
func Compact(src *Store) (*CompactionResult, error) {
	release, err := src.AcquireWriter("compaction")
	if err != nil {
		return nil, fmt.Errorf("compact: %w", err)
	}
	defer release()

	src.mu.RLock()
	defer src.mu.RUnlock()

	kept := 0
	for _, st := range src.status {
		if st == StatusAlive {
			kept++
		}
	}

	dst := &Store{
		opts:    src.opts,
		palette: src.palette,
		dirty:   bitmap.New(),
	}
	dst.allocate(kept)

	var overlay *bitmap.Set
	if src.overlay != nil {
		overlay = bitmap.New()
	}

	j := 0
	for i := 0; i < src.n; i++ {
		if src.status[i] != StatusAlive {
			continue
		}
		copy(dst.positions[3*j:3*j+3], src.positions[3*i:3*i+3])
		copy(dst.colors[3*j:3*j+3], src.colors[3*i:3*i+3])
		copy(dst.base[3*j:3*j+3], src.base[3*i:3*i+3])
		dst.status[j] = StatusAlive
		dst.selection[j] = src.selection[i]
		if dst.intensity != nil {
			dst.intensity[j] = src.intensity[i]
		}
		dst.lod[j] = src.lod[i]
		dst.origin[j] = src.origin[i]
		if overlay != nil && src.overlay.Contains(uint32(i)) {
			overlay.Add(uint32(j))
		}
		j++
	}
	if overlay != nil && !overlay.IsEmpty() {
		dst.overlay = overlay
	}

	b := EmptyBox()
	for i := 0; i < kept; i++ {
		o := 3 * i
		b = b.Extend(mgl32.Vec3{dst.positions[o], dst.positions[o+1], dst.positions[o+2]})
	}

	return &CompactionResult{
		Store:   dst,
		Removed: src.n - kept,
		Kept:    kept,
		Bounds:  b,
	}, nil
}
