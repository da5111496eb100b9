package pointbuf

import "github.com/go-gl/mathgl/mgl32"

// Palette holds the tints used for derived point colours.
type Palette struct {
	Delete  mgl32.Vec3
	Restore mgl32.Vec3
	Deleted mgl32.Vec3
	Overlay mgl32.Vec3
}

// DefaultPalette is the palette used unless WithPalette overrides it.
var DefaultPalette = Palette{
	Delete:  mgl32.Vec3{1.0, 0.25, 0.25},
	Restore: mgl32.Vec3{0.25, 0.9, 0.4},
	Deleted: mgl32.Vec3{0.35, 0.35, 0.35},
	Overlay: mgl32.Vec3{1.0, 0.65, 0.1},
}

// IntensityGray maps a raw intensity to a gray level in [0.2, 1].
func IntensityGray(v uint8) mgl32.Vec3 {
	g := 0.2 + 0.8*float32(v)/255
	return mgl32.Vec3{g, g, g}
}

// displayColor must be called with s.mu held.
func (s *Store) displayColor(i int) mgl32.Vec3 {
	switch s.selection[i] {
	case SelectionDelete:
		return s.palette.Delete
	case SelectionRestore:
		return s.palette.Restore
	}
	if s.status[i] == StatusDeleted {
		return s.palette.Deleted
	}
	if s.overlay != nil && s.overlay.Contains(uint32(i)) {
		return s.palette.Overlay
	}
	if s.intensity != nil {
		return IntensityGray(s.intensity[i])
	}
	o := 3 * i
	return mgl32.Vec3{
		float32(s.base[o]) / 255,
		float32(s.base[o+1]) / 255,
		float32(s.base[o+2]) / 255,
	}
}

// recolor must be called with s.mu held for writing.
func (s *Store) recolor(i int) {
	c := s.displayColor(i)
	copy(s.colors[3*i:3*i+3], c[:])
}
