package pointbuf

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Box is an axis-aligned bounding box.
type Box struct {
	Min   mgl32.Vec3
	Max   mgl32.Vec3
	Empty bool
}

// Center returns the box centre.
func (b Box) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Size returns the box extent per axis.
func (b Box) Size() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// Diagonal returns the length of the box diagonal.
func (b Box) Diagonal() float32 {
	if b.Empty {
		return 0
	}
	return b.Size().Len()
}

// Extend grows the box to contain p.
func (b Box) Extend(p mgl32.Vec3) Box {
	if b.Empty {
		return Box{Min: p, Max: p}
	}
	for k := 0; k < 3; k++ {
		b.Min[k] = min(b.Min[k], p[k])
		b.Max[k] = max(b.Max[k], p[k])
	}
	return b
}

// EmptyBox returns a box containing nothing.
func EmptyBox() Box {
	inf := float32(math.Inf(1))
	return Box{
		Min:   mgl32.Vec3{inf, inf, inf},
		Max:   mgl32.Vec3{-inf, -inf, -inf},
		Empty: true,
	}
}

// Bounds computes the bounding box of the first n points.
func (s *Store) Bounds(n int) Box {
	b := EmptyBox()
	s.Scan(n, func(_ int, p mgl32.Vec3, _ Status) bool {
		b = b.Extend(p)
		return true
	})
	return b
}
