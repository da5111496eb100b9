package selection

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hupe1980/pcedit/pointbuf"
)

// ErrNoViewport is returned when the camera has no usable viewport.
var ErrNoViewport = errors.New("selection: camera viewport not set")

// Camera is the view used for picking.
type Camera struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
	// Width and Height are the viewport size in pixels.
	Width  int
	Height int
	// Distance is the camera-to-target distance that scales the pick radius.
	Distance float32
}

// Ray is a half-line with a unit direction.
type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3
}

// RayAt casts a ray through the pixel (x, y), measured from the top-left
// corner of the viewport.
func (c Camera) RayAt(x, y float32) (Ray, error) {
	if c.Width <= 0 || c.Height <= 0 {
		return Ray{}, ErrNoViewport
	}
	winY := float32(c.Height) - y
	near, err := mgl32.UnProject(mgl32.Vec3{x, winY, 0}, c.View, c.Projection, 0, 0, c.Width, c.Height)
	if err != nil {
		return Ray{}, fmt.Errorf("selection: unproject: %w", err)
	}
	far, err := mgl32.UnProject(mgl32.Vec3{x, winY, 1}, c.View, c.Projection, 0, 0, c.Width, c.Height)
	if err != nil {
		return Ray{}, fmt.Errorf("selection: unproject: %w", err)
	}
	dir := far.Sub(near)
	if dir.Len() == 0 {
		return Ray{}, fmt.Errorf("selection: degenerate ray at (%g, %g)", x, y)
	}
	return Ray{Origin: near, Direction: dir.Normalize()}, nil
}

// Threshold returns the pick radius for a camera dist away from its target.
func Threshold(dist, brushRadius float32) float32 {
	return mgl32.Clamp(dist/50, 0.5, 2) * brushRadius
}

// PickRadius is the brush radius scaled by the camera-to-target distance.
// It is the same for every point along a ray.
func (c Camera) PickRadius(brushRadius float32) float32 {
	return Threshold(c.Distance, brushRadius)
}

// Raycast returns the Alive points among the first n that lie in front of
// the ray origin and no further than threshold from the ray.
func Raycast(store *pointbuf.Store, n int, ray Ray, threshold float32) []int {
	var hits []int
	store.Scan(n, func(i int, p mgl32.Vec3, st pointbuf.Status) bool {
		if st != pointbuf.StatusAlive {
			return true
		}
		v := p.Sub(ray.Origin)
		t := v.Dot(ray.Direction)
		if t <= 0 {
			return true
		}
		off := v.Sub(ray.Direction.Mul(t)).Len()
		if off <= threshold {
			hits = append(hits, i)
		}
		return true
	})
	return hits
}
