package camera

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/hupe1980/pcedit/pointbuf"
)

// Pose is a camera placement with its clipping planes.
type Pose struct {
	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3
	Near     float32
	Far      float32

	// Forward is the estimated travel axis (unit length, in the ground plane).
	Forward mgl32.Vec3
	// RoadWidth is the estimated lateral extent of the corridor.
	RoadWidth float32
	// Elevated is set when tall structures rise well above the ground.
	Elevated bool
	// Fallback is set when the pose came from the bounding box.
	Fallback bool
}

// View returns the view matrix.
func (p Pose) View() mgl32.Mat4 {
	return mgl32.LookAtV(p.Position, p.Target, p.Up)
}

// Projection returns a perspective projection for a vertical field of view
// in degrees.
func (p Pose) Projection(fovyDeg, aspect float32) mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(fovyDeg), aspect, p.Near, p.Far)
}

// Distance returns the camera-to-target distance.
func (p Pose) Distance() float32 {
	return p.Target.Sub(p.Position).Len()
}

// FitBounds frames a bounding box from above and behind along +Y.
func FitBounds(b pointbuf.Box, farMultiplier float32) Pose {
	if farMultiplier <= 0 {
		farMultiplier = 1
	}
	center := mgl32.Vec3{}
	diag := float32(1)
	if !b.Empty {
		center = b.Center()
		diag = max(b.Diagonal(), 1)
	}

	dist := diag * 0.9
	offset := mgl32.Vec3{0, -1, 0.8}.Normalize().Mul(dist)
	return Pose{
		Position: center.Add(offset),
		Target:   center,
		Up:       mgl32.Vec3{0, 0, 1},
		Forward:  mgl32.Vec3{0, 1, 0},
		Near:     max(0.05, dist/1000),
		Far:      (dist + diag) * 2 * farMultiplier,
		Fallback: true,
	}
}
