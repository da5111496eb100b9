package render

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/pcedit/pointbuf"
)

// ErrInvalidParameter is returned for out-of-range view parameters.
var ErrInvalidParameter = errors.New("render: invalid parameter")

const (
	DefaultPointSize = 0.05
	DefaultPixelStep = 1
)

// State is the renderer-facing view state. It is safe for concurrent use.
type State struct {
	mu         sync.RWMutex
	renderable int
	bounds     pointbuf.Box
	pointSize  float32
	pixelStep  int
}

// NewState returns a state with default point size and no thinning.
func NewState() *State {
	return &State{
		bounds:    pointbuf.EmptyBox(),
		pointSize: DefaultPointSize,
		pixelStep: DefaultPixelStep,
	}
}

// SetRenderable sets the end of the drawable range [0, n).
func (s *State) SetRenderable(n int) {
	s.mu.Lock()
	s.renderable = max(n, 0)
	s.mu.Unlock()
}

// Renderable returns the end of the drawable range.
func (s *State) Renderable() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.renderable
}

// SetBounds updates the scene bounds.
func (s *State) SetBounds(b pointbuf.Box) {
	s.mu.Lock()
	s.bounds = b
	s.mu.Unlock()
}

// Bounds returns the scene bounds.
func (s *State) Bounds() pointbuf.Box {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bounds
}

// SetPointSize sets the point size in world units, within [0.01, 5].
func (s *State) SetPointSize(v float32) error {
	if v < 0.01 || v > 5 {
		return fmt.Errorf("%w: point size %v not in [0.01, 5]", ErrInvalidParameter, v)
	}
	s.mu.Lock()
	s.pointSize = v
	s.mu.Unlock()
	return nil
}

// PointSize returns the point size.
func (s *State) PointSize() float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pointSize
}

// SetPixelStep sets the thinning step within [1, 16]. A step of k draws
// every k-th point by level-of-detail identity.
func (s *State) SetPixelStep(k int) error {
	if k < 1 || k > 16 {
		return fmt.Errorf("%w: pixel step %d not in [1, 16]", ErrInvalidParameter, k)
	}
	s.mu.Lock()
	s.pixelStep = k
	s.mu.Unlock()
	return nil
}

// PixelStep returns the thinning step.
func (s *State) PixelStep() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pixelStep
}

// Visible reports whether a point with the given level-of-detail identity
// survives thinning.
func (s *State) Visible(lod float32) bool {
	step := s.PixelStep()
	return step <= 1 || int64(lod)%int64(step) == 0
}

// VisibleCount returns how many of the drawable points of store survive
// thinning.
func (s *State) VisibleCount(store *pointbuf.Store) int {
	n := min(s.Renderable(), store.Len())
	step := s.PixelStep()
	if step <= 1 {
		return n
	}
	count := 0
	for i := 0; i < n; i++ {
		if int64(store.LOD(i))%int64(step) == 0 {
			count++
		}
	}
	return count
}
