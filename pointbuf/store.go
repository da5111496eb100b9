package pointbuf

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hupe1980/pcedit/internal/bitmap"
)

// Status is the committed state of a point.
type Status uint8

const (
	// StatusAlive is the default state of a loaded point.
	StatusAlive Status = iota
	// StatusDeleted marks a point removed by an accepted operation.
	StatusDeleted
)

func (s Status) String() string {
	if s == StatusDeleted {
		return "deleted"
	}
	return "alive"
}

// Selection is the pending (uncommitted) brush state of a point.
type Selection uint8

const (
	// SelectionNone means the point is not part of a pending edit.
	SelectionNone Selection = iota
	// SelectionDelete marks the point for deletion on the next commit.
	SelectionDelete
	// SelectionRestore marks the point for restoration on the next commit.
	SelectionRestore
)

func (s Selection) String() string {
	switch s {
	case SelectionDelete:
		return "delete"
	case SelectionRestore:
		return "restore"
	default:
		return "none"
	}
}

// ErrOutOfRange is returned when a write does not fit the store.
var ErrOutOfRange = errors.New("pointbuf: index out of range")

// Options configures a Store.
type Options struct {
	// Intensity enables the per-point intensity array. Without it, colours
	// fall back to the tile rgb.
	Intensity bool

	// Palette overrides the tint colours.
	Palette Palette
}

// WithIntensity enables or disables the intensity array.
func WithIntensity(enabled bool) func(*Options) {
	return func(o *Options) {
		o.Intensity = enabled
	}
}

// WithPalette sets the tint palette.
func WithPalette(p Palette) func(*Options) {
	return func(o *Options) {
		o.Palette = p
	}
}

// Store is the fixed-capacity set of per-point arrays.
type Store struct {
	mu sync.RWMutex

	n         int
	positions []float32 // 3n
	colors    []float32 // 3n, displayed
	base      []uint8   // 3n, tile rgb
	status    []Status
	selection []Selection
	intensity []uint8 // nil when disabled
	lod       []float32
	origin    []uint32 // global dataset index, ascending

	overlay *bitmap.Set
	dirty   *bitmap.Set
	palette Palette
	opts    Options

	lease lease
}

// New creates a store holding capacity points, all Alive with no selection.
func New(capacity int, optFns ...func(*Options)) *Store {
	o := Options{
		Intensity: true,
		Palette:   DefaultPalette,
	}
	for _, fn := range optFns {
		fn(&o)
	}

	s := &Store{
		opts:    o,
		palette: o.Palette,
		dirty:   bitmap.New(),
	}
	s.allocate(capacity)
	for i := 0; i < capacity; i++ {
		s.lod[i] = float32(i)
		s.origin[i] = uint32(i)
	}
	return s
}

func (s *Store) allocate(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	s.n = capacity
	s.positions = make([]float32, 3*capacity)
	s.colors = make([]float32, 3*capacity)
	s.base = make([]uint8, 3*capacity)
	s.status = make([]Status, capacity)
	s.selection = make([]Selection, capacity)
	s.lod = make([]float32, capacity)
	s.origin = make([]uint32, capacity)
	if s.opts.Intensity {
		s.intensity = make([]uint8, capacity)
	} else {
		s.intensity = nil
	}
	s.overlay = nil
	s.dirty.Clear()
}

// Reset returns every point to Alive/None/zero while keeping the capacity.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.n
	s.allocate(n)
	for i := 0; i < n; i++ {
		s.lod[i] = float32(i)
		s.origin[i] = uint32(i)
	}
}

// Len returns the logical point count.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.n
}

// HasIntensity reports whether the store carries intensities.
func (s *Store) HasIntensity() bool {
	return s.opts.Intensity
}

// SetPoint writes one point and recomputes its colour.
// The caller guarantees 0 <= i < Len.
func (s *Store) SetPoint(i int, pos mgl32.Vec3, rgb [3]uint8, intensity uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := 3 * i
	copy(s.positions[o:o+3], pos[:])
	copy(s.base[o:o+3], rgb[:])
	if s.intensity != nil {
		s.intensity[i] = intensity
	}
	s.recolor(i)
}

// WriteBlock copies a decoded tile into the arrays starting at base.
// positions holds 3 floats per point, rgb 3 bytes per point and intensity
// (optional) 1 byte per point.
func (s *Store) WriteBlock(base int, positions []float32, rgb []uint8, intensity []uint8) error {
	count := len(positions) / 3
	if len(positions) != 3*count || len(rgb) != 3*count {
		return fmt.Errorf("pointbuf: inconsistent block: %d position floats, %d color bytes", len(positions), len(rgb))
	}
	if intensity != nil && len(intensity) != count {
		return fmt.Errorf("pointbuf: inconsistent block: %d intensities for %d points", len(intensity), count)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if base < 0 || base+count > s.n {
		return fmt.Errorf("%w: block [%d, %d) exceeds %d", ErrOutOfRange, base, base+count, s.n)
	}

	copy(s.positions[3*base:], positions)
	copy(s.base[3*base:], rgb)
	if s.intensity != nil && intensity != nil {
		copy(s.intensity[base:], intensity)
	}
	for i := base; i < base+count; i++ {
		s.recolor(i)
	}
	return nil
}

// MarkDirty queues a point for colour recomputation.
func (s *Store) MarkDirty(i int) {
	s.mu.Lock()
	s.dirty.Add(uint32(i))
	s.mu.Unlock()
}

// FlushDirty recomputes the colour of every queued point and returns how
// many were recomputed.
func (s *Store) FlushDirty() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() int {
	n := 0
	s.dirty.ForEach(func(id uint32) bool {
		if int(id) < s.n {
			s.recolor(int(id))
			n++
		}
		return true
	})
	s.dirty.Clear()
	return n
}

// SetSelection updates the pending selection of a point and queues it for
// colour recomputation. Status is never touched.
func (s *Store) SetSelection(i int, sel Selection) {
	s.mu.Lock()
	s.selection[i] = sel
	s.dirty.Add(uint32(i))
	s.mu.Unlock()
}

// ApplyStatus commits a status to the given points, clears their selection
// and recomputes their colours immediately.
func (s *Store) ApplyStatus(indices []int, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, i := range indices {
		if i < 0 || i >= s.n {
			continue
		}
		s.status[i] = st
		s.selection[i] = SelectionNone
		s.recolor(i)
	}
}

// SetOverlay replaces the overlay set and recolours the affected points.
// A nil set clears the overlay.
func (s *Store) SetOverlay(set *bitmap.Set) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.overlay != nil {
		s.dirty.Or(s.overlay)
	}
	s.overlay = nil
	if set != nil && !set.IsEmpty() {
		s.overlay = set.Clone()
		s.dirty.Or(s.overlay)
	}
	s.flushLocked()
}

// Overlay returns a copy of the overlay set, or nil.
func (s *Store) Overlay() *bitmap.Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.overlay == nil {
		return nil
	}
	return s.overlay.Clone()
}

// Position returns the position of point i.
func (s *Store) Position(i int) mgl32.Vec3 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o := 3 * i
	return mgl32.Vec3{s.positions[o], s.positions[o+1], s.positions[o+2]}
}

// Color returns the displayed colour of point i.
func (s *Store) Color(i int) mgl32.Vec3 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o := 3 * i
	return mgl32.Vec3{s.colors[o], s.colors[o+1], s.colors[o+2]}
}

// Status returns the committed status of point i.
func (s *Store) Status(i int) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status[i]
}

// Selection returns the pending selection of point i.
func (s *Store) Selection(i int) Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection[i]
}

// Intensity returns the intensity of point i, if the store has one.
func (s *Store) Intensity(i int) (uint8, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.intensity == nil {
		return 0, false
	}
	return s.intensity[i], true
}

// LOD returns the level-of-detail identity of point i.
func (s *Store) LOD(i int) float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lod[i]
}

// Origin returns the global dataset index of point i. It equals i until the
// store is compacted.
func (s *Store) Origin(i int) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.origin[i]
}

// IndexOf maps a global dataset index back to the current buffer index.
func (s *Store) IndexOf(origin uint32) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.Search(s.n, func(k int) bool { return s.origin[k] >= origin })
	if i < s.n && s.origin[i] == origin {
		return i, true
	}
	return 0, false
}

// CountStatus returns the number of points with the given status.
func (s *Store) CountStatus(st Status) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, v := range s.status {
		if v == st {
			n++
		}
	}
	return n
}

// Scan calls fn for the first n points under a single read lock and stops
// when fn returns false. fn must not call back into the store.
func (s *Store) Scan(n int, fn func(i int, p mgl32.Vec3, st Status) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > s.n {
		n = s.n
	}
	for i := 0; i < n; i++ {
		o := 3 * i
		if !fn(i, mgl32.Vec3{s.positions[o], s.positions[o+1], s.positions[o+2]}, s.status[i]) {
			return
		}
	}
}

// ScanSelection calls fn for every point with a pending selection.
func (s *Store) ScanSelection(fn func(i int, sel Selection)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, sel := range s.selection {
		if sel != SelectionNone {
			fn(i, sel)
		}
	}
}

// Sample returns up to max positions from the first n points using a fixed
// stride.
func (s *Store) Sample(n, max int) []mgl32.Vec3 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > s.n {
		n = s.n
	}
	if n <= 0 || max <= 0 {
		return nil
	}
	stride := 1
	if n > max {
		stride = (n + max - 1) / max
	}
	out := make([]mgl32.Vec3, 0, n/stride+1)
	for i := 0; i < n; i += stride {
		o := 3 * i
		out = append(out, mgl32.Vec3{s.positions[o], s.positions[o+1], s.positions[o+2]})
	}
	return out
}

// Colors copies the displayed colours of the first n points into dst and
// returns it.
func (s *Store) Colors(dst []float32, n int) []float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > s.n {
		n = s.n
	}
	return append(dst[:0], s.colors[:3*n]...)
}
