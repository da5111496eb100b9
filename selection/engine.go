package selection

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hupe1980/pcedit/event"
	"github.com/hupe1980/pcedit/internal/bitmap"
	"github.com/hupe1980/pcedit/pointbuf"
)

// ErrNotBrushTool is returned by Select for tools that do not mark points.
var ErrNotBrushTool = errors.New("selection: tool does not select points")

// DefaultBrushRadius is the brush radius used when none is configured.
const DefaultBrushRadius = 0.5

// State is the brushing state.
type State uint8

const (
	// StateIdle waits for a pointer press.
	StateIdle State = iota
	// StateBrushing applies the tool on every pointer move.
	StateBrushing
)

func (s State) String() string {
	if s == StateBrushing {
		return "brushing"
	}
	return "idle"
}

// Button identifies a pointer button.
type Button uint8

const (
	ButtonPrimary Button = iota
	ButtonMiddle
	ButtonSecondary
)

// Pointer is a pointer event in viewport pixels.
type Pointer struct {
	X, Y   float32
	Button Button
}

// Options configures an Engine.
type Options struct {
	BrushRadius float32
	Logger      *slog.Logger
}

// Engine owns the pending selection of the current store.
type Engine struct {
	bus    *event.Bus
	logger *slog.Logger

	mu         sync.Mutex
	store      *pointbuf.Store
	renderable int
	tool       event.Tool
	session    string
	camera     Camera
	radius     float32
	state      State

	toDelete  *bitmap.Set
	toRestore *bitmap.Set

	unsubs []func()
}

// New creates an engine that follows tool, session and store changes on bus.
func New(bus *event.Bus, opts Options) *Engine {
	if opts.BrushRadius <= 0 {
		opts.BrushRadius = DefaultBrushRadius
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	e := &Engine{
		bus:       bus,
		logger:    opts.Logger,
		radius:    opts.BrushRadius,
		toDelete:  bitmap.New(),
		toRestore: bitmap.New(),
	}
	e.unsubs = append(e.unsubs,
		bus.ToolChanged.Subscribe(func(ev event.ToolChanged) {
			e.mu.Lock()
			e.tool = ev.Tool
			e.state = StateIdle
			e.mu.Unlock()
		}),
		bus.SessionChanged.Subscribe(func(ev event.SessionChanged) {
			e.mu.Lock()
			changed := e.session != ev.SessionID
			e.session = ev.SessionID
			e.state = StateIdle
			e.mu.Unlock()
			if changed {
				e.Reset()
			}
		}),
		bus.StoreReplaced.Subscribe(func(ev event.StoreReplaced) {
			e.attach(ev.Store, ev.Renderable)
		}),
		bus.LoadProgress.Subscribe(func(ev event.LoadProgress) {
			e.mu.Lock()
			if ev.Store == e.store {
				e.renderable = ev.Renderable
			}
			e.mu.Unlock()
		}),
	)
	return e
}

// attach switches to store and rebuilds the pending sets from its selection
// array. A compacted store carries selections over at new indices.
func (e *Engine) attach(store *pointbuf.Store, renderable int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.store = store
	e.renderable = renderable
	e.state = StateIdle
	e.toDelete.Clear()
	e.toRestore.Clear()
	if store == nil {
		return
	}
	store.ScanSelection(func(i int, sel pointbuf.Selection) {
		switch sel {
		case pointbuf.SelectionDelete:
			e.toDelete.Add(uint32(i))
		case pointbuf.SelectionRestore:
			e.toRestore.Add(uint32(i))
		}
	})
}

// SetCamera sets the view used for picking.
func (e *Engine) SetCamera(c Camera) {
	e.mu.Lock()
	e.camera = c
	e.mu.Unlock()
}

// SetBrushRadius sets the brush radius.
func (e *Engine) SetBrushRadius(r float32) {
	e.mu.Lock()
	e.radius = r
	e.mu.Unlock()
}

// State returns the brushing state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// PointerDown starts brushing when the primary button is pressed with a
// brush tool, an open session and a store. It returns the number of points
// marked at the press location.
func (e *Engine) PointerDown(p Pointer) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.Button != ButtonPrimary || e.session == "" || !e.tool.IsBrush() || e.store == nil {
		return 0, nil
	}
	e.state = StateBrushing
	return e.brushLocked(p)
}

// PointerMove applies the tool at the pointer while brushing.
func (e *Engine) PointerMove(p Pointer) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateBrushing {
		return 0, nil
	}
	return e.brushLocked(p)
}

// PointerUp ends brushing.
func (e *Engine) PointerUp() { e.end() }

// Cancel ends brushing, e.g. on pointer cancel.
func (e *Engine) Cancel() { e.end() }

// Leave ends brushing when the pointer leaves the viewport.
func (e *Engine) Leave() { e.end() }

func (e *Engine) end() {
	e.mu.Lock()
	e.state = StateIdle
	e.mu.Unlock()
}

func (e *Engine) brushLocked(p Pointer) (int, error) {
	ray, err := e.camera.RayAt(p.X, p.Y)
	if err != nil {
		return 0, err
	}
	hits := Raycast(e.store, e.renderable, ray, e.camera.PickRadius(e.radius))
	e.applyLocked(e.tool, hits)
	return len(hits), nil
}

// applyLocked marks indices with tool and moves them between the pending
// sets.
func (e *Engine) applyLocked(tool event.Tool, indices []int) {
	if len(indices) == 0 {
		return
	}
	sel, add, drop := pointbuf.SelectionDelete, e.toDelete, e.toRestore
	if tool == event.ToolRestore {
		sel, add, drop = pointbuf.SelectionRestore, e.toRestore, e.toDelete
	}
	for _, i := range indices {
		e.store.SetSelection(i, sel)
		add.Add(uint32(i))
		drop.Remove(uint32(i))
	}
	e.store.FlushDirty()
}

// Select marks the given buffer indices with tool without raycasting.
// Indices outside the renderable range are skipped. Unlike brushing, Select
// also marks Deleted points, so a deleted point can be queued for restore.
// It returns the number of points marked.
func (e *Engine) Select(tool event.Tool, indices []int) (int, error) {
	if !tool.IsBrush() {
		return 0, fmt.Errorf("%w: %s", ErrNotBrushTool, tool)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store == nil {
		return 0, nil
	}
	valid := indices[:0:0]
	for _, i := range indices {
		if i >= 0 && i < e.renderable {
			valid = append(valid, i)
		}
	}
	e.applyLocked(tool, valid)
	return len(valid), nil
}

// Pending returns the buffer indices marked for deletion and restoration.
func (e *Engine) Pending() (toDelete, toRestore []int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return toInts(e.toDelete), toInts(e.toRestore)
}

// PendingCount returns the sizes of both pending sets.
func (e *Engine) PendingCount() (toDelete, toRestore int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.toDelete.Len(), e.toRestore.Len()
}

// Forget drops indices from both pending sets without touching the store.
// It is used once their operation has been accepted.
func (e *Engine) Forget(indices []int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, i := range indices {
		e.toDelete.Remove(uint32(i))
		e.toRestore.Remove(uint32(i))
	}
}

// Reset clears both pending sets and the overlay, restores the colours of
// the affected points and publishes SelectionReset. It does nothing before a
// store exists.
func (e *Engine) Reset() int {
	e.mu.Lock()
	store := e.store
	if store == nil {
		e.mu.Unlock()
		return 0
	}
	cleared := e.toDelete.Len() + e.toRestore.Len()
	for _, set := range []*bitmap.Set{e.toDelete, e.toRestore} {
		set.ForEach(func(id uint32) bool {
			if int(id) < store.Len() {
				store.SetSelection(int(id), pointbuf.SelectionNone)
			}
			return true
		})
		set.Clear()
	}
	e.state = StateIdle
	e.mu.Unlock()

	store.SetOverlay(nil)
	store.FlushDirty()

	e.logger.Debug("selection reset", "cleared", cleared)
	e.bus.SelectionReset.Publish(event.SelectionReset{Cleared: cleared})
	return cleared
}

// Close detaches the engine from the bus.
func (e *Engine) Close() {
	for _, u := range e.unsubs {
		u()
	}
}

func toInts(s *bitmap.Set) []int {
	out := make([]int, 0, s.Len())
	s.ForEach(func(id uint32) bool {
		out = append(out, int(id))
		return true
	})
	return out
}
