package selection

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hupe1980/pcedit/event"
	"github.com/hupe1980/pcedit/pointbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	viewW = 800
	viewH = 600
)

// topDown looks straight down the -Z axis from height 10 onto the origin.
func topDown() Camera {
	return Camera{
		View:       mgl32.LookAtV(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}),
		Projection: mgl32.Perspective(mgl32.DegToRad(60), float32(viewW)/viewH, 0.1, 100),
		Width:      viewW,
		Height:     viewH,
		Distance:   10,
	}
}

var center = Pointer{X: viewW / 2, Y: viewH / 2}

type fixture struct {
	bus    *event.Bus
	store  *pointbuf.Store
	engine *Engine
}

// newFixture creates n points stacked close to the origin, plus whatever
// extra points are given, and opens a session with tool.
func newFixture(t *testing.T, n int, tool event.Tool, extra ...mgl32.Vec3) *fixture {
	t.Helper()
	bus := event.NewBus()
	e := New(bus, Options{})
	t.Cleanup(e.Close)
	e.SetCamera(topDown())

	store := pointbuf.New(n + len(extra))
	for i := 0; i < n; i++ {
		store.SetPoint(i, mgl32.Vec3{0.01 * float32(i), 0, 0}, [3]uint8{}, 100)
	}
	for i, p := range extra {
		store.SetPoint(n+i, p, [3]uint8{}, 100)
	}
	bus.StoreReplaced.Publish(event.StoreReplaced{Store: store, Renderable: store.Len()})
	bus.SessionChanged.Publish(event.SessionChanged{DatasetID: "ds", SessionID: "s1"})
	bus.ToolChanged.Publish(event.ToolChanged{Tool: tool})
	return &fixture{bus: bus, store: store, engine: e}
}

func TestRayAt_Center(t *testing.T) {
	ray, err := topDown().RayAt(viewW/2, viewH/2)
	require.NoError(t, err)
	assert.InDelta(t, -1, ray.Direction.Z(), 1e-4)
	assert.InDelta(t, 0, ray.Origin.X(), 1e-4)
	assert.InDelta(t, 0, ray.Origin.Y(), 1e-4)

	_, err = Camera{}.RayAt(0, 0)
	assert.ErrorIs(t, err, ErrNoViewport)
}

func TestRayAt_TopLeftOrigin(t *testing.T) {
	ray, err := topDown().RayAt(viewW/2, 0)
	require.NoError(t, err)
	// The top edge of the viewport points towards +Y in world space.
	assert.Greater(t, ray.Direction.Y(), float32(0))
}

func TestThreshold(t *testing.T) {
	assert.InDelta(t, 0.25, Threshold(1, 0.5), 1e-6)
	assert.InDelta(t, 0.5, Threshold(50, 0.5), 1e-6)
	assert.InDelta(t, 1.0, Threshold(1000, 0.5), 1e-6)
}

func TestRaycast_Filters(t *testing.T) {
	points := []mgl32.Vec3{
		{0, 0, 0},
		{0.1, 0, 0},
		{3, 0, 0},   // too far off the ray
		{0, 0, 20},  // behind the camera
		{0, 0, 1},   // deleted
		{0, 0.1, 0}, // outside the renderable range
	}
	store := pointbuf.New(len(points))
	for i, p := range points {
		store.SetPoint(i, p, [3]uint8{}, 0)
	}
	store.ApplyStatus([]int{4}, pointbuf.StatusDeleted)

	ray, err := topDown().RayAt(viewW/2, viewH/2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, Raycast(store, 5, ray, topDown().PickRadius(0.5)))
}

func TestRaycast_RadiusFollowsTargetDistance(t *testing.T) {
	store := pointbuf.New(2)
	store.SetPoint(0, mgl32.Vec3{0.4, 0, 0}, [3]uint8{}, 0)
	store.SetPoint(1, mgl32.Vec3{1.5, 0, -90}, [3]uint8{}, 0)

	cam := topDown()
	ray, err := cam.RayAt(viewW/2, viewH/2)
	require.NoError(t, err)

	// Close to the target the radius is halved for every depth alike.
	assert.InDelta(t, 0.5, cam.PickRadius(1), 1e-6)
	assert.Equal(t, []int{0}, Raycast(store, 2, ray, cam.PickRadius(1)))

	cam.Distance = 100
	assert.InDelta(t, 2, cam.PickRadius(1), 1e-6)
	assert.Equal(t, []int{0, 1}, Raycast(store, 2, ray, cam.PickRadius(1)))
}

func TestEngine_StateMachine(t *testing.T) {
	f := newFixture(t, 3, event.ToolDelete)
	e := f.engine

	n, err := e.PointerMove(center)
	require.NoError(t, err)
	assert.Zero(t, n, "move while idle does nothing")

	n, err = e.PointerDown(Pointer{X: center.X, Y: center.Y, Button: ButtonSecondary})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, StateIdle, e.State())

	n, err = e.PointerDown(center)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, StateBrushing, e.State())

	e.PointerUp()
	assert.Equal(t, StateIdle, e.State())

	_, _ = e.PointerDown(center)
	e.Leave()
	assert.Equal(t, StateIdle, e.State())

	_, _ = e.PointerDown(center)
	e.Cancel()
	assert.Equal(t, StateIdle, e.State())
}

func TestEngine_RequiresSessionAndBrushTool(t *testing.T) {
	f := newFixture(t, 3, event.ToolML)

	n, err := f.engine.PointerDown(center)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, StateIdle, f.engine.State())

	f.bus.ToolChanged.Publish(event.ToolChanged{Tool: event.ToolDelete})
	f.bus.SessionChanged.Publish(event.SessionChanged{DatasetID: "ds"})
	n, _ = f.engine.PointerDown(center)
	assert.Zero(t, n)
}

func TestEngine_MarksWithoutChangingStatus(t *testing.T) {
	f := newFixture(t, 3, event.ToolDelete)

	_, err := f.engine.PointerDown(center)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Equal(t, pointbuf.SelectionDelete, f.store.Selection(i))
		assert.Equal(t, pointbuf.StatusAlive, f.store.Status(i))
		assert.Equal(t, pointbuf.DefaultPalette.Delete, f.store.Color(i))
	}
}

func TestEngine_DeleteThenRestoreIsExclusive(t *testing.T) {
	f := newFixture(t, 7, event.ToolDelete)
	e := f.engine

	_, err := e.PointerDown(center)
	require.NoError(t, err)
	e.PointerUp()

	del, res := e.PendingCount()
	assert.Equal(t, 7, del)
	assert.Zero(t, res)

	f.bus.ToolChanged.Publish(event.ToolChanged{Tool: event.ToolRestore})
	n, err := e.PointerDown(center)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	e.PointerUp()

	toDelete, toRestore := e.Pending()
	assert.Empty(t, toDelete)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, toRestore)
	for i := 0; i < 7; i++ {
		assert.Equal(t, pointbuf.SelectionRestore, f.store.Selection(i))
		assert.Equal(t, pointbuf.StatusAlive, f.store.Status(i))
	}
}

func TestEngine_Reset(t *testing.T) {
	f := newFixture(t, 4, event.ToolDelete)
	e := f.engine

	var events []event.SelectionReset
	f.bus.SelectionReset.Subscribe(func(ev event.SelectionReset) { events = append(events, ev) })

	_, err := e.Select(event.ToolDelete, []int{0, 1})
	require.NoError(t, err)
	_, err = e.Select(event.ToolRestore, []int{2})
	require.NoError(t, err)

	assert.Equal(t, 3, e.Reset())
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].Cleared)

	del, res := e.PendingCount()
	assert.Zero(t, del)
	assert.Zero(t, res)
	for i := 0; i < 4; i++ {
		assert.Equal(t, pointbuf.SelectionNone, f.store.Selection(i))
		assert.Equal(t, pointbuf.IntensityGray(100), f.store.Color(i))
	}
}

func TestEngine_ResetWithoutStore(t *testing.T) {
	bus := event.NewBus()
	e := New(bus, Options{})
	defer e.Close()

	published := false
	bus.SelectionReset.Subscribe(func(event.SelectionReset) { published = true })

	assert.Zero(t, e.Reset())
	assert.False(t, published)
}

func TestEngine_SelectSkipsInvalid(t *testing.T) {
	f := newFixture(t, 4, event.ToolDelete)

	n, err := f.engine.Select(event.ToolDelete, []int{0, 3, 9, -1})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.engine.Select(event.ToolML, []int{0})
	assert.ErrorIs(t, err, ErrNotBrushTool)
}

func TestEngine_SelectDeletedPoints(t *testing.T) {
	f := newFixture(t, 3, event.ToolRestore)
	f.store.ApplyStatus([]int{0, 1}, pointbuf.StatusDeleted)

	n, err := f.engine.Select(event.ToolRestore, []int{0})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.engine.Select(event.ToolDelete, []int{1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	toDelete, toRestore := f.engine.Pending()
	assert.Equal(t, []int{1}, toDelete)
	assert.Equal(t, []int{0}, toRestore)
	assert.Equal(t, pointbuf.SelectionRestore, f.store.Selection(0))
	assert.Equal(t, pointbuf.SelectionDelete, f.store.Selection(1))

	// Brushing still only picks Alive points.
	n, err = f.engine.PointerDown(center)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_IgnoresProgressOfOtherStore(t *testing.T) {
	f := newFixture(t, 3, event.ToolDelete)

	fresh := pointbuf.New(3)
	f.bus.StoreReplaced.Publish(event.StoreReplaced{Store: fresh, Renderable: 0})

	// A late event from the cancelled load of the previous store.
	f.bus.LoadProgress.Publish(event.LoadProgress{Store: f.store, Renderable: 3})
	n, err := f.engine.Select(event.ToolDelete, []int{0, 1, 2})
	require.NoError(t, err)
	assert.Zero(t, n)

	f.bus.LoadProgress.Publish(event.LoadProgress{Store: fresh, Renderable: 2})
	n, err = f.engine.Select(event.ToolDelete, []int{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEngine_SessionSwitchResets(t *testing.T) {
	f := newFixture(t, 2, event.ToolDelete)
	_, err := f.engine.Select(event.ToolDelete, []int{0, 1})
	require.NoError(t, err)

	f.bus.SessionChanged.Publish(event.SessionChanged{DatasetID: "ds", SessionID: "s2"})
	del, _ := f.engine.PendingCount()
	assert.Zero(t, del)
	assert.Equal(t, pointbuf.SelectionNone, f.store.Selection(0))
}

func TestEngine_CompactionRemapsPending(t *testing.T) {
	f := newFixture(t, 4, event.ToolDelete)
	f.store.ApplyStatus([]int{0}, pointbuf.StatusDeleted)
	_, err := f.engine.Select(event.ToolDelete, []int{3})
	require.NoError(t, err)

	res, err := pointbuf.Compact(f.store)
	require.NoError(t, err)
	f.bus.StoreReplaced.Publish(event.StoreReplaced{Store: res.Store, Renderable: res.Kept})

	toDelete, _ := f.engine.Pending()
	assert.Equal(t, []int{2}, toDelete)
}

func TestEngine_Forget(t *testing.T) {
	f := newFixture(t, 3, event.ToolDelete)
	_, err := f.engine.Select(event.ToolDelete, []int{0, 1, 2})
	require.NoError(t, err)

	f.engine.Forget([]int{0, 2})
	toDelete, _ := f.engine.Pending()
	assert.Equal(t, []int{1}, toDelete)
}
