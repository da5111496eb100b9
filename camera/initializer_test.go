package camera

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hupe1980/pcedit/event"
	"github.com/hupe1980/pcedit/pointbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeFrom(points []mgl32.Vec3) *pointbuf.Store {
	s := pointbuf.New(len(points))
	for i, p := range points {
		s.SetPoint(i, p, [3]uint8{}, 0)
	}
	return s
}

func TestInitializer_OncePerLoad(t *testing.T) {
	bus := event.NewBus()
	in := NewInitializer(bus, InitializerOptions{Threshold: 1000})
	defer in.Close()

	var framed []event.CameraFramed
	bus.CameraFramed.Subscribe(func(ev event.CameraFramed) { framed = append(framed, ev) })

	store := storeFrom(corridor(3000, false))
	bus.StoreReplaced.Publish(event.StoreReplaced{Store: store})

	bus.LoadProgress.Publish(event.LoadProgress{Signature: "a", Store: store, Renderable: 500})
	assert.Empty(t, framed)

	bus.LoadProgress.Publish(event.LoadProgress{Signature: "a", Store: store, Renderable: 1500})
	require.Len(t, framed, 1)
	assert.False(t, framed[0].Fallback)

	bus.LoadProgress.Publish(event.LoadProgress{Signature: "a", Store: store, Renderable: 3000, Done: true})
	assert.Len(t, framed, 1)

	pose, ok := in.Pose()
	assert.True(t, ok)
	assert.Equal(t, framed[0].Target, pose.Target)

	// A new load frames again.
	bus.LoadProgress.Publish(event.LoadProgress{Signature: "b", Store: store, Renderable: 2000})
	assert.Len(t, framed, 2)
}

func TestInitializer_FallbackBelowThreshold(t *testing.T) {
	bus := event.NewBus()
	in := NewInitializer(bus, InitializerOptions{})
	defer in.Close()

	store := storeFrom(corridor(100, false))
	bus.StoreReplaced.Publish(event.StoreReplaced{Store: store})

	_, ok := in.Observe(event.LoadProgress{Signature: "s", Store: store, Renderable: 100})
	assert.False(t, ok)

	pose, ok := in.Observe(event.LoadProgress{Signature: "s", Store: store, Renderable: 100, Done: true})
	require.True(t, ok)
	assert.True(t, pose.Fallback)
	assert.Equal(t, store.Bounds(100).Center(), pose.Target)
}

func TestInitializer_NoStore(t *testing.T) {
	in := NewInitializer(event.NewBus(), InitializerOptions{})
	defer in.Close()

	_, ok := in.Observe(event.LoadProgress{Signature: "s", Renderable: 50000, Done: true})
	assert.False(t, ok)
}

func TestInitializer_IgnoresOtherStore(t *testing.T) {
	bus := event.NewBus()
	in := NewInitializer(bus, InitializerOptions{Threshold: 10})
	defer in.Close()

	old := storeFrom(corridor(100, false))
	store := pointbuf.New(100)
	bus.StoreReplaced.Publish(event.StoreReplaced{Store: store})

	// Late progress from the previous load must not frame over unfilled points.
	_, ok := in.Observe(event.LoadProgress{Signature: "old", Store: old, Renderable: 100, Done: true})
	assert.False(t, ok)
	_, framed := in.Pose()
	assert.False(t, framed)
}
