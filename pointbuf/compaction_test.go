package pointbuf

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hupe1980/pcedit/internal/bitmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompact_KeepsAliveInOrder(t *testing.T) {
	s := New(5)
	for i := 0; i < 5; i++ {
		s.SetPoint(i, mgl32.Vec3{float32(i), 0, 0}, [3]uint8{uint8(i), 0, 0}, uint8(10*i))
	}
	s.ApplyStatus([]int{1, 3}, StatusDeleted)
	s.SetOverlay(bitmap.Of(4))

	res, err := Compact(s)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Removed)
	assert.Equal(t, 3, res.Kept)
	require.Equal(t, 3, res.Store.Len())

	for j, orig := range []int{0, 2, 4} {
		assert.Equal(t, mgl32.Vec3{float32(orig), 0, 0}, res.Store.Position(j))
		assert.Equal(t, uint32(orig), res.Store.Origin(j))
		assert.Equal(t, float32(orig), res.Store.LOD(j))
		assert.Equal(t, StatusAlive, res.Store.Status(j))
		v, _ := res.Store.Intensity(j)
		assert.Equal(t, uint8(10*orig), v)
	}

	assert.Equal(t, []uint32{2}, res.Store.Overlay().ToSlice())
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, res.Bounds.Min)
	assert.Equal(t, mgl32.Vec3{4, 0, 0}, res.Bounds.Max)

	idx, ok := res.Store.IndexOf(4)
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
	_, ok = res.Store.IndexOf(3)
	assert.False(t, ok)

	// the source store is not modified
	assert.Equal(t, 5, s.Len())
	assert.Equal(t, "", s.Writer())
}

func TestCompact_AliveCountMatchesLength(t *testing.T) {
	s := New(100)
	var deleted []int
	for i := 0; i < 100; i += 3 {
		deleted = append(deleted, i)
	}
	s.ApplyStatus(deleted, StatusDeleted)
	alive := s.CountStatus(StatusAlive)

	res, err := Compact(s)
	require.NoError(t, err)
	assert.Equal(t, alive, res.Store.Len())
	assert.Equal(t, len(deleted), res.Removed)
}

func TestCompact_RefusesWhileStreaming(t *testing.T) {
	s := New(2)
	release, err := s.AcquireWriter("stream")
	require.NoError(t, err)
	defer release()

	_, err = Compact(s)
	assert.ErrorIs(t, err, ErrWriterBusy)
}

func TestCompact_Empty(t *testing.T) {
	res, err := Compact(New(0))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Kept)
	assert.True(t, res.Bounds.Empty)
}
