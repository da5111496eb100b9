package tile

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePoints(n int) []Point {
	pts := make([]Point, n)
	for i := range pts {
		pts[i] = Point{
			X: float32(i), Y: float32(2 * i), Z: 0.5,
			R: uint8(i), G: 128, B: 255,
			Intensity: uint8(i * 3),
		}
	}
	return pts
}

func TestDecode(t *testing.T) {
	data := Encode(samplePoints(4))
	require.Len(t, data, HeaderSize+4*RecordSize)

	p, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Version, p.Version)
	assert.Equal(t, 4, p.Count)
	assert.Equal(t, []float32{3, 6, 0.5}, p.Positions[9:12])
	assert.Equal(t, []uint8{3, 128, 255}, p.RGB[9:12])
	assert.Equal(t, uint8(9), p.Intensity[3])
}

func TestDecode_Empty(t *testing.T) {
	p, err := Decode(Encode(nil))
	require.NoError(t, err)
	assert.Equal(t, 0, p.Count)
}

func TestDecode_BadMagic(t *testing.T) {
	data := Encode(samplePoints(2))
	binary.LittleEndian.PutUint32(data[0:4], 0xDEADBEEF)

	p, err := Decode(data)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecode_ShortBuffer(t *testing.T) {
	data := Encode(samplePoints(3))

	_, err := Decode(data[:HeaderSize-1])
	assert.ErrorIs(t, err, ErrShortBuffer)

	_, err = Decode(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrMalformed)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestDecode_TrailingBytesIgnored(t *testing.T) {
	data := append(Encode(samplePoints(2)), 0xFF, 0xFF)
	p, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Count)
}
