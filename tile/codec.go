package tile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// Magic identifies the binary tile format ("PTCD").
	Magic uint32 = 0x50544344
	// Version is the format version written by Encode.
	Version uint16 = 1
	// HeaderSize is the byte offset of the first point record.
	HeaderSize = 10
	// RecordSize is the size of one point record.
	RecordSize = 16

	countOffset = 6
)

var (
	// ErrMalformed is the class of all tile decoding failures.
	ErrMalformed = errors.New("malformed tile")
	// ErrBadMagic is returned when the header magic does not match.
	ErrBadMagic = errors.New("bad magic")
	// ErrShortBuffer is returned when the payload is truncated.
	ErrShortBuffer = errors.New("short buffer")
)

// MalformedError wraps a decoding failure with the offending tile.
type MalformedError struct {
	TileID string
	cause  error
}

func (e *MalformedError) Error() string {
	if e.TileID == "" {
		return fmt.Sprintf("%s: %v", ErrMalformed, e.cause)
	}
	return fmt.Sprintf("%s %s: %v", ErrMalformed, e.TileID, e.cause)
}

func (e *MalformedError) Unwrap() []error { return []error{ErrMalformed, e.cause} }

// Payload holds one decoded tile in structure-of-arrays form.
type Payload struct {
	Version   uint16
	Count     int
	Positions []float32 // 3 per point
	RGB       []uint8   // 3 per point
	Intensity []uint8   // 1 per point
}

// Point is a single record used by Encode.
type Point struct {
	X, Y, Z   float32
	R, G, B   uint8
	Intensity uint8
}

// Decode parses a raw (uncompressed) tile. It never returns a partially
// filled payload.
func Decode(data []byte) (*Payload, error) {
	if len(data) < HeaderSize {
		return nil, &MalformedError{cause: fmt.Errorf("%w: %d bytes, header needs %d", ErrShortBuffer, len(data), HeaderSize)}
	}
	if m := binary.LittleEndian.Uint32(data[0:4]); m != Magic {
		return nil, &MalformedError{cause: fmt.Errorf("%w: 0x%08x", ErrBadMagic, m)}
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	count := int(binary.LittleEndian.Uint32(data[countOffset:HeaderSize]))

	need := HeaderSize + count*RecordSize
	if count < 0 || len(data) < need {
		return nil, &MalformedError{cause: fmt.Errorf("%w: %d points need %d bytes, have %d", ErrShortBuffer, count, need, len(data))}
	}

	p := &Payload{
		Version:   version,
		Count:     count,
		Positions: make([]float32, 3*count),
		RGB:       make([]uint8, 3*count),
		Intensity: make([]uint8, count),
	}

	rec := data[HeaderSize:need]
	for i := 0; i < count; i++ {
		r := rec[i*RecordSize : (i+1)*RecordSize]
		p.Positions[3*i] = math.Float32frombits(binary.LittleEndian.Uint32(r[0:4]))
		p.Positions[3*i+1] = math.Float32frombits(binary.LittleEndian.Uint32(r[4:8]))
		p.Positions[3*i+2] = math.Float32frombits(binary.LittleEndian.Uint32(r[8:12]))
		p.RGB[3*i] = r[12]
		p.RGB[3*i+1] = r[13]
		p.RGB[3*i+2] = r[14]
		p.Intensity[i] = r[15]
	}
	return p, nil
}

// Encode serializes points into the binary tile format.
func Encode(points []Point) []byte {
	buf := make([]byte, HeaderSize+len(points)*RecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	binary.LittleEndian.PutUint32(buf[countOffset:HeaderSize], uint32(len(points)))

	for i, pt := range points {
		r := buf[HeaderSize+i*RecordSize:]
		binary.LittleEndian.PutUint32(r[0:4], math.Float32bits(pt.X))
		binary.LittleEndian.PutUint32(r[4:8], math.Float32bits(pt.Y))
		binary.LittleEndian.PutUint32(r[8:12], math.Float32bits(pt.Z))
		r[12] = pt.R
		r[13] = pt.G
		r[14] = pt.B
		r[15] = pt.Intensity
	}
	return buf
}
