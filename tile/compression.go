package tile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the transport envelope around a tile payload.
type Compression uint8

const (
	// CompressionNone means the payload is a raw PTCD tile.
	CompressionNone Compression = iota
	// CompressionLZ4 is an LZ4 frame (fast, used for hot caches).
	CompressionLZ4
	// CompressionZSTD is a zstd frame (better ratio, used for object storage).
	CompressionZSTD
)

func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "none"
	}
}

const (
	zstdFrameMagic uint32 = 0xFD2FB528
	lz4FrameMagic  uint32 = 0x184D2204
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// Detect reports the envelope of data by its frame magic.
func Detect(data []byte) Compression {
	if len(data) < 4 {
		return CompressionNone
	}
	switch binary.LittleEndian.Uint32(data[0:4]) {
	case zstdFrameMagic:
		return CompressionZSTD
	case lz4FrameMagic:
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// Wrap compresses a raw tile into the given envelope.
func Wrap(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionZSTD:
		enc := getZstdEncoder()
		defer putZstdEncoder(enc)
		return enc.EncodeAll(data, nil), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("tile: lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("tile: lz4 compress: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return data, nil
	}
}

// Unwrap removes a zstd or LZ4 envelope. Raw payloads are returned as is.
// A corrupt envelope is reported as a malformed tile.
func Unwrap(data []byte) ([]byte, error) {
	switch Detect(data) {
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, &MalformedError{cause: fmt.Errorf("zstd envelope: %w", err)}
		}
		return out, nil
	case CompressionLZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, &MalformedError{cause: fmt.Errorf("lz4 envelope: %w", err)}
		}
		return out, nil
	default:
		return data, nil
	}
}

// DecodeTile unwraps the envelope and decodes the payload, attributing any
// failure to t.
func DecodeTile(t Tile, data []byte) (*Payload, error) {
	raw, err := Unwrap(data)
	if err == nil {
		var p *Payload
		if p, err = Decode(raw); err == nil {
			return p, nil
		}
	}
	if me, ok := err.(*MalformedError); ok {
		me.TileID = t.ID
	}
	return nil, err
}
