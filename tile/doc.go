// Package tile describes point cloud tiles and their binary wire format.
//
// A tile is a contiguous range [BaseIndex, BaseIndex+Points) of the global
// point index space. Its payload is a little-endian "PTCD" record stream:
//
//	offset 0  u32 magic 0x50544344
//	offset 4  u16 version
//	offset 6  u32 point count
//	offset 10 count × {x, y, z f32; r, g, b, intensity u8}
//
// Payloads may travel inside a zstd or LZ4 frame; Unwrap detects the frame by
// its magic number.
package tile
