// Package tilesource fetches raw tile payloads.
//
// A Source returns the bytes of one tile exactly as stored, possibly wrapped
// in a zstd or LZ4 envelope; decoding is left to the caller. Implementations
// must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - HTTPSource: the dataset API (GET /datasets/{id}/tiles/{z}/{x}/{y})
//   - LocalSource: {root}/{dataset}/tiles/{z}_{x}_{y}.bin via mmap
//   - MemorySource: in-memory, for tests and tooling
//   - CachingSource: badger-backed read-through cache around any Source
//   - s3.Source and minio.Source in the sub-packages
package tilesource
