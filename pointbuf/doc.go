// Package pointbuf holds the canonical per-point arrays of a loaded point cloud.
//
// A Store is sized once to the dataset's point count and never grows. Points
// are never materialised as objects: position, colour, status, selection,
// intensity and LOD identity live in flat, equally sized arrays indexed by the
// point's buffer index.
//
// # Displayed colour
//
// The displayed colour of a point is derived, never stored independently.
// FlushDirty recomputes it for every queued point with this precedence:
//
//	selection tint  (selection != None)
//	deleted gray    (status == Deleted)
//	overlay tint    (point is part of the ML overlay)
//	intensity gray  (or the tile rgb when the store carries no intensity)
//
// A point marked for deletion while already deleted therefore shows the
// selection tint, not gray.
//
// # Writers
//
// Reads and fine-grained mutations are guarded by an internal RWMutex. Bulk
// rewrites (tile streaming, compaction) additionally take the writer lease via
// AcquireWriter, which makes the two mutually exclusive on one store.
//
// Compact never mutates a store in place; it returns a new, smaller one.
package pointbuf
