// Package bitmap provides the index set used for per-point bookkeeping.
//
// Pending selections, dirty colour queues, ML overlays and compaction
// masks are all sets of point indices. They are created as Set values
// from the start, so callers never have to normalise ad hoc containers.
package bitmap
