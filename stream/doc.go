// Package stream loads point cloud tiles into a pointbuf.Store.
//
// Workers fetch and decode tiles concurrently; a single committer goroutine
// owns the store's writer lease and copies decoded payloads into place.
// Tiles may finish in any order, but only the contiguous loaded prefix
// [0, Renderable) is exposed for drawing and picking.
//
// Transient fetch failures are retried with exponential backoff. Malformed
// tiles are never retried. Either way a failed tile is skipped, its siblings
// continue, and the renderable prefix stops at the gap until RetryFailed
// fills it.
package stream
