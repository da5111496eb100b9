// Package render holds the view state shared with the renderer: the drawable
// point range, scene bounds, point size and level-of-detail thinning, plus a
// scheduler that coalesces redraw requests to one per frame.
package render
