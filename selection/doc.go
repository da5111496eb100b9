// Package selection turns pointer gestures into pending point selections.
//
// An Engine follows a two-state machine. Pressing the primary button with a
// brush tool and an open session starts brushing; every move casts a ray
// through the pointer and marks the Alive points near it; releasing,
// cancelling or leaving the viewport ends brushing. Marked points are kept in
// two exclusive index sets, one per tool, until they are committed or reset.
// Committed status is never changed here.
package selection
