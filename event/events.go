package event

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/hupe1980/pcedit/pointbuf"
)

// Tool is the active editing tool.
type Tool uint8

const (
	// ToolNone disables brushing.
	ToolNone Tool = iota
	// ToolDelete marks points for deletion.
	ToolDelete
	// ToolRestore marks deleted points for restoration.
	ToolRestore
	// ToolML selects points from an ML preview instead of the brush.
	ToolML
)

func (t Tool) String() string {
	switch t {
	case ToolDelete:
		return "delete"
	case ToolRestore:
		return "restore"
	case ToolML:
		return "ml"
	default:
		return "none"
	}
}

// IsBrush reports whether the tool paints with the brush.
func (t Tool) IsBrush() bool {
	return t == ToolDelete || t == ToolRestore
}

// ToolChanged is published when the active tool changes.
type ToolChanged struct {
	Tool Tool
}

// SessionChanged is published when the active edit session changes.
// An empty SessionID means no session.
type SessionChanged struct {
	DatasetID string
	SessionID string
	Version   uint64
}

// SelectionReset is published after pending selections are cleared.
type SelectionReset struct {
	Cleared int
}

// LoadProgress reports tile streaming progress.
type LoadProgress struct {
	Signature string
	// Store is the buffer being filled. Subscribers drop progress for a store
	// they are not attached to.
	Store       *pointbuf.Store
	TilesLoaded int
	TilesFailed int
	TilesTotal  int
	PointsTotal int
	// Renderable is the end of the contiguous loaded prefix.
	Renderable int
	Done       bool
}

// StoreReplaced is published when a new point store becomes current, either
// for a fresh load or after compaction.
type StoreReplaced struct {
	Store      *pointbuf.Store
	Renderable int
	Bounds     pointbuf.Box
}

// Committed is published after a commit attempt, successful or not.
type Committed struct {
	SessionID string
	Version   uint64
	Accepted  int
	Remaining int
	Err       error
}

// CameraFramed is published when the camera pose has been initialised.
type CameraFramed struct {
	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3
	Near     float32
	Far      float32
	Fallback bool
}

// Bus groups the topics shared by the editor's components.
type Bus struct {
	ToolChanged    Topic[ToolChanged]
	SessionChanged Topic[SessionChanged]
	SelectionReset Topic[SelectionReset]
	LoadProgress   Topic[LoadProgress]
	StoreReplaced  Topic[StoreReplaced]
	Committed      Topic[Committed]
	CameraFramed   Topic[CameraFramed]
}

// NewBus creates a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{}
}
