package oplog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrVersionConflict is returned when the base version of an append does
	// not match the session version.
	ErrVersionConflict = errors.New("oplog: version mismatch")

	// ErrStaleSession is returned by Commit after a conflict until Refresh
	// succeeds.
	ErrStaleSession = errors.New("oplog: session is stale")

	// ErrSessionNotFound is returned for unknown sessions.
	ErrSessionNotFound = errors.New("oplog: session not found")

	// ErrSessionClosed is returned when appending to a closed session.
	ErrSessionClosed = errors.New("oplog: session closed")
)

// Action is the kind of an operation.
type Action string

const (
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
)

// Op is one edit operation. Indices are global dataset indices.
type Op struct {
	Action  Action   `json:"action"`
	Indices []uint32 `json:"indices"`
}

// Session is the server-side edit session.
type Session struct {
	ID        string    `json:"id"`
	DatasetID string    `json:"dataset_id"`
	Version   uint64    `json:"version"`
	Closed    bool      `json:"closed"`
	CreatedAt time.Time `json:"created_at"`
}

// Record is an accepted operation.
type Record struct {
	ID        string    `json:"id"`
	Version   uint64    `json:"version"`
	Op        Op        `json:"op"`
	CreatedAt time.Time `json:"created_at"`
}

// Backend is the authority for session versions.
type Backend interface {
	// CreateSession opens a new session at version 0.
	CreateSession(ctx context.Context, datasetID string) (Session, error)
	// Session returns the current state of a session.
	Session(ctx context.Context, datasetID, sessionID string) (Session, error)
	// Append applies ops if baseVersion equals the session version and
	// returns one record per op. Otherwise it fails with ErrVersionConflict.
	Append(ctx context.Context, datasetID, sessionID string, baseVersion uint64, ops []Op) ([]Record, error)
}

// History is implemented by backends that can list the accepted operations
// of a session in version order.
type History interface {
	Operations(ctx context.Context, datasetID, sessionID string) ([]Record, error)
}

// CommitError reports a commit that stopped before all operations were
// accepted.
type CommitError struct {
	// Accepted is the number of operations accepted before the failure.
	Accepted int
	// Remaining is the number of operations not accepted, including the
	// failed one.
	Remaining int
	// RemainingIndices is the number of indices in those operations.
	RemainingIndices int
	// Version is the session version after the accepted operations.
	Version uint64
	Err     error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("oplog: commit stopped after %d of %d operations at version %d: %v",
		e.Accepted, e.Accepted+e.Remaining, e.Version, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
