package pcedit

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pcedit/oplog"
	"github.com/hupe1980/pcedit/pointbuf"
	"github.com/hupe1980/pcedit/stream"
	"github.com/hupe1980/pcedit/tile"
	"github.com/hupe1980/pcedit/tilesource"
)

var (
	// ErrNoSession is returned when an operation needs an open session.
	ErrNoSession = errors.New("no open session")

	// ErrNoStore is returned before any dataset was loaded.
	ErrNoStore = errors.New("no dataset loaded")

	// ErrNoBackend is returned when no operation backend is configured.
	ErrNoBackend = errors.New("no operation backend configured")

	// ErrNoPreview is returned by ApplyOverlay without a painted preview.
	ErrNoPreview = errors.New("no ML preview")

	// ErrNoCatalog is returned by Load without a tile list when the
	// source cannot list tiles.
	ErrNoCatalog = errors.New("no tile catalog configured")

	// ErrNoMLClient is returned when no ML client is configured.
	ErrNoMLClient = errors.New("no ML client configured")

	// ErrVersionConflict is returned when the server rejected an operation
	// because the session moved on.
	ErrVersionConflict = errors.New("version conflict")

	// ErrStaleSession is returned after a version conflict until the
	// session is reopened.
	ErrStaleSession = errors.New("session is stale")

	// ErrMalformedTile is returned for tiles that cannot be decoded.
	ErrMalformedTile = errors.New("malformed tile")

	// ErrNotFound is returned for missing datasets, tiles or sessions.
	ErrNotFound = errors.New("not found")

	// ErrBusy is returned when a bulk writer already holds the store.
	ErrBusy = errors.New("store busy")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("editor closed")
)

// ErrCommit indicates a commit that stopped part-way.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrCommit struct {
	Accepted  int
	Remaining int
	Version   uint64
	cause     error
}

func (e *ErrCommit) Error() string {
	return fmt.Sprintf("commit stopped after %d operations, %d remaining, at version %d: %v",
		e.Accepted, e.Remaining, e.Version, e.cause)
}

func (e *ErrCommit) Unwrap() error { return e.cause }

// ErrTransientIO indicates a tile fetch that failed for a reason that may
// go away on retry.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrTransientIO struct {
	TileID     string
	StatusCode int
	cause      error
}

func (e *ErrTransientIO) Error() string {
	return fmt.Sprintf("transient I/O on tile %s: %v", e.TileID, e.cause)
}

func (e *ErrTransientIO) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Commit failures keep their counts; the cause is translated too.
	var ce *oplog.CommitError
	if errors.As(err, &ce) {
		return &ErrCommit{
			Accepted:  ce.Accepted,
			Remaining: ce.Remaining,
			Version:   ce.Version,
			cause:     translateError(ce.Err),
		}
	}

	switch {
	case errors.Is(err, oplog.ErrVersionConflict):
		return fmt.Errorf("%w: %w", ErrVersionConflict, err)
	case errors.Is(err, oplog.ErrStaleSession):
		return fmt.Errorf("%w: %w", ErrStaleSession, err)
	case errors.Is(err, tile.ErrMalformed):
		return fmt.Errorf("%w: %w", ErrMalformedTile, err)
	case errors.Is(err, oplog.ErrSessionNotFound),
		errors.Is(err, tilesource.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, pointbuf.ErrWriterBusy),
		errors.Is(err, stream.ErrLoadInProgress):
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}

	var fe *tilesource.FetchError
	if errors.As(err, &fe) && fe.Transient() {
		return &ErrTransientIO{TileID: fe.TileID, StatusCode: fe.StatusCode, cause: err}
	}

	return err
}
