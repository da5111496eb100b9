package oplog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/hupe1980/pcedit/oplog"

// DefaultChunkSize is the maximum number of indices per operation.
const DefaultChunkSize = 20000

// ApplyFunc is called once per accepted operation, in submission order,
// before the next operation is submitted.
type ApplyFunc func(op Op, rec Record)

// Options configures a Log.
type Options struct {
	ChunkSize int
	Logger    *slog.Logger
}

// Result summarises a successful commit.
type Result struct {
	// Accepted is the number of operations accepted.
	Accepted int
	// Indices is the number of indices submitted.
	Indices int
	// Version is the session version after the commit.
	Version uint64
}

// Log tracks one session and serialises commits against it.
type Log struct {
	backend   Backend
	logger    *slog.Logger
	tracer    trace.Tracer
	chunkSize int

	mu        sync.Mutex
	datasetID string
	sessionID string
	version   uint64
	stale     bool
}

// New creates a log for a session whose version is already known.
func New(backend Backend, s Session, opts Options) *Log {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Log{
		backend:   backend,
		logger:    opts.Logger,
		tracer:    otel.Tracer(tracerName),
		chunkSize: opts.ChunkSize,
		datasetID: s.DatasetID,
		sessionID: s.ID,
		version:   s.Version,
	}
}

// Open reads the session from backend and creates a log for it.
func Open(ctx context.Context, backend Backend, datasetID, sessionID string, opts Options) (*Log, error) {
	s, err := backend.Session(ctx, datasetID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("oplog: open session %s: %w", sessionID, err)
	}
	if s.DatasetID == "" {
		s.DatasetID = datasetID
	}
	return New(backend, s, opts), nil
}

// SessionID returns the tracked session id.
func (l *Log) SessionID() string { return l.sessionID }

// DatasetID returns the dataset of the tracked session.
func (l *Log) DatasetID() string { return l.datasetID }

// Version returns the last known session version.
func (l *Log) Version() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// Stale reports whether a conflict has been seen since the last refresh.
func (l *Log) Stale() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stale
}

// Refresh re-reads the session version and clears the stale flag.
func (l *Log) Refresh(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := l.backend.Session(ctx, l.datasetID, l.sessionID)
	if err != nil {
		return l.version, fmt.Errorf("oplog: refresh session %s: %w", l.sessionID, err)
	}
	l.version = s.Version
	l.stale = false
	return l.version, nil
}

// Plan splits the pending sets into the operations Commit submits: deletes
// first, then restores, each sorted and cut into chunks of at most size
// indices.
func Plan(toDelete, toRestore []uint32, size int) []Op {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var ops []Op
	for _, group := range []struct {
		action  Action
		indices []uint32
	}{
		{ActionDelete, toDelete},
		{ActionRestore, toRestore},
	} {
		sorted := slices.Clone(group.indices)
		slices.Sort(sorted)
		sorted = slices.Compact(sorted)
		for chunk := range slices.Chunk(sorted, size) {
			ops = append(ops, Op{Action: group.action, Indices: chunk})
		}
	}
	return ops
}

// Commit submits the pending sets as sequential operations. apply, if not
// nil, is called after each accepted operation. On failure the returned
// error is a *CommitError; operations it reports as accepted must not be
// resubmitted.
func (l *Log) Commit(ctx context.Context, toDelete, toRestore []uint32, apply ApplyFunc) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ops := Plan(toDelete, toRestore, l.chunkSize)
	if l.stale {
		return Result{}, &CommitError{
			Remaining:        len(ops),
			RemainingIndices: countIndices(ops),
			Version:          l.version,
			Err:              ErrStaleSession,
		}
	}

	res := Result{Version: l.version}
	for k, op := range ops {
		rec, err := l.submit(ctx, op)
		if err != nil {
			if errors.Is(err, ErrVersionConflict) {
				l.stale = true
			}
			cerr := &CommitError{
				Accepted:         k,
				Remaining:        len(ops) - k,
				RemainingIndices: countIndices(ops[k:]),
				Version:          l.version,
				Err:              err,
			}
			l.logger.Warn("commit stopped",
				"session", l.sessionID,
				"accepted", cerr.Accepted,
				"remaining", cerr.Remaining,
				"version", l.version,
				"error", err,
			)
			return res, cerr
		}

		l.version = rec.Version
		res.Accepted++
		res.Indices += len(op.Indices)
		res.Version = l.version
		if apply != nil {
			apply(op, rec)
		}
	}

	if res.Accepted > 0 {
		l.logger.Info("commit accepted",
			"session", l.sessionID,
			"operations", res.Accepted,
			"indices", res.Indices,
			"version", res.Version,
		)
	}
	return res, nil
}

// submit appends one operation at the current version. Must be called with
// l.mu held.
func (l *Log) submit(ctx context.Context, op Op) (Record, error) {
	ctx, span := l.tracer.Start(ctx, "oplog.Append", trace.WithAttributes(
		attribute.String("session.id", l.sessionID),
		attribute.String("op.action", string(op.Action)),
		attribute.Int("op.indices", len(op.Indices)),
		attribute.Int64("session.base_version", int64(l.version)),
	))
	defer span.End()

	recs, err := l.backend.Append(ctx, l.datasetID, l.sessionID, l.version, []Op{op})
	if err == nil && len(recs) != 1 {
		err = fmt.Errorf("oplog: backend returned %d records for 1 operation", len(recs))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Record{}, err
	}

	rec := recs[0]
	if rec.Version <= l.version {
		rec.Version = l.version + 1
	}
	if rec.Op.Action == "" {
		rec.Op = op
	}
	span.SetAttributes(attribute.Int64("session.version", int64(rec.Version)))
	return rec, nil
}

func countIndices(ops []Op) int {
	n := 0
	for _, op := range ops {
		n += len(op.Indices)
	}
	return n
}
