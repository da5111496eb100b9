package oplog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T, chunk int) (*MemoryBackend, *Log) {
	t.Helper()
	ctx := context.Background()
	backend := NewMemoryBackend()
	s, err := backend.CreateSession(ctx, "ds")
	require.NoError(t, err)

	l, err := Open(ctx, backend, "ds", s.ID, Options{ChunkSize: chunk})
	require.NoError(t, err)
	return backend, l
}

func TestPlan(t *testing.T) {
	ops := Plan([]uint32{12, 5, 9, 5}, []uint32{3}, 2)
	assert.Equal(t, []Op{
		{Action: ActionDelete, Indices: []uint32{5, 9}},
		{Action: ActionDelete, Indices: []uint32{12}},
		{Action: ActionRestore, Indices: []uint32{3}},
	}, ops)

	assert.Empty(t, Plan(nil, nil, 2))
}

func TestLog_CommitChunksSequentially(t *testing.T) {
	backend, l := openMemory(t, 2)

	var applied []Op
	res, err := l.Commit(context.Background(), []uint32{5, 9, 12}, nil, func(op Op, rec Record) {
		applied = append(applied, op)
	})
	require.NoError(t, err)

	assert.Equal(t, Result{Accepted: 2, Indices: 3, Version: 2}, res)
	assert.Equal(t, []Op{
		{Action: ActionDelete, Indices: []uint32{5, 9}},
		{Action: ActionDelete, Indices: []uint32{12}},
	}, applied)
	assert.Equal(t, uint64(2), l.Version())
	assert.Equal(t, 2, backend.Appends())

	recs, err := backend.Operations(context.Background(), "ds", l.SessionID())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(1), recs[0].Version)
	assert.Equal(t, uint64(2), recs[1].Version)
}

func TestLog_CommitEmpty(t *testing.T) {
	backend, l := openMemory(t, 2)
	res, err := l.Commit(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Accepted)
	assert.Zero(t, backend.Appends())
}

// conflictAfter accepts n appends and then reports a version conflict.
type conflictAfter struct {
	*MemoryBackend
	n int
}

func (c *conflictAfter) Append(ctx context.Context, ds, sid string, base uint64, ops []Op) ([]Record, error) {
	if c.n == 0 {
		return nil, ErrVersionConflict
	}
	c.n--
	return c.MemoryBackend.Append(ctx, ds, sid, base, ops)
}

func TestLog_ConflictStopsAndMarksStale(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	s, err := mem.CreateSession(ctx, "ds")
	require.NoError(t, err)

	backend := &conflictAfter{MemoryBackend: mem, n: 1}
	l := New(backend, s, Options{ChunkSize: 2})

	var applied int
	_, err = l.Commit(ctx, []uint32{5, 9, 12}, []uint32{1}, func(Op, Record) { applied++ })

	var cerr *CommitError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 1, cerr.Accepted)
	assert.Equal(t, 2, cerr.Remaining)
	assert.Equal(t, 2, cerr.RemainingIndices)
	assert.Equal(t, uint64(1), cerr.Version)
	assert.Equal(t, 1, applied)
	assert.True(t, l.Stale())

	// Further commits fail without reaching the backend.
	before := mem.Appends()
	_, err = l.Commit(ctx, []uint32{12}, nil, nil)
	assert.ErrorIs(t, err, ErrStaleSession)
	assert.Equal(t, before, mem.Appends())

	// Refresh re-reads the version and clears the flag.
	v, err := l.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	assert.False(t, l.Stale())

	backend.n = 10
	res, err := l.Commit(ctx, []uint32{12}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Version)
}

func TestLog_ConcurrentEditorCausesConflict(t *testing.T) {
	ctx := context.Background()
	backend, l := openMemory(t, 10)

	require.NoError(t, backend.Advance("ds", l.SessionID(), Op{Action: ActionDelete, Indices: []uint32{1}}))

	_, err := l.Commit(ctx, []uint32{2}, nil, nil)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.True(t, l.Stale())

	_, err = l.Refresh(ctx)
	require.NoError(t, err)
	res, err := l.Commit(ctx, []uint32{2}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Version)
}

func TestLog_TransportErrorIsNotStale(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	s, err := mem.CreateSession(ctx, "ds")
	require.NoError(t, err)

	boom := errors.New("connection reset")
	l := New(failing{MemoryBackend: mem, err: boom}, s, Options{})
	_, err = l.Commit(ctx, []uint32{1}, nil, nil)
	assert.ErrorIs(t, err, boom)
	assert.False(t, l.Stale())
}

type failing struct {
	*MemoryBackend
	err error
}

func (f failing) Append(context.Context, string, string, uint64, []Op) ([]Record, error) {
	return nil, f.err
}

func TestLog_OpenUnknownSession(t *testing.T) {
	_, err := Open(context.Background(), NewMemoryBackend(), "ds", "nope", Options{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryBackend_Closed(t *testing.T) {
	backend, l := openMemory(t, 10)
	require.NoError(t, backend.Close("ds", l.SessionID()))

	_, err := l.Commit(context.Background(), []uint32{1}, nil, nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
}
