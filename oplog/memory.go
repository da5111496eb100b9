package oplog

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend keeps sessions in process memory.
type MemoryBackend struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	appends  int
	now      func() time.Time
}

type memorySession struct {
	Session
	records []Record
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		sessions: make(map[string]*memorySession),
		now:      time.Now,
	}
}

// CreateSession implements Backend.
func (m *MemoryBackend) CreateSession(_ context.Context, datasetID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Session{ID: uuid.NewString(), DatasetID: datasetID, CreatedAt: m.now().UTC()}
	m.sessions[s.ID] = &memorySession{Session: s}
	return s, nil
}

// Session implements Backend.
func (m *MemoryBackend) Session(_ context.Context, datasetID, sessionID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(datasetID, sessionID)
	if err != nil {
		return Session{}, err
	}
	return s.Session, nil
}

// Append implements Backend.
func (m *MemoryBackend) Append(ctx context.Context, datasetID, sessionID string, baseVersion uint64, ops []Op) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.appends++
	s, err := m.lookup(datasetID, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Closed {
		return nil, ErrSessionClosed
	}
	if baseVersion != s.Version {
		return nil, fmt.Errorf("%w: base %d, current %d", ErrVersionConflict, baseVersion, s.Version)
	}

	out := make([]Record, 0, len(ops))
	for _, op := range ops {
		s.Version++
		rec := Record{
			ID:        uuid.NewString(),
			Version:   s.Version,
			Op:        Op{Action: op.Action, Indices: slices.Clone(op.Indices)},
			CreatedAt: m.now().UTC(),
		}
		s.records = append(s.records, rec)
		out = append(out, rec)
	}
	return out, nil
}

// Operations implements History.
func (m *MemoryBackend) Operations(_ context.Context, datasetID, sessionID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(datasetID, sessionID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(s.records), nil
}

// Advance appends ops as another editor would, moving the session version
// past any base version held by existing logs.
func (m *MemoryBackend) Advance(datasetID, sessionID string, ops ...Op) error {
	m.mu.Lock()
	v := uint64(0)
	if s, err := m.lookup(datasetID, sessionID); err == nil {
		v = s.Version
	}
	m.mu.Unlock()

	_, err := m.Append(context.Background(), datasetID, sessionID, v, ops)
	return err
}

// Close marks a session closed.
func (m *MemoryBackend) Close(datasetID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(datasetID, sessionID)
	if err != nil {
		return err
	}
	s.Closed = true
	return nil
}

// Appends returns the number of Append calls received.
func (m *MemoryBackend) Appends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appends
}

func (m *MemoryBackend) lookup(datasetID, sessionID string) (*memorySession, error) {
	s, ok := m.sessions[sessionID]
	if !ok || s.DatasetID != datasetID {
		return nil, fmt.Errorf("%w: %s/%s", ErrSessionNotFound, datasetID, sessionID)
	}
	return s, nil
}
