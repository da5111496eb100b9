package pointbuf

import (
	"errors"
	"fmt"
	"sync"
)

// ErrWriterBusy is returned when another bulk writer holds the store.
var ErrWriterBusy = errors.New("pointbuf: writer lease held")

type lease struct {
	mu     sync.Mutex
	holder string
}

// AcquireWriter takes the exclusive bulk-writer lease for owner. The returned
// release func is idempotent.
func (s *Store) AcquireWriter(owner string) (release func(), err error) {
	s.lease.mu.Lock()
	defer s.lease.mu.Unlock()

	if s.lease.holder != "" {
		return nil, fmt.Errorf("%w by %q", ErrWriterBusy, s.lease.holder)
	}
	s.lease.holder = owner

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lease.mu.Lock()
			s.lease.holder = ""
			s.lease.mu.Unlock()
		})
	}, nil
}

// Writer returns the current lease holder, or "" when free.
func (s *Store) Writer() string {
	s.lease.mu.Lock()
	defer s.lease.mu.Unlock()
	return s.lease.holder
}
