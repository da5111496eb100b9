package render

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFrame is the coalescing window of a Scheduler.
const DefaultFrame = 16 * time.Millisecond

// Scheduler coalesces redraw requests. Any number of Request calls within
// one frame produce a single call to the render function at the end of
// that frame.
type Scheduler struct {
	frame  time.Duration
	render func()

	mu      sync.Mutex
	timer   *time.Timer
	closed  bool
	renders atomic.Int64
}

// NewScheduler creates a scheduler calling render at most once per frame.
func NewScheduler(frame time.Duration, render func()) *Scheduler {
	if frame <= 0 {
		frame = DefaultFrame
	}
	return &Scheduler{frame: frame, render: render}
}

// Request schedules a redraw at the end of the current frame.
func (s *Scheduler) Request() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.frame, s.fire)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	s.timer = nil
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return
	}
	s.renders.Add(1)
	if s.render != nil {
		s.render()
	}
}

// Renders returns how many times the render function ran.
func (s *Scheduler) Renders() int64 {
	return s.renders.Load()
}

// Close cancels any pending redraw.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
