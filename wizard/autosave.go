/*
autosave.go - Debounced draft snapshots

PURPOSE:
  Every form-state change in create mode schedules a snapshot into the
  DraftStore. The schedule is debounced with a trailing edge: a new change
  cancels the pending timer and starts a fresh one, so rapid typing
  produces one write, not many.

TESTING:
  SnapshotScheduler is an interface so tests swap the timer for a manual
  double that flushes immediately (ManualScheduler).
*/
package wizard

import (
	"sync"
	"time"
)

// DefaultAutosaveDelay is the trailing-edge debounce window.
const DefaultAutosaveDelay = time.Second

// SnapshotScheduler debounces snapshot tasks. Schedule replaces any
// pending task; Cancel drops it.
type SnapshotScheduler interface {
	Schedule(task func())
	Cancel()
}

// =============================================================================
// TIMER-BACKED SCHEDULER
// =============================================================================

// DebouncedScheduler runs the latest task after a quiet period.
type DebouncedScheduler struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
}

func NewDebouncedScheduler(delay time.Duration) *DebouncedScheduler {
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}
	return &DebouncedScheduler{delay: delay}
}

func (s *DebouncedScheduler) Schedule(task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, task)
}

func (s *DebouncedScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// =============================================================================
// MANUAL SCHEDULER - Test double
// =============================================================================

// ManualScheduler holds the latest task until Flush is called. Scheduled
// counts how many times a task replaced the pending one, which lets tests
// assert that rapid changes coalesce into one write.
type ManualScheduler struct {
	mu        sync.Mutex
	pending   func()
	Scheduled int
}

func NewManualScheduler() *ManualScheduler { return &ManualScheduler{} }

func (s *ManualScheduler) Schedule(task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = task
	s.Scheduled++
}

func (s *ManualScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// Flush runs the pending task, if any, and clears it.
func (s *ManualScheduler) Flush() {
	s.mu.Lock()
	task := s.pending
	s.pending = nil
	s.mu.Unlock()
	if task != nil {
		task()
	}
}

// HasPending reports whether a task is waiting.
func (s *ManualScheduler) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}
