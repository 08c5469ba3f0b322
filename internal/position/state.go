package position

import (
	"sync"
	"sync/atomic"
)

// Fix is an accepted position with its residual error.
type Fix struct {
	X     float64 // ft from the rectangle center
	Y     float64 // ft from the rectangle center
	Error float64 // residual cost (ft^2)
}

// State holds the last accepted fix and the fresh-data flag. One producer
// publishes; any number of readers may call the accessors concurrently.
type State struct {
	mu    sync.RWMutex
	fix   Fix
	fresh atomic.Bool
}

// publish replaces the fix and raises the fresh-data flag. The flag is set
// only after the record is complete so a reader that consumes it always sees
// data at least as new as this fix.
func (s *State) publish(f Fix) {
	s.mu.Lock()
	s.fix = f
	s.mu.Unlock()
	s.fresh.Store(true)
}

// X returns the last accepted x in feet.
func (s *State) X() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fix.X
}

// Y returns the last accepted y in feet.
func (s *State) Y() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fix.Y
}

// Error returns the residual of the last accepted fix in square feet.
func (s *State) Error() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fix.Error
}

// Snapshot returns x, y and error as one consistent record.
func (s *State) Snapshot() Fix {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fix
}

// DataAvailable reports whether a fix was accepted since the previous call
// and clears the flag.
func (s *State) DataAvailable() bool {
	return s.fresh.Swap(false)
}
