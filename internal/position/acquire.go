package position

import (
	"errors"
	"fmt"
)

// Rejection reasons. Process wraps one of these when a cycle produces no fix.
var (
	ErrNoCapture    = errors.New("no capture")
	ErrStaleCapture = errors.New("stale capture")
	ErrImplausible  = errors.New("implausible distance difference")
	ErrNotAccepted  = errors.New("residual above acceptance ceiling")
)

// ElapsedTicks returns how many ticks a down-counter reloaded at max has run
// before it latched capture. Captures above max wrap modulo 2^32.
func ElapsedTicks(capture, max Tick) Tick {
	return max - capture
}

// IsStale reports whether more than margin ticks elapsed on a down-counter
// reloaded at max before capture was latched. Equivalent to
// capture < max-margin; only captures taken close to a counter reload pass.
func IsStale(capture, max, margin Tick) bool {
	return ElapsedTicks(capture, max) > margin
}

// checkCapture returns the index of the first unusable timestamp and the
// reason, or -1 and nil when all four are usable.
func checkCapture(c Capture, p Params) (int, error) {
	for i, t := range c {
		if t == 0 {
			return i, ErrNoCapture
		}
		if IsStale(t, p.CounterMax, p.StaleMargin) {
			return i, ErrStaleCapture
		}
	}
	return -1, nil
}

// ValidateCapture reports whether c can be used for a fix.
func ValidateCapture(c Capture, p Params) error {
	if i, err := checkCapture(c, p); err != nil {
		return fmt.Errorf("timestamp %d (%d): %w", i, c[i], err)
	}
	return nil
}
