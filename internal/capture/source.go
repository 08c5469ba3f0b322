// Package capture delivers the four pulse arrival timestamps of each
// measurement cycle, either from the receiver board over a serial link or
// from a simulator.
package capture

import (
	"context"

	"github.com/YingVictor/ultrasonic-positioning/internal/position"
)

// Source yields one capture per completed four-pulse cycle. Next blocks until
// a capture is available, the source is exhausted (io.EOF) or ctx is done.
type Source interface {
	Next(ctx context.Context) (position.Capture, error)
	Close() error
}
