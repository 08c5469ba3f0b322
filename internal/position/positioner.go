package position

import (
	"fmt"
)

// Reader is the consumer view of published fixes.
type Reader interface {
	X() float64
	Y() float64
	Error() float64
	DataAvailable() bool
}

// Rejection describes why a cycle produced no fix.
type Rejection struct {
	Reason error   // one of the Err* sentinels
	Index  int     // offending timestamp (0..3) or emitter (1..3); -1 for the solver
	Value  float64 // offending timestamp, difference (ft) or cost (ft^2)
}

// RejectFunc receives every rejected cycle. It must not block.
type RejectFunc func(Rejection)

// Option configures a Positioner.
type Option func(*Positioner)

// WithProgress reports every solver iteration to fn.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Positioner) { p.progress = fn }
}

// WithRejectHook reports every rejected cycle to fn.
func WithRejectHook(fn RejectFunc) Option {
	return func(p *Positioner) { p.reject = fn }
}

// WithSeed sets the position the first solve starts from. The seed is not
// published and does not raise the fresh-data flag.
func WithSeed(x, y float64) Option {
	return func(p *Positioner) {
		p.state.fix.X = x
		p.state.fix.Y = y
	}
}

// Positioner runs the acquisition, difference, solver and publish stages for
// each capture. Process must be called from a single goroutine; the embedded
// State may be read from any goroutine.
type Positioner struct {
	params   Params
	state    State
	progress ProgressFunc
	reject   RejectFunc
}

// NewPositioner validates params and returns a positioner seeded at the
// rectangle center.
func NewPositioner(params Params, opts ...Option) (*Positioner, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid positioning parameters: %w", err)
	}
	p := &Positioner{params: params}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Params returns the constants the positioner was built with.
func (p *Positioner) Params() Params {
	return p.params
}

// State returns the published state shared with readers.
func (p *Positioner) State() *State {
	return &p.state
}

// X returns the last accepted x in feet.
func (p *Positioner) X() float64 { return p.state.X() }

// Y returns the last accepted y in feet.
func (p *Positioner) Y() float64 { return p.state.Y() }

// Error returns the residual of the last accepted fix.
func (p *Positioner) Error() float64 { return p.state.Error() }

// DataAvailable tests and clears the fresh-data flag.
func (p *Positioner) DataAvailable() bool { return p.state.DataAvailable() }

// Process runs one measurement cycle. On success the fix is published and
// returned. Otherwise the published state is left untouched and the error
// wraps the rejection reason.
func (p *Positioner) Process(c Capture) (Solution, error) {
	if i, err := checkCapture(c, p.params); err != nil {
		p.rejected(err, i, float64(c[i]))
		return Solution{}, fmt.Errorf("timestamp %d (%d): %w", i, c[i], err)
	}

	d, bad := computeDifferences(c, p.params)
	if bad != 0 {
		p.rejected(ErrImplausible, bad, d[bad-1])
		return Solution{}, fmt.Errorf("emitter %d difference %.2f ft: %w", bad, d[bad-1], ErrImplausible)
	}

	return p.solve(d)
}

// ProcessDifferences runs the solver and publish stages on differences that
// were computed elsewhere.
func (p *Positioner) ProcessDifferences(d Differences) (Solution, error) {
	return p.solve(d)
}

func (p *Positioner) solve(d Differences) (Solution, error) {
	// Only the producer writes the fix, so reading it here needs no lock.
	seed := p.state.fix
	s := Solve(p.params, seed.X, seed.Y, d, p.progress)

	if !s.Accepted(p.params) {
		p.rejected(ErrNotAccepted, -1, s.Cost)
		return s, fmt.Errorf("cost %.4f after %d iterations: %w", s.Cost, s.Iterations, ErrNotAccepted)
	}

	p.state.publish(Fix{X: s.X, Y: s.Y, Error: s.Cost})
	return s, nil
}

func (p *Positioner) rejected(reason error, index int, value float64) {
	if p.reject != nil {
		p.reject(Rejection{Reason: reason, Index: index, Value: value})
	}
}
