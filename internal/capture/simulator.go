package capture

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/YingVictor/ultrasonic-positioning/internal/position"
)

// Paths the simulated receiver can follow.
const (
	PathCircle = "circle"
	PathFixed  = "fixed"
)

// SimOptions configures a Simulator.
type SimOptions struct {
	Path    string        // PathCircle or PathFixed
	Radius  float64       // circle radius (ft)
	Period  time.Duration // time for one lap of the circle
	X, Y    float64       // fixed position, or circle center offset (ft)
	Cycle   time.Duration // wall time between captures; 0 delivers immediately
	Jitter  uint32        // max ticks added to or removed from each arrival
	Dropout float64       // probability that one pulse is missed per cycle
	Cycles  int           // captures before io.EOF; 0 runs forever
	Seed    int64
}

// Simulator synthesises the captures a receiver would latch while moving
// along a known path. It stands in for the receiver board on the bench.
type Simulator struct {
	params position.Params
	opts   SimOptions
	rng    *rand.Rand
	n      int
	ticker *time.Ticker
}

// NewSimulator returns a simulator for the given geometry.
func NewSimulator(params position.Params, opts SimOptions) (*Simulator, error) {
	switch opts.Path {
	case PathCircle:
		if opts.Period <= 0 {
			return nil, fmt.Errorf("circle path needs a positive period, got %v", opts.Period)
		}
	case PathFixed:
	default:
		return nil, fmt.Errorf("invalid simulator path: %s", opts.Path)
	}
	if opts.Dropout < 0 || opts.Dropout > 1 {
		return nil, fmt.Errorf("dropout must be between 0 and 1, got %.2f", opts.Dropout)
	}

	return &Simulator{
		params: params,
		opts:   opts,
		rng:    rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

// Truth returns where the receiver is at capture n.
func (s *Simulator) Truth(n int) (float64, float64) {
	if s.opts.Path == PathFixed {
		return s.opts.X, s.opts.Y
	}
	elapsed := time.Duration(n) * s.cycleOrNominal()
	angle := 2 * math.Pi * elapsed.Seconds() / s.opts.Period.Seconds()
	return s.opts.X + s.opts.Radius*math.Cos(angle), s.opts.Y + s.opts.Radius*math.Sin(angle)
}

// cycleOrNominal keeps the path's shape when captures are not paced.
func (s *Simulator) cycleOrNominal() time.Duration {
	if s.opts.Cycle > 0 {
		return s.opts.Cycle
	}
	return 500 * time.Millisecond
}

// Next waits for the next cycle and returns its capture.
func (s *Simulator) Next(ctx context.Context) (position.Capture, error) {
	if s.opts.Cycles > 0 && s.n >= s.opts.Cycles {
		return position.Capture{}, io.EOF
	}

	if s.opts.Cycle > 0 {
		if s.ticker == nil {
			s.ticker = time.NewTicker(s.opts.Cycle)
		}
		select {
		case <-s.ticker.C:
		case <-ctx.Done():
			return position.Capture{}, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return position.Capture{}, err
	}

	x, y := s.Truth(s.n)
	s.n++

	// Emitter 0 fires a few milliseconds after the counter reload
	base := position.Tick(2000 + s.rng.Intn(3000))
	c := s.params.Synthesize(x, y, base)

	if s.opts.Jitter > 0 {
		j := int64(s.opts.Jitter)
		for i := range c {
			c[i] = position.Tick(int64(c[i]) + s.rng.Int63n(2*j+1) - j)
		}
	}
	if s.opts.Dropout > 0 && s.rng.Float64() < s.opts.Dropout {
		c[s.rng.Intn(len(c))] = 0
	}
	return c, nil
}

// Close stops the pacing ticker.
func (s *Simulator) Close() error {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	return nil
}
