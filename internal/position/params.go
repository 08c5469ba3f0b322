// Package position computes 2-D fixes from time difference of arrival
// measurements among four emitters placed at the corners of a rectangle.
package position

import (
	"fmt"
	"math"
	"time"
)

// Tick is a raw value captured from the free-running down-counter.
type Tick uint32

// Capture holds the four arrival timestamps of one cycle in emitter order.
type Capture [4]Tick

// Differences holds the distance differences in feet for emitters 1..3
// relative to emitter 0. Index 0 corresponds to emitter 1.
type Differences [3]float64

// Params holds the fixed geometry, timer and solver constants.
type Params struct {
	Width         float64       // distance between emitters 0 and 1 (ft)
	Height        float64       // distance between emitters 1 and 2 (ft)
	Z             float64       // vertical offset between emitter plane and receiver (ft)
	CounterFreq   float64       // capture counter frequency (Hz)
	CounterMax    Tick          // counter reload value
	StaleMargin   Tick          // elapsed ticks after which a capture is stale
	WaveSpeed     float64       // propagation speed (ft/s)
	PulseSpacing  time.Duration // delay between consecutive emitter pulses
	Damping       float64       // step scale of the solver update
	ConvergeBelow float64       // cost at which iteration stops (ft^2)
	AcceptBelow   float64       // cost a fix must beat to be published (ft^2)
	MaxIterations int           // hard bound on solver iterations
}

// DefaultParams returns the constants of the reference installation.
func DefaultParams() Params {
	return Params{
		Width:         23.5,
		Height:        33.75,
		Z:             7.583,
		CounterFreq:   1e6,
		CounterMax:    math.MaxUint32,
		StaleMargin:   1000000,
		WaveSpeed:     1135.0,
		PulseSpacing:  100 * time.Millisecond,
		Damping:       0.1,
		ConvergeBelow: 0.01,
		AcceptBelow:   0.5,
		MaxIterations: 100,
	}
}

// Validate reports the first parameter that cannot produce a meaningful fix.
func (p Params) Validate() error {
	switch {
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("rectangle must have positive sides, got %.3f x %.3f", p.Width, p.Height)
	case p.Z < 0:
		return fmt.Errorf("vertical offset must not be negative, got %.3f", p.Z)
	case p.CounterFreq <= 0:
		return fmt.Errorf("counter frequency must be positive, got %.1f", p.CounterFreq)
	case p.WaveSpeed <= 0:
		return fmt.Errorf("propagation speed must be positive, got %.1f", p.WaveSpeed)
	case p.PulseSpacing < 0:
		return fmt.Errorf("pulse spacing must not be negative, got %v", p.PulseSpacing)
	case p.StaleMargin >= p.CounterMax:
		return fmt.Errorf("stale margin %d must be below counter max %d", p.StaleMargin, p.CounterMax)
	case p.Damping <= 0:
		return fmt.Errorf("damping must be positive, got %.3f", p.Damping)
	case p.ConvergeBelow <= 0:
		return fmt.Errorf("convergence threshold must be positive, got %.4f", p.ConvergeBelow)
	case p.AcceptBelow < p.ConvergeBelow:
		return fmt.Errorf("acceptance ceiling %.4f is tighter than convergence threshold %.4f",
			p.AcceptBelow, p.ConvergeBelow)
	case p.MaxIterations <= 0:
		return fmt.Errorf("iteration cap must be positive, got %d", p.MaxIterations)
	}
	return nil
}

// SpacingTicks returns the inter-pulse spacing expressed in counter ticks.
func (p Params) SpacingTicks() int64 {
	return int64(math.Round(p.PulseSpacing.Seconds() * p.CounterFreq))
}

// FeetPerTick converts one counter tick of flight time into feet.
func (p Params) FeetPerTick() float64 {
	return p.WaveSpeed / p.CounterFreq
}

// MaxDifference is the largest distance difference the layout allows.
func (p Params) MaxDifference() float64 {
	return p.Width + p.Height
}

// Emitter returns the (x, y) coordinates of emitter k, counterclockwise from
// the (-x, -y) corner.
func (p Params) Emitter(k int) (float64, float64) {
	hw, hh := p.Width/2, p.Height/2
	switch k {
	case 0:
		return -hw, -hh
	case 1:
		return hw, -hh
	case 2:
		return hw, hh
	default:
		return -hw, hh
	}
}

// Range returns the straight-line distance from (x, y) at offset Z to emitter k.
func (p Params) Range(x, y float64, k int) float64 {
	ex, ey := p.Emitter(k)
	dx, dy := x-ex, y-ey
	return math.Sqrt(dx*dx + dy*dy + p.Z*p.Z)
}

// ExpectedDifferences returns the noise-free differences for a receiver at (x, y).
func (p Params) ExpectedDifferences(x, y float64) Differences {
	d0 := p.Range(x, y, 0)
	var d Differences
	for i := 1; i < 4; i++ {
		d[i-1] = p.Range(x, y, i) - d0
	}
	return d
}
