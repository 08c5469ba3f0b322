package position

import "math"

// Synthesize returns the capture a receiver at (x, y) would latch when
// emitter 0 fires baseElapsed ticks after the counter reload. Flight times
// are rounded to whole ticks.
func (p Params) Synthesize(x, y float64, baseElapsed Tick) Capture {
	var c Capture
	spacing := p.SpacingTicks()
	fpt := p.FeetPerTick()
	for i := range c {
		flight := int64(math.Round(p.Range(x, y, i) / fpt))
		elapsed := int64(baseElapsed) + int64(i)*spacing + flight
		c[i] = p.CounterMax - Tick(elapsed)
	}
	return c
}
