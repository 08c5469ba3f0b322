package position

import (
	"fmt"
	"math"
)

// tickDelta returns t0-ti as a signed tick count. The subtraction wraps in
// 32 bits before being reinterpreted, so captures straddling a reload still
// yield the short signed distance between them.
func tickDelta(t0, ti Tick) int64 {
	return int64(int32(t0 - ti))
}

// computeDifferences converts a capture into distance differences. It returns
// the index (1..3) of the first difference outside the plausible range, or 0.
func computeDifferences(c Capture, p Params) (Differences, int) {
	var d Differences
	spacing := p.SpacingTicks()
	scale := p.FeetPerTick()
	limit := p.MaxDifference()

	for i := 1; i < 4; i++ {
		ticks := tickDelta(c[0], c[i]) - int64(i)*spacing
		d[i-1] = float64(ticks) * scale
		if math.Abs(d[i-1]) > limit {
			return d, i
		}
	}
	return d, 0
}

// ComputeDifferences converts a capture into the three distance differences
// of emitters 1..3 relative to emitter 0. It fails with ErrImplausible when a
// difference exceeds what the rectangle allows.
func ComputeDifferences(c Capture, p Params) (Differences, error) {
	d, bad := computeDifferences(c, p)
	if bad != 0 {
		return d, fmt.Errorf("emitter %d difference %.2f ft exceeds %.2f ft: %w",
			bad, d[bad-1], p.MaxDifference(), ErrImplausible)
	}
	return d, nil
}
