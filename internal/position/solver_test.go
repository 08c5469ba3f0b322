package position

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixTolerance = 0.5 // ft

func TestSolveKnownPosition(t *testing.T) {
	p := DefaultParams()
	d := p.ExpectedDifferences(5.0, -3.0)

	s := Solve(p, 0, 0, d, nil)

	require.True(t, s.Converged, "cost %.4f after %d iterations", s.Cost, s.Iterations)
	assert.LessOrEqual(t, s.Iterations, p.MaxIterations)
	assert.LessOrEqual(t, s.Cost, p.ConvergeBelow)
	assert.InDelta(t, 5.0, s.X, fixTolerance)
	assert.InDelta(t, -3.0, s.Y, fixTolerance)
	assert.True(t, s.Accepted(p))
}

func TestSolveAcrossRectangle(t *testing.T) {
	p := DefaultParams()
	points := []struct{ x, y float64 }{
		{3, 3},
		{0.5, -0.5},
		{-8, 10},
		{10, 15},
		{11, -16},
		{-11, -16},
	}

	for _, pt := range points {
		d := p.ExpectedDifferences(pt.x, pt.y)
		s := Solve(p, 0, 0, d, nil)

		assert.InDelta(t, pt.x, s.X, fixTolerance, "x for (%.1f, %.1f)", pt.x, pt.y)
		assert.InDelta(t, pt.y, s.Y, fixTolerance, "y for (%.1f, %.1f)", pt.x, pt.y)
		assert.True(t, s.Accepted(p), "cost %.4f for (%.1f, %.1f)", s.Cost, pt.x, pt.y)
	}
}

func TestSolveStopsOnZeroGradient(t *testing.T) {
	p := DefaultParams()
	d := p.ExpectedDifferences(0, 0)

	calls := 0
	s := Solve(p, 0, 0, d, func(Iteration) { calls++ })

	assert.True(t, s.Stationary)
	assert.True(t, s.Converged)
	assert.Equal(t, 0, s.Iterations)
	assert.Equal(t, 0, calls)
	assert.Zero(t, s.Cost)
}

func TestSolveIterationCap(t *testing.T) {
	p := DefaultParams()
	p.MaxIterations = 3
	d := p.ExpectedDifferences(5.0, -3.0)

	var seen []int
	s := Solve(p, 0, 0, d, func(it Iteration) { seen = append(seen, it.Index) })

	assert.Equal(t, 3, s.Iterations)
	assert.False(t, s.Converged)
	assert.False(t, s.Accepted(p))
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestSolveSeedNearAnswerConvergesFaster(t *testing.T) {
	p := DefaultParams()
	d := p.ExpectedDifferences(5.0, -3.0)

	cold := Solve(p, 0, 0, d, nil)
	warm := Solve(p, 4.8, -2.9, d, nil)

	require.True(t, warm.Converged)
	assert.Less(t, warm.Iterations, cold.Iterations)
}

func TestProgressCarriesStep(t *testing.T) {
	p := DefaultParams()
	d := p.ExpectedDifferences(5.0, -3.0)

	var first Iteration
	Solve(p, 0, 0, d, func(it Iteration) {
		if it.Index == 0 {
			first = it
		}
	})

	f, dfx, dfy := cost(p, 0, 0, d)
	g2 := dfx*dfx + dfy*dfy
	assert.InDelta(t, f, first.Cost, 1e-12)
	assert.InDelta(t, dfx, first.DX, 1e-12)
	assert.InDelta(t, dfy, first.DY, 1e-12)
	assert.InDelta(t, -p.Damping*f*dfx/g2, first.X, 1e-12)
	assert.InDelta(t, -p.Damping*f*dfy/g2, first.Y, 1e-12)
}

func TestCostGradientMatchesFiniteDifference(t *testing.T) {
	p := DefaultParams()
	d := p.ExpectedDifferences(5.0, -3.0)
	const h = 1e-6

	for _, pt := range [][2]float64{{0, 0}, {-4, 7}, {9, -12}} {
		x, y := pt[0], pt[1]
		_, dfx, dfy := cost(p, x, y, d)

		numX := (Cost(p, x+h, y, d) - Cost(p, x-h, y, d)) / (2 * h)
		numY := (Cost(p, x, y+h, d) - Cost(p, x, y-h, d)) / (2 * h)

		assert.InDelta(t, numX, dfx, 1e-4*math.Max(1, math.Abs(numX)))
		assert.InDelta(t, numY, dfy, 1e-4*math.Max(1, math.Abs(numY)))
	}
}

func TestSolveDoesNotAllocate(t *testing.T) {
	p := DefaultParams()
	d := p.ExpectedDifferences(5.0, -3.0)

	allocs := testing.AllocsPerRun(10, func() {
		Solve(p, 0, 0, d, nil)
	})
	assert.Zero(t, allocs)
}
