package position

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElapsedTicksAndStaleness(t *testing.T) {
	const max Tick = math.MaxUint32
	const margin Tick = 1000000

	tests := []struct {
		name    string
		capture Tick
		elapsed Tick
		stale   bool
	}{
		{"just reloaded", max, 0, false},
		{"inside margin", max - 999999, 999999, false},
		{"at margin", max - margin, margin, false},
		{"past margin", max - margin - 1, margin + 1, true},
		{"long after reload", 12345, max - 12345, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.elapsed, ElapsedTicks(tt.capture, max))
			assert.Equal(t, tt.stale, IsStale(tt.capture, max, margin))
		})
	}
}

func TestTickDeltaWraps(t *testing.T) {
	assert.Equal(t, int64(10), tickDelta(5, math.MaxUint32-4))
	assert.Equal(t, int64(-10), tickDelta(math.MaxUint32-4, 5))
	assert.Equal(t, int64(-300000), tickDelta(1000, 301000))
}

func TestComputeDifferencesRemovesPulseSpacing(t *testing.T) {
	p := DefaultParams()
	fpt := p.FeetPerTick()

	for _, pt := range [][2]float64{{0, 0}, {5, -3}, {-10, 14}} {
		c := p.Synthesize(pt[0], pt[1], baseElapsed)
		got, err := ComputeDifferences(c, p)
		require.NoError(t, err)

		want := p.ExpectedDifferences(pt[0], pt[1])
		for i := range want {
			// Each arrival is rounded to a whole tick.
			assert.InDelta(t, want[i], got[i], fpt, "emitter %d at %v", i+1, pt)
		}
	}
}

func TestComputeDifferencesPlausibilityBound(t *testing.T) {
	p := DefaultParams()
	c := p.Synthesize(0, 0, baseElapsed)
	c[1] += 60000

	_, err := ComputeDifferences(c, p)
	assert.ErrorIs(t, err, ErrImplausible)
}

func TestValidateCapture(t *testing.T) {
	p := DefaultParams()
	c := p.Synthesize(1, 1, baseElapsed)
	assert.NoError(t, ValidateCapture(c, p))

	c[0] = 0
	assert.ErrorIs(t, ValidateCapture(c, p), ErrNoCapture)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	mutations := map[string]func(*Params){
		"zero width":       func(p *Params) { p.Width = 0 },
		"negative z":       func(p *Params) { p.Z = -1 },
		"no frequency":     func(p *Params) { p.CounterFreq = 0 },
		"no speed":         func(p *Params) { p.WaveSpeed = 0 },
		"huge margin":      func(p *Params) { p.StaleMargin = p.CounterMax },
		"no damping":       func(p *Params) { p.Damping = 0 },
		"no threshold":     func(p *Params) { p.ConvergeBelow = 0 },
		"no iteration cap": func(p *Params) { p.MaxIterations = 0 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			p := DefaultParams()
			mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestSpacingTicks(t *testing.T) {
	assert.Equal(t, int64(100000), DefaultParams().SpacingTicks())
	assert.InDelta(t, 0.001135, DefaultParams().FeetPerTick(), 1e-12)
}
