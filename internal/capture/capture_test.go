package capture

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YingVictor/ultrasonic-positioning/internal/position"
)

func TestFormatAndParseTDA(t *testing.T) {
	c := position.Capture{4294872295, 4294772040, 4294672011, 4294572290}

	line := FormatTDA(c)
	assert.True(t, strings.HasPrefix(line, "$UPTDA,4294872295,"), line)

	got, err := ParseTDA(line)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestParseTDARejectsBadSentences(t *testing.T) {
	good := FormatTDA(position.Capture{1, 2, 3, 4})

	tests := map[string]string{
		"bad checksum":   good[:len(good)-2] + "00",
		"missing field":  withChecksum("UPTDA,1,2,3"),
		"negative tick":  withChecksum("UPTDA,-1,2,3,4"),
		"tick too large": withChecksum("UPTDA,4294967296,2,3,4"),
		"not a number":   withChecksum("UPTDA,1,x,3,4"),
		"other sentence": "$GPGLL,3723.2475,N,12158.3416,W,161229.487,A,A*41",
	}
	for name, line := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTDA(line)
			assert.Error(t, err)
		})
	}
}

func withChecksum(body string) string {
	return "$" + body + "*" + nmea.Checksum(body)
}

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

func TestLineSourceSkipsNoise(t *testing.T) {
	a := position.Capture{10, 20, 30, 40}
	b := position.Capture{50, 60, 70, 80}
	stream := strings.Join([]string{
		"receiver board v2 ready",
		FormatTDA(a),
		"$UPTDA,1,2*00",
		"",
		FormatTDA(b),
	}, "\r\n") + "\r\n"

	src := NewLineSource(nopCloser{strings.NewReader(stream)})
	defer src.Close()

	ctx := context.Background()
	got, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	got, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, src.Skipped())
}

func TestLineSourceHonoursContext(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	src := NewLineSource(r)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimulatorProducesSolvableCaptures(t *testing.T) {
	params := position.DefaultParams()
	sim, err := NewSimulator(params, SimOptions{
		Path:   PathCircle,
		Radius: 6,
		Period: 10 * time.Second,
		Jitter: 1,
		Cycles: 5,
		Seed:   42,
	})
	require.NoError(t, err)
	defer sim.Close()

	ctx := context.Background()
	for n := 0; n < 5; n++ {
		c, err := sim.Next(ctx)
		require.NoError(t, err)
		require.NoError(t, position.ValidateCapture(c, params))

		d, err := position.ComputeDifferences(c, params)
		require.NoError(t, err)

		x, y := sim.Truth(n)
		want := params.ExpectedDifferences(x, y)
		for i := range want {
			// rounding plus up to one tick of jitter on each of two arrivals
			assert.InDelta(t, want[i], d[i], 3*params.FeetPerTick())
		}
	}

	_, err = sim.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSimulatorDropout(t *testing.T) {
	params := position.DefaultParams()
	sim, err := NewSimulator(params, SimOptions{Path: PathFixed, X: 1, Y: 2, Dropout: 1, Cycles: 3})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		c, err := sim.Next(context.Background())
		require.NoError(t, err)
		assert.ErrorIs(t, position.ValidateCapture(c, params), position.ErrNoCapture)
	}
}

func TestNewSimulatorValidatesOptions(t *testing.T) {
	params := position.DefaultParams()

	_, err := NewSimulator(params, SimOptions{Path: "spiral"})
	assert.Error(t, err)

	_, err = NewSimulator(params, SimOptions{Path: PathCircle})
	assert.Error(t, err)

	_, err = NewSimulator(params, SimOptions{Path: PathFixed, Dropout: 2})
	assert.Error(t, err)
}
