package receiver

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YingVictor/ultrasonic-positioning/internal/capturelog"
	"github.com/YingVictor/ultrasonic-positioning/internal/config"
)

func simConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Capture.Sim = config.SimConfig{
		Path:   "fixed",
		X:      5,
		Y:      -3,
		Cycle:  time.Millisecond,
		Cycles: 10,
		Seed:   7,
	}
	return cfg
}

func TestRunPublishesAndRecords(t *testing.T) {
	cfg := simConfig()
	cfg.Recording.File = filepath.Join(t.TempDir(), "run.upos")
	cfg.Site = config.SiteConfig{Mode: "manual", ManualLatitude: 33.349, ManualLongitude: -111.758}

	var out bytes.Buffer
	r := NewReceiver(cfg, &out)
	require.NoError(t, r.Initialize(context.Background()))

	require.NoError(t, r.Run(context.Background()))
	require.NoError(t, r.Close())

	s := r.Stats()
	assert.Equal(t, 10, s.Cycles)
	assert.Equal(t, 10, s.Accepted)
	assert.Equal(t, 0, s.Rejected())
	assert.Equal(t, 10, s.Recorded)

	p := r.Positioner()
	assert.InDelta(t, 5, p.X(), 0.5)
	assert.InDelta(t, -3, p.Y(), 0.5)
	assert.False(t, p.DataAvailable(), "fresh flag should have been drained")

	text := out.String()
	assert.Contains(t, text, "Site anchored at manual coordinates")
	assert.Equal(t, 10, strings.Count(text, "lat="))

	h, records, err := capturelog.ReadFile(cfg.Recording.File)
	require.NoError(t, err)
	assert.Len(t, records, 10)
	require.NotNil(t, h.Anchor)
	assert.Equal(t, 33.349, h.Anchor.Latitude)
	assert.Equal(t, cfg.Params(), h.Params)
}

func TestRunCountsRejections(t *testing.T) {
	cfg := simConfig()
	cfg.Capture.Sim.Dropout = 1
	cfg.Capture.Sim.Cycles = 4

	var out bytes.Buffer
	r := NewReceiver(cfg, &out)
	require.NoError(t, r.Initialize(context.Background()))
	defer r.Close()

	require.NoError(t, r.Run(context.Background()))

	s := r.Stats()
	assert.Equal(t, 4, s.Cycles)
	assert.Equal(t, 0, s.Accepted)
	assert.Equal(t, 4, s.NoCapture)
	assert.False(t, r.Positioner().DataAvailable())

	r.PrintSummary()
	assert.Contains(t, out.String(), "missing pulse: 4")
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := simConfig()
	cfg.Capture.Sim.Cycles = 0
	cfg.Capture.Sim.Cycle = 5 * time.Millisecond
	cfg.Display.Fixes = false

	var out bytes.Buffer
	r := NewReceiver(cfg, &out)
	require.NoError(t, r.Initialize(context.Background()))
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, r.Run(ctx))
	assert.Less(t, time.Since(start), time.Second)
	assert.Greater(t, r.Stats().Cycles, 0)
	assert.Empty(t, out.String())
}

func TestInitializeRejectsBadConfig(t *testing.T) {
	cfg := simConfig()
	cfg.Capture.Mode = "carrier-pigeon"

	r := NewReceiver(cfg, &bytes.Buffer{})
	assert.Error(t, r.Initialize(context.Background()))
	assert.Error(t, r.Run(context.Background()))
}
