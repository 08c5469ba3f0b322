package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YingVictor/ultrasonic-positioning/internal/position"
)

func TestDefaultConfigMatchesReferenceParams(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	if diff := cmp.Diff(position.DefaultParams(), cfg.Params()); diff != "" {
		t.Errorf("Params() mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Capture.Mode = "serial"
	cfg.Capture.Port = "/dev/ttyUSB3"
	cfg.Timer.PulseSpacing = 150 * time.Millisecond
	cfg.Site.Mode = "manual"
	cfg.Site.ManualLatitude = 40.3487
	cfg.Site.ManualLongitude = -74.6593
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("loaded config mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown capture mode", func(c *Config) { c.Capture.Mode = "usb" }},
		{"serial without port", func(c *Config) { c.Capture.Mode = "serial"; c.Capture.Port = "" }},
		{"serial without baud", func(c *Config) { c.Capture.Mode = "serial"; c.Capture.BaudRate = 0 }},
		{"sim without cycle", func(c *Config) { c.Capture.Sim.Cycle = 0 }},
		{"sim unknown path", func(c *Config) { c.Capture.Sim.Path = "zigzag" }},
		{"sim dropout above one", func(c *Config) { c.Capture.Sim.Dropout = 1.5 }},
		{"ceiling below threshold", func(c *Config) { c.Solver.AcceptanceCeiling = 0.001 }},
		{"no iterations", func(c *Config) { c.Solver.MaxIterations = 0 }},
		{"no stale window", func(c *Config) { c.Timer.StaleAfter = 0 }},
		{"bad latitude", func(c *Config) { c.Site.Mode = "manual"; c.Site.ManualLatitude = 91 }},
		{"nmea site without port", func(c *Config) { c.Site.Mode = "nmea"; c.Site.Port = "" }},
		{"unknown site mode", func(c *Config) { c.Site.Mode = "beacon" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
