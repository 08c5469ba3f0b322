// Package config provides configuration structures and defaults for the
// ultrasonic positioning receiver
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/YingVictor/ultrasonic-positioning/internal/position"
)

// Config represents the complete application configuration
type Config struct {
	Geometry  GeometryConfig  `yaml:"geometry" mapstructure:"geometry"`   // Emitter layout
	Timer     TimerConfig     `yaml:"timer" mapstructure:"timer"`         // Capture counter settings
	Solver    SolverConfig    `yaml:"solver" mapstructure:"solver"`       // Solver constants
	Capture   CaptureConfig   `yaml:"capture" mapstructure:"capture"`     // Capture source settings
	Site      SiteConfig      `yaml:"site" mapstructure:"site"`           // Geographic anchor
	Display   DisplayConfig   `yaml:"display" mapstructure:"display"`     // Progress output
	Recording RecordingConfig `yaml:"recording" mapstructure:"recording"` // Capture log
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`     // Logging configuration
}

// GeometryConfig describes the emitter rectangle
type GeometryConfig struct {
	Width     float64 `yaml:"width" mapstructure:"width"`           // Emitter 0 to emitter 1 (ft)
	Height    float64 `yaml:"height" mapstructure:"height"`         // Emitter 1 to emitter 2 (ft)
	Z         float64 `yaml:"z" mapstructure:"z"`                   // Receiver height below emitter plane (ft)
	WaveSpeed float64 `yaml:"wave_speed" mapstructure:"wave_speed"` // Propagation speed (ft/s)
}

// TimerConfig describes the capture counter and pulse schedule
type TimerConfig struct {
	Frequency    float64       `yaml:"frequency" mapstructure:"frequency"`         // Counter frequency in Hz
	CounterMax   uint32        `yaml:"counter_max" mapstructure:"counter_max"`     // Counter reload value
	StaleAfter   time.Duration `yaml:"stale_after" mapstructure:"stale_after"`     // Elapsed time after which a capture is stale
	PulseSpacing time.Duration `yaml:"pulse_spacing" mapstructure:"pulse_spacing"` // Delay between emitter pulses
}

// SolverConfig contains the iterative solver constants
type SolverConfig struct {
	Damping              float64 `yaml:"damping" mapstructure:"damping"`                             // Step scale
	ConvergenceThreshold float64 `yaml:"convergence_threshold" mapstructure:"convergence_threshold"` // ft^2
	AcceptanceCeiling    float64 `yaml:"acceptance_ceiling" mapstructure:"acceptance_ceiling"`       // ft^2
	MaxIterations        int     `yaml:"max_iterations" mapstructure:"max_iterations"`               // Hard iteration cap
}

// CaptureConfig selects where captures come from
type CaptureConfig struct {
	Mode     string        `yaml:"mode" mapstructure:"mode"`           // "serial" or "sim"
	Port     string        `yaml:"port" mapstructure:"port"`           // Serial device path (serial mode)
	BaudRate int           `yaml:"baud_rate" mapstructure:"baud_rate"` // Serial baud rate (serial mode)
	Sim      SimConfig     `yaml:"sim" mapstructure:"sim"`             // Simulator settings (sim mode)
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`     // Max wait for a capture before warning
}

// SimConfig drives the capture simulator
type SimConfig struct {
	Path    string        `yaml:"path" mapstructure:"path"`       // "circle" or "fixed"
	Radius  float64       `yaml:"radius" mapstructure:"radius"`   // Circle radius (ft)
	Period  time.Duration `yaml:"period" mapstructure:"period"`   // Time for one lap
	X       float64       `yaml:"x" mapstructure:"x"`             // Fixed position x (ft)
	Y       float64       `yaml:"y" mapstructure:"y"`             // Fixed position y (ft)
	Cycle   time.Duration `yaml:"cycle" mapstructure:"cycle"`     // Time between captures
	Jitter  uint32        `yaml:"jitter" mapstructure:"jitter"`   // Max random tick jitter per arrival
	Dropout float64       `yaml:"dropout" mapstructure:"dropout"` // Probability of a missed pulse
	Cycles  int           `yaml:"cycles" mapstructure:"cycles"`   // Stop after this many captures (0 = forever)
	Seed    int64         `yaml:"seed" mapstructure:"seed"`       // Random seed
}

// SiteConfig anchors the rectangle center to the earth
type SiteConfig struct {
	Mode            string        `yaml:"mode" mapstructure:"mode"`                         // "none", "manual", "nmea" or "gpsd"
	Port            string        `yaml:"port" mapstructure:"port"`                         // GPS serial port (nmea mode)
	BaudRate        int           `yaml:"baud_rate" mapstructure:"baud_rate"`               // GPS baud rate (nmea mode)
	GPSDHost        string        `yaml:"gpsd_host" mapstructure:"gpsd_host"`               // gpsd host (gpsd mode)
	GPSDPort        string        `yaml:"gpsd_port" mapstructure:"gpsd_port"`               // gpsd port (gpsd mode)
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`                   // GPS fix timeout
	ManualLatitude  float64       `yaml:"manual_latitude" mapstructure:"manual_latitude"`   // Decimal degrees
	ManualLongitude float64       `yaml:"manual_longitude" mapstructure:"manual_longitude"` // Decimal degrees
	ManualAltitude  float64       `yaml:"manual_altitude" mapstructure:"manual_altitude"`   // Meters
	Heading         float64       `yaml:"heading" mapstructure:"heading"`                   // Bearing of the +y axis, degrees from north
}

// DisplayConfig controls progress output
type DisplayConfig struct {
	Progress bool `yaml:"progress" mapstructure:"progress"` // Print every solver iteration
	Fixes    bool `yaml:"fixes" mapstructure:"fixes"`       // Print every accepted fix
}

// RecordingConfig controls the capture log
type RecordingConfig struct {
	File string `yaml:"file" mapstructure:"file"` // Capture log path (empty disables recording)
}

// LoggingConfig contains logging configuration parameters
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"` // Log level (debug, info, warn, error)
	File  string `yaml:"file" mapstructure:"file"`   // Log file path
}

// DefaultConfig returns a configuration matching the reference installation
func DefaultConfig() *Config {
	return &Config{
		Geometry: GeometryConfig{
			Width:     23.5,   // Emitter 0 to emitter 1
			Height:    33.75,  // Emitter 1 to emitter 2
			Z:         7.583,  // Ceiling-mounted emitters
			WaveSpeed: 1135.0, // Speed of sound in ft/s
		},
		Timer: TimerConfig{
			Frequency:    1e6,                    // 1 MHz capture counter
			CounterMax:   math.MaxUint32,         // 32-bit down-counter
			StaleAfter:   time.Second,            // One second of ticks
			PulseSpacing: 100 * time.Millisecond, // Emitters fire 100 ms apart
		},
		Solver: SolverConfig{
			Damping:              0.1,
			ConvergenceThreshold: 0.01,
			AcceptanceCeiling:    0.5,
			MaxIterations:        100,
		},
		Capture: CaptureConfig{
			Mode:     "sim",          // Simulated captures by default
			Port:     "/dev/ttyACM0", // Common USB CDC device path
			BaudRate: 115200,
			Timeout:  5 * time.Second,
			Sim: SimConfig{
				Path:   "circle",
				Radius: 8.0,
				Period: 20 * time.Second,
				Cycle:  500 * time.Millisecond, // Four pulses plus guard time
				Jitter: 2,
				Seed:   1,
			},
		},
		Site: SiteConfig{
			Mode:     "none",
			Port:     "/dev/ttyUSB0",
			BaudRate: 9600,
			GPSDHost: "localhost",
			GPSDPort: "2947",
			Timeout:  30 * time.Second,
		},
		Display: DisplayConfig{
			Progress: false,
			Fixes:    true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// Params converts the geometry, timer and solver sections into positioning
// parameters
func (c *Config) Params() position.Params {
	return position.Params{
		Width:         c.Geometry.Width,
		Height:        c.Geometry.Height,
		Z:             c.Geometry.Z,
		CounterFreq:   c.Timer.Frequency,
		CounterMax:    position.Tick(c.Timer.CounterMax),
		StaleMargin:   position.Tick(math.Round(c.Timer.StaleAfter.Seconds() * c.Timer.Frequency)),
		WaveSpeed:     c.Geometry.WaveSpeed,
		PulseSpacing:  c.Timer.PulseSpacing,
		Damping:       c.Solver.Damping,
		ConvergeBelow: c.Solver.ConvergenceThreshold,
		AcceptBelow:   c.Solver.AcceptanceCeiling,
		MaxIterations: c.Solver.MaxIterations,
	}
}

// Validate checks the configuration for values the receiver cannot run with
func (c *Config) Validate() error {
	if c.Timer.StaleAfter <= 0 {
		return fmt.Errorf("stale_after must be positive, got %v", c.Timer.StaleAfter)
	}
	if err := c.Params().Validate(); err != nil {
		return err
	}

	switch c.Capture.Mode {
	case "serial":
		if c.Capture.Port == "" {
			return fmt.Errorf("capture port not specified for serial mode")
		}
		if c.Capture.BaudRate <= 0 {
			return fmt.Errorf("invalid capture baud rate: %d", c.Capture.BaudRate)
		}
	case "sim":
		if c.Capture.Sim.Cycle <= 0 {
			return fmt.Errorf("simulator cycle must be positive, got %v", c.Capture.Sim.Cycle)
		}
		if c.Capture.Sim.Path != "circle" && c.Capture.Sim.Path != "fixed" {
			return fmt.Errorf("invalid simulator path: %s (must be 'circle' or 'fixed')", c.Capture.Sim.Path)
		}
		if c.Capture.Sim.Dropout < 0 || c.Capture.Sim.Dropout > 1 {
			return fmt.Errorf("simulator dropout must be between 0 and 1, got %.2f", c.Capture.Sim.Dropout)
		}
	default:
		return fmt.Errorf("invalid capture mode: %s (must be 'serial' or 'sim')", c.Capture.Mode)
	}

	switch c.Site.Mode {
	case "none", "":
	case "manual":
		if c.Site.ManualLatitude < -90 || c.Site.ManualLatitude > 90 {
			return fmt.Errorf("invalid latitude: %.8f (must be between -90 and 90 degrees)", c.Site.ManualLatitude)
		}
		if c.Site.ManualLongitude < -180 || c.Site.ManualLongitude > 180 {
			return fmt.Errorf("invalid longitude: %.8f (must be between -180 and 180 degrees)", c.Site.ManualLongitude)
		}
	case "nmea":
		if c.Site.Port == "" {
			return fmt.Errorf("GPS port not specified for NMEA site mode")
		}
	case "gpsd":
		if c.Site.GPSDHost == "" || c.Site.GPSDPort == "" {
			return fmt.Errorf("GPSD host and port must be specified for gpsd site mode")
		}
	default:
		return fmt.Errorf("invalid site mode: %s (must be 'none', 'manual', 'nmea' or 'gpsd')", c.Site.Mode)
	}

	return nil
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// Load reads a YAML configuration file over the defaults
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}
