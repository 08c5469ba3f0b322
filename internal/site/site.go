// Package site ties the emitter rectangle to geographic coordinates. The
// rectangle center is anchored at a surveyed or GPS-reported position and the
// local +y axis points along a configured heading.
package site

import (
	"fmt"
	"math"
	"time"

	"github.com/YingVictor/ultrasonic-positioning/internal/logging"
)

var log = logging.New("site")

const (
	earthRadius   = 6371008.8 // mean radius (m)
	metersPerFoot = 0.3048
)

// Position is one GPS report.
type Position struct {
	Latitude   float64
	Longitude  float64
	Altitude   float64
	Timestamp  time.Time
	FixQuality int
	Satellites int
}

// Anchor places the rectangle center on the earth.
type Anchor struct {
	Latitude  float64 // decimal degrees
	Longitude float64 // decimal degrees
	Altitude  float64 // meters
	Heading   float64 // bearing of the local +y axis, degrees clockwise from north
}

// AnchorAt builds an anchor from a GPS position.
func AnchorAt(pos Position, heading float64) Anchor {
	return Anchor{
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
		Altitude:  pos.Altitude,
		Heading:   heading,
	}
}

// Validate reports coordinates outside the valid range.
func (a Anchor) Validate() error {
	if a.Latitude < -90 || a.Latitude > 90 {
		return fmt.Errorf("invalid latitude: %.8f (must be between -90 and 90 degrees)", a.Latitude)
	}
	if a.Longitude < -180 || a.Longitude > 180 {
		return fmt.Errorf("invalid longitude: %.8f (must be between -180 and 180 degrees)", a.Longitude)
	}
	return nil
}

// Locate converts a local position in feet into latitude and longitude. The
// flat-earth approximation holds for rooms and yards, not for kilometers.
func (a Anchor) Locate(xFeet, yFeet float64) (lat, lon float64) {
	east, north := a.rotate(xFeet*metersPerFoot, yFeet*metersPerFoot)
	lat = a.Latitude + north/earthRadius*180/math.Pi
	lon = a.Longitude + east/(earthRadius*math.Cos(a.Latitude*math.Pi/180))*180/math.Pi
	return lat, lon
}

// Offset is the inverse of Locate.
func (a Anchor) Offset(lat, lon float64) (xFeet, yFeet float64) {
	north := (lat - a.Latitude) * math.Pi / 180 * earthRadius
	east := (lon - a.Longitude) * math.Pi / 180 * earthRadius * math.Cos(a.Latitude*math.Pi/180)

	h := a.Heading * math.Pi / 180
	x := east*math.Cos(h) - north*math.Sin(h)
	y := east*math.Sin(h) + north*math.Cos(h)
	return x / metersPerFoot, y / metersPerFoot
}

func (a Anchor) rotate(x, y float64) (east, north float64) {
	h := a.Heading * math.Pi / 180
	east = x*math.Cos(h) + y*math.Sin(h)
	north = -x*math.Sin(h) + y*math.Cos(h)
	return east, north
}

// String formats the anchor for logs.
func (a Anchor) String() string {
	return fmt.Sprintf("%.6f°, %.6f° (alt %.1fm, heading %.1f°)", a.Latitude, a.Longitude, a.Altitude, a.Heading)
}

// Provider is a source of GPS positions used to anchor the site.
type Provider interface {
	Start() error
	WaitForFix(timeout time.Duration) (*Position, error)
	CurrentPosition() (*Position, error)
	IsFixValid() bool
	FixQualityString() string
	Close() error
}

// Survey waits for a GPS fix and anchors the site there.
func Survey(p Provider, timeout time.Duration, heading float64) (Anchor, error) {
	if err := p.Start(); err != nil {
		return Anchor{}, fmt.Errorf("failed to start GPS: %w", err)
	}
	log.Infof("Waiting for GPS fix (timeout %v)...", timeout)
	pos, err := p.WaitForFix(timeout)
	if err != nil {
		return Anchor{}, err
	}
	log.Infof("GPS fix: %s, %d satellites", p.FixQualityString(), pos.Satellites)
	return AnchorAt(*pos, heading), nil
}

func fixQualityString(quality int, suffix string) string {
	var s string
	switch quality {
	case 0:
		s = "Invalid"
	case 1:
		s = "GPS fix (SPS)"
	case 2:
		s = "DGPS fix"
	case 3:
		s = "PPS fix"
	case 4:
		s = "Real Time Kinematic"
	case 5:
		s = "Float RTK"
	case 6:
		s = "estimated (dead reckoning)"
	case 7:
		s = "Manual input mode"
	case 8:
		s = "Simulation mode"
	default:
		s = "Unknown"
	}
	return s + suffix
}
