package site

import (
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stratoberry/go-gpsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocateFollowsHeading(t *testing.T) {
	oneMeter := 1 / metersPerFoot
	degPerMeter := 180 / (math.Pi * earthRadius)

	north := Anchor{Latitude: 40, Longitude: -105}
	lat, lon := north.Locate(0, oneMeter)
	assert.InDelta(t, 40+degPerMeter, lat, 1e-12)
	assert.InDelta(t, -105, lon, 1e-12)

	// +x is a quarter turn clockwise from +y
	lat, lon = north.Locate(oneMeter, 0)
	assert.InDelta(t, 40, lat, 1e-12)
	assert.Greater(t, lon, -105.0)

	east := Anchor{Latitude: 40, Longitude: -105, Heading: 90}
	lat, lon = east.Locate(0, oneMeter)
	assert.InDelta(t, 40, lat, 1e-12)
	assert.InDelta(t, -105+degPerMeter/math.Cos(40*math.Pi/180), lon, 1e-12)
}

func TestOffsetInvertsLocate(t *testing.T) {
	a := Anchor{Latitude: 33.349, Longitude: -111.758, Heading: 37.5}
	for _, pt := range [][2]float64{{0, 0}, {5, -3}, {-11.75, 16.875}, {100, 250}} {
		lat, lon := a.Locate(pt[0], pt[1])
		x, y := a.Offset(lat, lon)
		assert.InDelta(t, pt[0], x, 1e-6)
		assert.InDelta(t, pt[1], y, 1e-6)
	}
}

func TestAnchorValidate(t *testing.T) {
	assert.NoError(t, Anchor{Latitude: 90, Longitude: -180}.Validate())
	assert.Error(t, Anchor{Latitude: 91}.Validate())
	assert.Error(t, Anchor{Longitude: 180.5}.Validate())
}

type fakePort struct {
	io.Reader
	written int
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.written += len(b)
	return len(b), nil
}

func (p *fakePort) Close() error { return nil }

func TestNMEASerialFix(t *testing.T) {
	stream := strings.Join([]string{
		"$GPGGA,123519,4807.038,N,01131.000,E,0,00,,,M,,M,,*52",
		"garbage",
		"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47",
		"$GPRMC,123520,A,4807.040,N,01131.010,E,022.4,084.4,230394,003.1,W*6E",
	}, "\r\n") + "\r\n"

	n := newNMEAReader(&fakePort{Reader: strings.NewReader(stream)})
	require.NoError(t, n.Start())

	pos, err := n.WaitForFix(time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 48.1173, pos.Latitude, 1e-6)
	assert.InDelta(t, 11.516667, pos.Longitude, 1e-6)
	assert.Equal(t, 545.4, pos.Altitude)
	assert.Equal(t, 8, pos.Satellites)
	assert.Equal(t, "GPS fix (SPS)", n.FixQualityString())

	<-n.done
	cur, err := n.CurrentPosition()
	require.NoError(t, err)
	assert.InDelta(t, 48.117333, cur.Latitude, 1e-6)
	assert.Equal(t, 545.4, cur.Altitude)
	assert.Equal(t, 35, cur.Timestamp.Minute())
}

func TestNMEASerialNoFix(t *testing.T) {
	n := newNMEAReader(&fakePort{Reader: strings.NewReader(
		"$GPGGA,123519,4807.038,N,01131.000,E,0,00,,,M,,M,,*52\r\n")})
	require.NoError(t, n.Start())

	_, err := n.WaitForFix(time.Second)
	assert.Error(t, err)
	assert.False(t, n.IsFixValid())
	_, err = n.CurrentPosition()
	assert.Error(t, err)
}

func TestGPSDSatelliteCountPreservation(t *testing.T) {
	g := NewGPSDClient("localhost", "2947")

	g.handleSKY(&gpsd.SKYReport{Satellites: make([]gpsd.Satellite, 4)})
	assert.False(t, g.IsFixValid())

	g.handleTPV(&gpsd.TPVReport{Mode: 3, Lat: 33.349, Lon: -111.758, Alt: 359.84, Time: time.Now()})

	pos, err := g.CurrentPosition()
	require.NoError(t, err)
	assert.Equal(t, 1, pos.FixQuality)
	assert.Equal(t, 4, pos.Satellites)
	assert.Equal(t, 33.349, pos.Latitude)
	assert.Equal(t, -111.758, pos.Longitude)

	g.handleSKY(&gpsd.SKYReport{Satellites: make([]gpsd.Satellite, 6)})
	pos, err = g.CurrentPosition()
	require.NoError(t, err)
	assert.Equal(t, 6, pos.Satellites)
	assert.Equal(t, 33.349, pos.Latitude)

	fix, err := g.WaitForFix(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 359.84, fix.Altitude)
}

func TestGPSDIgnoresNoFix(t *testing.T) {
	g := NewGPSDClient("localhost", "2947")
	g.handleTPV(&gpsd.TPVReport{Mode: 1, Lat: 33.349, Lon: -111.758})
	g.handleTPV(&gpsd.TPVReport{Mode: 3})

	assert.False(t, g.IsFixValid())
	_, err := g.WaitForFix(10 * time.Millisecond)
	assert.Error(t, err)
}

type stubProvider struct {
	pos      *Position
	startErr error
}

func (s *stubProvider) Start() error { return s.startErr }
func (s *stubProvider) WaitForFix(time.Duration) (*Position, error) {
	if s.pos == nil {
		return nil, errors.New("timeout")
	}
	return s.pos, nil
}
func (s *stubProvider) CurrentPosition() (*Position, error) { return s.pos, nil }
func (s *stubProvider) IsFixValid() bool { return s.pos != nil }
func (s *stubProvider) FixQualityString() string { return "stub" }
func (s *stubProvider) Close() error { return nil }

func TestSurvey(t *testing.T) {
	a, err := Survey(&stubProvider{pos: &Position{Latitude: 1, Longitude: 2, Altitude: 3, Satellites: 7}}, time.Second, 45)
	require.NoError(t, err)
	assert.Equal(t, Anchor{Latitude: 1, Longitude: 2, Altitude: 3, Heading: 45}, a)

	_, err = Survey(&stubProvider{startErr: errors.New("no device")}, time.Second, 0)
	assert.Error(t, err)

	_, err = Survey(&stubProvider{}, time.Second, 0)
	assert.Error(t, err)
}
