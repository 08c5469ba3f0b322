package site

import (
	"fmt"
	"sync"
	"time"

	"github.com/stratoberry/go-gpsd"
)

// GPSDClient reads fixes from a gpsd daemon.
type GPSDClient struct {
	client   *gpsd.Session
	mu       sync.RWMutex
	position Position
	fixChan  chan Position
	host     string
	port     string
}

// NewGPSDClient returns a client for the daemon at host:port. The connection
// is made by Start.
func NewGPSDClient(host, port string) *GPSDClient {
	return &GPSDClient{
		fixChan: make(chan Position, 10),
		host:    host,
		port:    port,
	}
}

func (g *GPSDClient) Start() error {
	address := gpsd.DefaultAddress
	if g.host != "" && g.port != "" {
		address = fmt.Sprintf("%s:%s", g.host, g.port)
	}
	client, err := gpsd.Dial(address)
	if err != nil {
		return fmt.Errorf("failed to connect to gpsd at %s: %w", address, err)
	}
	g.client = client

	g.client.AddFilter("TPV", func(r interface{}) {
		if tpv, ok := r.(*gpsd.TPVReport); ok {
			g.handleTPV(tpv)
		}
	})
	g.client.AddFilter("SKY", func(r interface{}) {
		if sky, ok := r.(*gpsd.SKYReport); ok {
			g.handleSKY(sky)
		}
	})
	g.client.Watch()
	log.Infof("Watching gpsd at %s", address)

	return nil
}

func (g *GPSDClient) handleTPV(tpv *gpsd.TPVReport) {
	// Mode 2 and 3 are 2D and 3D fixes
	if tpv.Mode != 2 && tpv.Mode != 3 {
		return
	}
	if tpv.Lat == 0 && tpv.Lon == 0 {
		return
	}

	g.mu.Lock()
	pos := Position{
		Latitude:   tpv.Lat,
		Longitude:  tpv.Lon,
		Altitude:   tpv.Alt,
		Timestamp:  tpv.Time,
		FixQuality: 1,
		Satellites: g.position.Satellites, // TPV carries no satellite count
	}
	g.position = pos
	g.mu.Unlock()

	select {
	case g.fixChan <- pos:
	default:
	}
}

func (g *GPSDClient) handleSKY(sky *gpsd.SKYReport) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.position.Satellites = len(sky.Satellites)
}

func (g *GPSDClient) WaitForFix(timeout time.Duration) (*Position, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case pos := <-g.fixChan:
		return &pos, nil
	case <-timer.C:
		return nil, fmt.Errorf("GPS fix timeout after %v", timeout)
	}
}

func (g *GPSDClient) CurrentPosition() (*Position, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.position.FixQuality == 0 {
		return nil, fmt.Errorf("no GPS fix available")
	}
	pos := g.position
	return &pos, nil
}

func (g *GPSDClient) IsFixValid() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.position.FixQuality > 0
}

func (g *GPSDClient) FixQualityString() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fixQualityString(g.position.FixQuality, " (via gpsd)")
}

func (g *GPSDClient) Close() error {
	if g.client != nil {
		g.client.Close()
	}
	return nil
}
