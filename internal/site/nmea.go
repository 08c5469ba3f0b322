package site

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"go.bug.st/serial"
)

// NMEASerial reads GGA and RMC sentences from a serial GPS receiver.
type NMEASerial struct {
	port     io.ReadWriteCloser
	position Position
	fixChan  chan Position
	mu       sync.RWMutex
	done     chan struct{}
}

// NewNMEASerial opens a serial GPS receiver.
func NewNMEASerial(portName string, baudRate int) (*NMEASerial, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPS port %s: %w", portName, err)
	}

	n := newNMEAReader(port)
	n.configureUbloxNMEA()
	return n, nil
}

func newNMEAReader(port io.ReadWriteCloser) *NMEASerial {
	return &NMEASerial{
		port:    port,
		fixChan: make(chan Position, 10),
		done:    make(chan struct{}),
	}
}

// configureUbloxNMEA asks u-blox receivers to emit GGA and RMC on UART1.
// Other receivers ignore the UBX frames.
func (n *NMEASerial) configureUbloxNMEA() {
	// UBX-CFG-MSG class 0xF0, IDs 0x00 (GGA) and 0x04 (RMC), rate 1 on port 1
	ggaCmd := []byte{0xB5, 0x62, 0x06, 0x01, 0x08, 0x00, 0xF0, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x01, 0x31}
	rmcCmd := []byte{0xB5, 0x62, 0x06, 0x01, 0x08, 0x00, 0xF0, 0x04, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x05, 0x3B}

	for _, cmd := range [][]byte{ggaCmd, rmcCmd} {
		if _, err := n.port.Write(cmd); err != nil {
			log.Warnf("Failed to send u-blox configuration: %v", err)
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	log.Debugf("Sent u-blox configuration commands to enable NMEA GGA/RMC output")
}

// Start begins reading sentences in the background.
func (n *NMEASerial) Start() error {
	go n.readLoop()
	return nil
}

func (n *NMEASerial) readLoop() {
	defer close(n.done)
	scanner := bufio.NewScanner(n.port)

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] != '$' {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			log.Debugf("NMEA parse error: %v (line: %s)", err, line)
			continue
		}

		switch s := sentence.(type) {
		case nmea.GGA:
			n.processGGA(s)
		case nmea.RMC:
			n.processRMC(s)
		default:
			log.Debugf("Ignoring %T sentence", s)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Warnf("GPS scanner error: %v", err)
	}
}

func (n *NMEASerial) processGGA(s nmea.GGA) {
	var quality int
	switch s.FixQuality {
	case nmea.GPS:
		quality = 1
	case nmea.DGPS:
		quality = 2
	case nmea.PPS:
		quality = 3
	case nmea.RTK:
		quality = 4
	case nmea.FRTK:
		quality = 5
	case nmea.Manual:
		quality = 7
	default:
		return
	}

	pos := Position{
		Latitude:   s.Latitude,
		Longitude:  s.Longitude,
		Altitude:   s.Altitude,
		Timestamp:  time.Now(),
		FixQuality: quality,
		Satellites: int(s.NumSatellites),
	}

	n.mu.Lock()
	n.position = pos
	n.mu.Unlock()

	select {
	case n.fixChan <- pos:
	default:
	}
}

// processRMC refreshes the coordinates and time of an existing fix. RMC has
// no altitude or quality so it never creates a fix on its own.
func (n *NMEASerial) processRMC(s nmea.RMC) {
	if s.Validity != "A" {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.position.FixQuality == 0 {
		return
	}

	ts := time.Now().UTC()
	if s.Time.Valid {
		ts = time.Date(ts.Year(), ts.Month(), ts.Day(),
			s.Time.Hour, s.Time.Minute, s.Time.Second, s.Time.Millisecond*int(time.Millisecond), time.UTC)
	}
	n.position.Latitude = s.Latitude
	n.position.Longitude = s.Longitude
	n.position.Timestamp = ts
}

// WaitForFix blocks until a GGA sentence reports a valid fix.
func (n *NMEASerial) WaitForFix(timeout time.Duration) (*Position, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case pos := <-n.fixChan:
			return &pos, nil
		case <-n.done:
			select {
			case pos := <-n.fixChan:
				return &pos, nil
			default:
			}
			return nil, fmt.Errorf("GPS stream ended before a fix")
		case <-timer.C:
			return nil, fmt.Errorf("GPS fix timeout after %v; check that the receiver outputs NMEA GGA sentences or use site mode gpsd", timeout)
		}
	}
}

// CurrentPosition returns the latest fix.
func (n *NMEASerial) CurrentPosition() (*Position, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.position.FixQuality == 0 {
		return nil, fmt.Errorf("no GPS fix available")
	}
	pos := n.position
	return &pos, nil
}

func (n *NMEASerial) IsFixValid() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.position.FixQuality > 0
}

func (n *NMEASerial) FixQualityString() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return fixQualityString(n.position.FixQuality, "")
}

func (n *NMEASerial) Close() error {
	if n.port != nil {
		return n.port.Close()
	}
	return nil
}
