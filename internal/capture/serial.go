package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/YingVictor/ultrasonic-positioning/internal/logging"
	"github.com/YingVictor/ultrasonic-positioning/internal/position"
)

var log = logging.New("capture")

// LineSource reads $UPTDA sentences from a byte stream, typically the
// receiver board's serial port. Lines that are not valid sentences are
// skipped.
type LineSource struct {
	rc       io.ReadCloser
	captures chan position.Capture
	done     chan struct{}
	stop     chan struct{}
	err      error // read error that ended the stream; valid after done closes

	mu      sync.Mutex
	skipped int
	closed  bool
}

// NewSerialSource opens a serial port and reads captures from it.
func NewSerialSource(portName string, baudRate int) (*LineSource, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture port %s: %w", portName, err)
	}
	log.Infof("Reading captures from %s at %d baud", portName, baudRate)

	return NewLineSource(port), nil
}

// NewLineSource starts reading sentences from rc.
func NewLineSource(rc io.ReadCloser) *LineSource {
	s := &LineSource{
		rc:       rc,
		captures: make(chan position.Capture, 4),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *LineSource) readLoop() {
	defer close(s.done)
	scanner := bufio.NewScanner(s.rc)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Boot banners and debug prints share the link; only sentences matter
		if len(line) == 0 || line[0] != '$' || !isPrintable(line) {
			continue
		}

		c, err := ParseTDA(line)
		if err != nil {
			s.mu.Lock()
			s.skipped++
			s.mu.Unlock()
			log.Debugf("Skipping line %q: %v", line, err)
			continue
		}

		select {
		case s.captures <- c:
		case <-s.stop:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			log.Warnf("Scanner error: %v", err)
			s.err = err
		}
	}
	log.Debugf("Capture read loop ended")
}

func isPrintable(line string) bool {
	for _, r := range line {
		if r < 32 || r > 126 {
			return false
		}
	}
	return true
}

// Next returns the next capture in arrival order.
func (s *LineSource) Next(ctx context.Context) (position.Capture, error) {
	select {
	case c := <-s.captures:
		return c, nil
	case <-ctx.Done():
		return position.Capture{}, ctx.Err()
	case <-s.done:
		// Drain anything queued before the stream ended
		select {
		case c := <-s.captures:
			return c, nil
		default:
		}
		if s.err != nil {
			return position.Capture{}, fmt.Errorf("capture stream failed: %w", s.err)
		}
		return position.Capture{}, io.EOF
	}
}

// Skipped returns how many sentence-like lines failed to parse.
func (s *LineSource) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// Close closes the underlying stream and stops the read loop.
func (s *LineSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.stop)
	return s.rc.Close()
}
