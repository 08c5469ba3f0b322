// Package capturelog stores raw capture cycles in a little-endian binary file
// so that sessions can be replayed through the solver later.
//
// Layout:
//
//	"UPOS"            magic
//	uint16            format version
//	[16]byte          session UUID
//	int64, int32      start time (unix seconds, nanoseconds)
//	params            geometry, timer and solver constants
//	uint8             anchor present
//	4 x float64       anchor latitude, longitude, altitude, heading
//	uint8 + bytes     device description
//	records           int64 unix nanoseconds + 4 x uint32 ticks, until EOF
package capturelog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/YingVictor/ultrasonic-positioning/internal/position"
	"github.com/YingVictor/ultrasonic-positioning/internal/site"
)

const (
	magic = "UPOS"

	// FormatVersion is written into every new log.
	FormatVersion uint16 = 1

	recordSize = 8 + 4*4
)

// ErrBadMagic is returned for files that are not capture logs.
var ErrBadMagic = errors.New("not a capture log")

// Header describes a recording session.
type Header struct {
	FormatVersion uint16
	SessionID     uuid.UUID
	StartTime     time.Time
	Params        position.Params
	Anchor        *site.Anchor // nil when the site was not anchored
	Device        string
}

// Record is one capture cycle.
type Record struct {
	Time    time.Time
	Capture position.Capture
}

// Writer appends records to a capture log.
type Writer struct {
	file   *os.File
	buf    *bufio.Writer
	header Header
	count  int
}

// Create starts a new log at path. A fresh session ID is assigned when the
// header has none.
func Create(path string, header Header) (*Writer, error) {
	if header.SessionID == uuid.Nil {
		header.SessionID = uuid.New()
	}
	if header.StartTime.IsZero() {
		header.StartTime = time.Now()
	}
	header.FormatVersion = FormatVersion

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture log: %w", err)
	}

	w := &Writer{file: file, buf: bufio.NewWriter(file), header: header}
	if err := writeHeader(w.buf, header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return w, nil
}

// Header returns the header as written.
func (w *Writer) Header() Header {
	return w.header
}

// Count returns the number of records written so far.
func (w *Writer) Count() int {
	return w.count
}

// Append writes one record.
func (w *Writer) Append(r Record) error {
	var b [recordSize]byte
	binary.LittleEndian.PutUint64(b[0:8], uint64(r.Time.UnixNano()))
	for i, t := range r.Capture {
		binary.LittleEndian.PutUint32(b[8+4*i:], uint32(t))
	}
	if _, err := w.buf.Write(b[:]); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	w.count++
	return nil
}

// Flush pushes buffered records to the file.
func (w *Writer) Flush() error {
	return w.buf.Flush()
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	return errors.Join(flushErr, closeErr)
}

func writeHeader(w io.Writer, h Header) error {
	if _, err := io.WriteString(w, magic); err != nil {
		return err
	}

	p := h.Params
	fields := []interface{}{
		h.FormatVersion,
		h.SessionID,
		h.StartTime.Unix(),
		int32(h.StartTime.Nanosecond()),
		p.Width, p.Height, p.Z,
		p.CounterFreq,
		uint32(p.CounterMax),
		uint32(p.StaleMargin),
		p.WaveSpeed,
		int64(p.PulseSpacing),
		p.Damping, p.ConvergeBelow, p.AcceptBelow,
		uint32(p.MaxIterations),
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}

	var anchor site.Anchor
	var hasAnchor uint8
	if h.Anchor != nil {
		anchor = *h.Anchor
		hasAnchor = 1
	}
	if err := binary.Write(w, binary.LittleEndian, hasAnchor); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, anchor); err != nil {
		return err
	}

	device := []byte(h.Device)
	if len(device) > 255 {
		device = device[:255]
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(len(device))); err != nil {
		return err
	}
	_, err := w.Write(device)
	return err
}

func readHeader(r io.Reader) (*Header, error) {
	m := make([]byte, len(magic))
	if _, err := io.ReadFull(r, m); err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}
	if string(m) != magic {
		return nil, ErrBadMagic
	}

	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h.FormatVersion); err != nil {
		return nil, err
	}
	if h.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported capture log version %d", h.FormatVersion)
	}

	var (
		startSec      int64
		startNsec     int32
		counterMax    uint32
		staleMargin   uint32
		pulseSpacing  int64
		maxIterations uint32
	)
	p := &h.Params
	fields := []interface{}{
		&h.SessionID,
		&startSec,
		&startNsec,
		&p.Width, &p.Height, &p.Z,
		&p.CounterFreq,
		&counterMax,
		&staleMargin,
		&p.WaveSpeed,
		&pulseSpacing,
		&p.Damping, &p.ConvergeBelow, &p.AcceptBelow,
		&maxIterations,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
	}
	h.StartTime = time.Unix(startSec, int64(startNsec))
	p.CounterMax = position.Tick(counterMax)
	p.StaleMargin = position.Tick(staleMargin)
	p.PulseSpacing = time.Duration(pulseSpacing)
	p.MaxIterations = int(maxIterations)

	var hasAnchor uint8
	var anchor site.Anchor
	if err := binary.Read(r, binary.LittleEndian, &hasAnchor); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &anchor); err != nil {
		return nil, err
	}
	if hasAnchor != 0 {
		h.Anchor = &anchor
	}

	var deviceLen uint8
	if err := binary.Read(r, binary.LittleEndian, &deviceLen); err != nil {
		return nil, err
	}
	device := make([]byte, deviceLen)
	if _, err := io.ReadFull(r, device); err != nil {
		return nil, err
	}
	h.Device = string(device)

	return &h, nil
}

// ReadHeader reads only the session header.
func ReadHeader(filename string) (*Header, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return readHeader(bufio.NewReader(file))
}

// ReadFile reads the header and every complete record. A record cut short by
// an interrupted recording is dropped.
func ReadFile(filename string) (*Header, []Record, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	h, err := readHeader(r)
	if err != nil {
		return nil, nil, err
	}

	var records []Record
	var b [recordSize]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, nil, fmt.Errorf("failed to read record %d: %w", len(records), err)
		}
		rec := Record{Time: time.Unix(0, int64(binary.LittleEndian.Uint64(b[0:8])))}
		for i := range rec.Capture {
			rec.Capture[i] = position.Tick(binary.LittleEndian.Uint32(b[8+4*i:]))
		}
		records = append(records, rec)
	}

	return h, records, nil
}
