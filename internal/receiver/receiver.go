// Package receiver runs the positioning loop: it pulls captures from the
// configured source, feeds them to the positioner, records them and prints
// accepted fixes.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/YingVictor/ultrasonic-positioning/internal/capture"
	"github.com/YingVictor/ultrasonic-positioning/internal/capturelog"
	"github.com/YingVictor/ultrasonic-positioning/internal/config"
	"github.com/YingVictor/ultrasonic-positioning/internal/display"
	"github.com/YingVictor/ultrasonic-positioning/internal/logging"
	"github.com/YingVictor/ultrasonic-positioning/internal/position"
	"github.com/YingVictor/ultrasonic-positioning/internal/site"
)

var log = logging.New("receiver")

// Stats counts what happened to each cycle.
type Stats struct {
	Cycles      int // captures taken from the source
	Accepted    int // fixes published
	NoCapture   int // a timestamp was zero
	Stale       int // a timestamp was older than the stale margin
	Implausible int // a difference exceeded the rectangle bound
	NotAccepted int // the solver residual was too high
	Recorded    int // captures written to the capture log
	Timeouts    int // waits longer than the capture timeout
}

// Rejected returns the number of cycles that produced no fix.
func (s Stats) Rejected() int {
	return s.NoCapture + s.Stale + s.Implausible + s.NotAccepted
}

type Receiver struct {
	config     *config.Config
	params     position.Params
	out        io.Writer
	source     capture.Source
	positioner *position.Positioner
	display    *display.Display
	gps        site.Provider
	anchor     *site.Anchor
	writer     *capturelog.Writer

	mu    sync.Mutex
	stats Stats
}

// NewReceiver returns a receiver that prints to out.
func NewReceiver(cfg *config.Config, out io.Writer) *Receiver {
	return &Receiver{
		config: cfg,
		params: cfg.Params(),
		out:    out,
	}
}

// Initialize opens the capture source, anchors the site and starts the
// capture log.
func (r *Receiver) Initialize(ctx context.Context) error {
	if err := r.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	r.display = display.New(r.out, r.config.Display.Progress)

	var err error
	r.positioner, err = position.NewPositioner(r.params,
		position.WithProgress(r.display.Progress),
		position.WithRejectHook(r.logRejection),
	)
	if err != nil {
		return err
	}

	device, err := r.openSource()
	if err != nil {
		return err
	}

	if err := r.anchorSite(ctx); err != nil {
		return err
	}

	if path := r.config.Recording.File; path != "" {
		r.writer, err = capturelog.Create(path, capturelog.Header{
			Params: r.params,
			Anchor: r.anchor,
			Device: device,
		})
		if err != nil {
			return err
		}
		h := r.writer.Header()
		log.Infof("Recording session %s to %s", h.SessionID, path)
	}

	return nil
}

func (r *Receiver) openSource() (string, error) {
	cc := r.config.Capture
	switch cc.Mode {
	case "serial":
		src, err := capture.NewSerialSource(cc.Port, cc.BaudRate)
		if err != nil {
			return "", err
		}
		r.source = src
		return cc.Port, nil
	case "sim":
		sim := cc.Sim
		src, err := capture.NewSimulator(r.params, capture.SimOptions{
			Path:    sim.Path,
			Radius:  sim.Radius,
			Period:  sim.Period,
			X:       sim.X,
			Y:       sim.Y,
			Cycle:   sim.Cycle,
			Jitter:  sim.Jitter,
			Dropout: sim.Dropout,
			Cycles:  sim.Cycles,
			Seed:    sim.Seed,
		})
		if err != nil {
			return "", fmt.Errorf("failed to create simulator: %w", err)
		}
		r.source = src
		return fmt.Sprintf("simulator (%s)", sim.Path), nil
	default:
		return "", fmt.Errorf("invalid capture mode: %s (must be 'serial' or 'sim')", cc.Mode)
	}
}

// anchorSite resolves the geographic anchor. GPS modes block until a fix,
// the timeout, or ctx cancellation.
func (r *Receiver) anchorSite(ctx context.Context) error {
	sc := r.config.Site
	switch sc.Mode {
	case "", "none":
		return nil
	case "manual":
		a := site.Anchor{
			Latitude:  sc.ManualLatitude,
			Longitude: sc.ManualLongitude,
			Altitude:  sc.ManualAltitude,
			Heading:   sc.Heading,
		}
		r.anchor = &a
		fmt.Fprintf(r.out, "Site anchored at manual coordinates: %s\n", a)
		return nil
	case "nmea":
		gps, err := site.NewNMEASerial(sc.Port, sc.BaudRate)
		if err != nil {
			return fmt.Errorf("failed to initialize NMEA GPS: %w", err)
		}
		r.gps = gps
	case "gpsd":
		r.gps = site.NewGPSDClient(sc.GPSDHost, sc.GPSDPort)
	default:
		return fmt.Errorf("invalid site mode: %s (must be 'none', 'manual', 'nmea' or 'gpsd')", sc.Mode)
	}

	fmt.Fprintf(r.out, "Waiting for GPS fix via %s (timeout: %v)...\n", sc.Mode, sc.Timeout)

	type result struct {
		anchor site.Anchor
		err    error
	}
	done := make(chan result, 1)
	go func() {
		a, err := site.Survey(r.gps, sc.Timeout, sc.Heading)
		done <- result{a, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("GPS fix failed: %w", res.err)
		}
		r.anchor = &res.anchor
	case <-ctx.Done():
		return fmt.Errorf("GPS fix cancelled: %w", ctx.Err())
	}

	fmt.Fprintf(r.out, "Site anchored at GPS fix: %s\n", r.anchor)
	return nil
}

// Anchor returns the site anchor, or nil when none is configured.
func (r *Receiver) Anchor() *site.Anchor {
	return r.anchor
}

// Positioner exposes the published state to other readers.
func (r *Receiver) Positioner() *position.Positioner {
	return r.positioner
}

// Run processes captures until the source ends or ctx is cancelled. Neither
// is an error.
func (r *Receiver) Run(ctx context.Context) error {
	if r.source == nil || r.positioner == nil {
		return fmt.Errorf("receiver not initialized")
	}

	for {
		c, err := r.next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			log.Infof("Capture source ended")
			return nil
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, context.DeadlineExceeded):
			r.count(func(s *Stats) { s.Timeouts++ })
			log.Warnf("No capture received for %v", r.config.Capture.Timeout)
			continue
		default:
			return err
		}

		if err := r.record(c); err != nil {
			return err
		}
		r.process(c)
		r.drain()
	}
}

func (r *Receiver) next(ctx context.Context) (position.Capture, error) {
	if r.config.Capture.Timeout <= 0 {
		return r.source.Next(ctx)
	}
	waitCtx, cancel := context.WithTimeout(ctx, r.config.Capture.Timeout)
	defer cancel()
	return r.source.Next(waitCtx)
}

func (r *Receiver) record(c position.Capture) error {
	if r.writer == nil {
		return nil
	}
	if err := r.writer.Append(capturelog.Record{Time: time.Now(), Capture: c}); err != nil {
		return err
	}
	r.count(func(s *Stats) { s.Recorded++ })
	return nil
}

func (r *Receiver) process(c position.Capture) {
	_, err := r.positioner.Process(c)

	r.count(func(s *Stats) {
		s.Cycles++
		switch {
		case err == nil:
			s.Accepted++
		case errors.Is(err, position.ErrNoCapture):
			s.NoCapture++
		case errors.Is(err, position.ErrStaleCapture):
			s.Stale++
		case errors.Is(err, position.ErrImplausible):
			s.Implausible++
		case errors.Is(err, position.ErrNotAccepted):
			s.NotAccepted++
		}
	})
}

// drain consumes the fresh-data flag and prints the fix it announces.
func (r *Receiver) drain() {
	if !r.positioner.DataAvailable() {
		return
	}
	if !r.config.Display.Fixes {
		return
	}

	fix := r.positioner.State().Snapshot()
	var extra string
	if r.anchor != nil {
		lat, lon := r.anchor.Locate(fix.X, fix.Y)
		extra = fmt.Sprintf("lat=%.7f lon=%.7f", lat, lon)
	}
	r.display.Fix(r.Stats().Accepted, fix, extra)
}

func (r *Receiver) logRejection(rej position.Rejection) {
	log.Debugf("Rejected cycle: %v (index %d, value %.3f)", rej.Reason, rej.Index, rej.Value)
}

func (r *Receiver) count(f func(*Stats)) {
	r.mu.Lock()
	f(&r.stats)
	r.mu.Unlock()
}

// Stats returns a copy of the counters.
func (r *Receiver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// PrintSummary writes the counters to the output.
func (r *Receiver) PrintSummary() {
	s := r.Stats()
	fmt.Fprintf(r.out, "Cycles: %d, accepted: %d, rejected: %d\n", s.Cycles, s.Accepted, s.Rejected())
	if s.Rejected() > 0 {
		fmt.Fprintf(r.out, "  missing pulse: %d, stale: %d, implausible: %d, high residual: %d\n",
			s.NoCapture, s.Stale, s.Implausible, s.NotAccepted)
	}
	if r.writer != nil {
		fmt.Fprintf(r.out, "Recorded %d captures\n", s.Recorded)
	}
}

func (r *Receiver) Close() error {
	var errs []error

	if r.source != nil {
		if err := r.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("capture source close error: %w", err))
		}
	}

	if r.writer != nil {
		if err := r.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("capture log close error: %w", err))
		}
	}

	if r.gps != nil {
		if err := r.gps.Close(); err != nil {
			errs = append(errs, fmt.Errorf("GPS close error: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %w", errors.Join(errs...))
	}
	return nil
}
