// Package replay runs recorded capture logs back through the positioning
// pipeline and summarises how the solver behaved.
package replay

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/YingVictor/ultrasonic-positioning/internal/capturelog"
	"github.com/YingVictor/ultrasonic-positioning/internal/logging"
	"github.com/YingVictor/ultrasonic-positioning/internal/position"
	"github.com/YingVictor/ultrasonic-positioning/internal/site"
)

var log = logging.New("replay")

// Rejection reasons as they appear in exports.
const (
	ReasonNoCapture   = "no_capture"
	ReasonStale       = "stale"
	ReasonImplausible = "implausible"
	ReasonNotAccepted = "not_accepted"
)

// Options controls a replay.
type Options struct {
	Params    *position.Params // overrides the parameters stored in the log
	Anchor    *site.Anchor     // overrides the anchor stored in the log
	Reference bool             // also solve each cycle by Gauss-Newton least squares
	Progress  position.ProgressFunc
}

// Cycle is the outcome of one recorded capture.
type Cycle struct {
	Index      int
	Time       time.Time
	Capture    position.Capture
	Accepted   bool
	Reason     string // empty when accepted
	X, Y       float64
	Cost       float64
	Iterations int
	Reference  *Reference
}

// Summary aggregates a replay.
type Summary struct {
	Cycles         int
	Accepted       int
	Rejected       map[string]int
	AcceptRatio    float64
	MeanCost       float64
	StdCost        float64
	MeanIterations float64
	StdIterations  float64
	MeanX, MeanY   float64
	StdX, StdY     float64

	// Distance between published fixes and the reference solution (ft)
	ReferenceCompared  int
	MeanReferenceDelta float64
	MaxReferenceDelta  float64
}

// Result holds every cycle of a replay plus its summary.
type Result struct {
	SessionID      string
	Params         position.Params
	Anchor         *site.Anchor
	Cycles         []Cycle
	Summary        Summary
	ProcessingTime time.Time
}

// ProcessFile loads a capture log and replays it.
func ProcessFile(filename string, opts Options) (*Result, error) {
	header, records, err := capturelog.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture log %s: %w", filename, err)
	}
	log.Infof("Loaded %d records from session %s", len(records), header.SessionID)
	return Run(header, records, opts)
}

// Run replays records through a fresh positioner built from the header
// parameters, or from opts.Params when set.
func Run(header *capturelog.Header, records []capturelog.Record, opts Options) (*Result, error) {
	params := header.Params
	if opts.Params != nil {
		params = *opts.Params
	}
	anchor := header.Anchor
	if opts.Anchor != nil {
		anchor = opts.Anchor
	}

	var popts []position.Option
	if opts.Progress != nil {
		popts = append(popts, position.WithProgress(opts.Progress))
	}
	p, err := position.NewPositioner(params, popts...)
	if err != nil {
		return nil, err
	}

	res := &Result{
		SessionID:      header.SessionID.String(),
		Params:         params,
		Anchor:         anchor,
		Cycles:         make([]Cycle, 0, len(records)),
		ProcessingTime: time.Now(),
	}

	var refX, refY float64
	for i, rec := range records {
		c := Cycle{Index: i, Time: rec.Time, Capture: rec.Capture}

		sol, err := p.Process(rec.Capture)
		c.Iterations = sol.Iterations
		c.Cost = sol.Cost
		switch {
		case err == nil:
			c.Accepted = true
			c.X, c.Y = sol.X, sol.Y
		case errors.Is(err, position.ErrNotAccepted):
			c.Reason = ReasonNotAccepted
			c.X, c.Y = sol.X, sol.Y
		default:
			c.Reason = reasonOf(err)
		}

		if opts.Reference && c.Reason != ReasonNoCapture && c.Reason != ReasonStale {
			if d, err := position.ComputeDifferences(rec.Capture, params); err == nil {
				ref := SolveReference(params, refX, refY, d)
				if ref.Converged {
					refX, refY = ref.X, ref.Y
				}
				c.Reference = &ref
			}
		}

		res.Cycles = append(res.Cycles, c)
	}

	res.Summary = summarize(res.Cycles)
	return res, nil
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, position.ErrNoCapture):
		return ReasonNoCapture
	case errors.Is(err, position.ErrStaleCapture):
		return ReasonStale
	case errors.Is(err, position.ErrImplausible):
		return ReasonImplausible
	case errors.Is(err, position.ErrNotAccepted):
		return ReasonNotAccepted
	}
	return err.Error()
}

func summarize(cycles []Cycle) Summary {
	s := Summary{Cycles: len(cycles), Rejected: map[string]int{}}

	var xs, ys, costs, iters, deltas []float64
	for _, c := range cycles {
		if !c.Accepted {
			s.Rejected[c.Reason]++
			continue
		}
		s.Accepted++
		xs = append(xs, c.X)
		ys = append(ys, c.Y)
		costs = append(costs, c.Cost)
		iters = append(iters, float64(c.Iterations))

		if c.Reference != nil && c.Reference.Converged {
			d := c.Reference.Distance(c.X, c.Y)
			deltas = append(deltas, d)
			if d > s.MaxReferenceDelta {
				s.MaxReferenceDelta = d
			}
		}
	}

	if s.Cycles > 0 {
		s.AcceptRatio = float64(s.Accepted) / float64(s.Cycles)
	}
	if s.Accepted > 0 {
		s.MeanX, s.StdX = meanStdDev(xs)
		s.MeanY, s.StdY = meanStdDev(ys)
		s.MeanCost, s.StdCost = meanStdDev(costs)
		s.MeanIterations, s.StdIterations = meanStdDev(iters)
	}
	if len(deltas) > 0 {
		s.ReferenceCompared = len(deltas)
		s.MeanReferenceDelta = stat.Mean(deltas, nil)
	}
	return s
}

// meanStdDev returns a zero deviation for a single sample instead of NaN.
func meanStdDev(x []float64) (float64, float64) {
	if len(x) == 1 {
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}

// Print writes a human-readable summary to stdout.
func (r *Result) Print() {
	s := r.Summary
	fmt.Printf("Session: %s\n", r.SessionID)
	fmt.Printf("Cycles: %d, accepted: %d (%.1f%%)\n", s.Cycles, s.Accepted, 100*s.AcceptRatio)
	for _, reason := range []string{ReasonNoCapture, ReasonStale, ReasonImplausible, ReasonNotAccepted} {
		if n := s.Rejected[reason]; n > 0 {
			fmt.Printf("  rejected %-12s %d\n", reason+":", n)
		}
	}
	if s.Accepted > 0 {
		fmt.Printf("Position: x=%.2f±%.2f ft, y=%.2f±%.2f ft\n", s.MeanX, s.StdX, s.MeanY, s.StdY)
		fmt.Printf("Residual: %.4f±%.4f ft², iterations: %.1f±%.1f\n",
			s.MeanCost, s.StdCost, s.MeanIterations, s.StdIterations)
	}
	if s.ReferenceCompared > 0 {
		fmt.Printf("Reference: %d fixes compared, mean offset %.3f ft, max %.3f ft\n",
			s.ReferenceCompared, s.MeanReferenceDelta, s.MaxReferenceDelta)
	}
	if r.Anchor != nil {
		fmt.Printf("Anchor: %s\n", r.Anchor)
	}
}
