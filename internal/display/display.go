// Package display renders solver progress and accepted fixes for a human
// watching the receiver. Nothing here feeds back into positioning.
package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/YingVictor/ultrasonic-positioning/internal/position"
)

// Panel dimensions of the character display the receiver was built around.
const (
	Rows = 2
	Cols = 16
)

// Panel is a character grid written at (row, col) positions. Text past the
// right edge is dropped.
type Panel struct {
	cells [Rows][Cols]byte
}

// NewPanel returns a blank panel.
func NewPanel() *Panel {
	p := &Panel{}
	p.Clear()
	return p
}

// Clear blanks every cell.
func (p *Panel) Clear() {
	for r := range p.cells {
		for c := range p.cells[r] {
			p.cells[r][c] = ' '
		}
	}
}

// Print writes s starting at (row, col).
func (p *Panel) Print(row, col int, s string) {
	if row < 0 || row >= Rows {
		return
	}
	for i := 0; i < len(s) && col+i < Cols; i++ {
		if col+i >= 0 {
			p.cells[row][col+i] = s[i]
		}
	}
}

// Row returns the text of one row.
func (p *Panel) Row(row int) string {
	return string(p.cells[row][:])
}

// Display writes panels and fix lines to an io.Writer. It is safe for use by
// the producer and by readers at the same time.
type Display struct {
	mu       sync.Mutex
	w        io.Writer
	panel    *Panel
	progress bool
}

// New returns a display writing to w. When progress is false, solver
// iterations are not shown.
func New(w io.Writer, progress bool) *Display {
	return &Display{w: w, panel: NewPanel(), progress: progress}
}

// Progress shows one solver step: position and cost on the top row, gradient
// and iteration number below.
func (d *Display) Progress(it position.Iteration) {
	if !d.progress {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.panel.Print(1, 0, fmt.Sprintf("dX:%.1f dY:%.1f %d  ", it.DX, it.DY, it.Index))
	d.panel.Print(0, 0, fmt.Sprintf("X:%.1f Y:%.1f   ", it.X, it.Y))
	d.panel.Print(0, 13, fmt.Sprintf(" %.1f     ", it.Cost))
	fmt.Fprintf(d.w, "|%s|%s|\n", d.panel.Row(0), d.panel.Row(1))
}

// Fix prints an accepted fix. Extra, when not empty, is appended verbatim.
func (d *Display) Fix(seq int, f position.Fix, extra string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	line := fmt.Sprintf("#%-5d x=%+7.2f ft  y=%+7.2f ft  err=%.4f ft²", seq, f.X, f.Y, f.Error)
	if extra != "" {
		line += "  " + strings.TrimSpace(extra)
	}
	fmt.Fprintln(d.w, line)
}

// Printf writes a free-form status line.
func (d *Display) Printf(format string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, format, args...)
}
