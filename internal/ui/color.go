// Package ui provides colored console output.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Printer writes status lines to one writer. Colors are enabled only when
// the writer is a terminal and NO_COLOR is unset.
type Printer struct {
	w io.Writer

	red    *color.Color
	green  *color.Color
	yellow *color.Color
	blue   *color.Color
	bold   *color.Color
}

// New creates a Printer for w.
func New(w io.Writer) *Printer {
	p := &Printer{
		w:      w,
		red:    color.New(color.FgRed),
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		blue:   color.New(color.FgBlue),
		bold:   color.New(color.Bold),
	}
	if !IsTerminal(w) || color.NoColor {
		p.SetColor(false)
	}
	return p
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SetColor forces colors on or off.
func (p *Printer) SetColor(enabled bool) {
	for _, c := range []*color.Color{p.red, p.green, p.yellow, p.blue, p.bold} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer { return p.w }

// Success prints a green success message with checkmark.
func (p *Printer) Success(format string, args ...any) {
	p.green.Fprintf(p.w, "✓ "+format+"\n", args...)
}

// Error prints a red error message with X.
func (p *Printer) Error(format string, args ...any) {
	p.red.Fprintf(p.w, "✗ "+format+"\n", args...)
}

// Warning prints a yellow warning message.
func (p *Printer) Warning(format string, args ...any) {
	p.yellow.Fprintf(p.w, "⚠ "+format+"\n", args...)
}

// Info prints a blue info message.
func (p *Printer) Info(format string, args ...any) {
	p.blue.Fprintf(p.w, format+"\n", args...)
}

// Header prints a bold header.
func (p *Printer) Header(format string, args ...any) {
	p.bold.Fprintf(p.w, format+"\n", args...)
}

// Println prints an uncolored line.
func (p *Printer) Println(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}
