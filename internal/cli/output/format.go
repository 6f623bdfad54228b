// Package output renders command results as tables, JSON or YAML.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/marmos91/blobxfer/pkg/transfer"
)

// Format represents the output format type.
type Format string

const (
	// FormatTable outputs data in a formatted table.
	FormatTable Format = "table"
	// FormatJSON outputs data as JSON.
	FormatJSON Format = "json"
	// FormatYAML outputs data as YAML.
	FormatYAML Format = "yaml"
)

// ParseFormat parses a string into a Format, returning an error if invalid.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
	}
}

func (f Format) String() string {
	return string(f)
}

// Printer writes command results in one format.
type Printer struct {
	out    io.Writer
	format Format
	color  bool
}

// NewPrinter creates a Printer. Color is enabled only for table output on a
// terminal, and never when NO_COLOR is set.
func NewPrinter(out io.Writer, format Format) *Printer {
	return &Printer{
		out:    out,
		format: format,
		color:  format == FormatTable && IsTerminal(out) && os.Getenv("NO_COLOR") == "",
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Format returns the printer's output format.
func (p *Printer) Format() Format {
	return p.format
}

// Writer returns the printer's output writer.
func (p *Printer) Writer() io.Writer {
	return p.out
}

// Print outputs data in the configured format. Table output needs a
// TableRenderer and falls back to JSON otherwise.
func (p *Printer) Print(data any) error {
	switch p.format {
	case FormatTable:
		if renderer, ok := data.(TableRenderer); ok {
			return PrintTable(p.out, renderer)
		}
		return PrintJSON(p.out, data)
	case FormatJSON:
		return PrintJSON(p.out, data)
	case FormatYAML:
		return PrintYAML(p.out, data)
	default:
		return fmt.Errorf("unknown format: %s", p.format)
	}
}

// Printf prints a formatted message. Machine-readable formats stay silent so
// their output remains parseable.
func (p *Printer) Printf(format string, args ...any) {
	if p.format != FormatTable {
		return
	}
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// Success prints a success message.
func (p *Printer) Success(msg string) {
	p.colored(ansiGreen, msg)
}

// Warning prints a warning message.
func (p *Printer) Warning(msg string) {
	p.colored(ansiYellow, msg)
}

func (p *Printer) colored(code, msg string) {
	if p.format != FormatTable {
		return
	}
	if p.color {
		msg = code + msg + ansiReset
	}
	_, _ = fmt.Fprintln(p.out, msg)
}

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiFaint  = "\033[2m"
)

// State renders a transfer state, colored when the printer supports it.
func (p *Printer) State(s transfer.State) string {
	if !p.color {
		return s.String()
	}
	var code string
	switch s {
	case transfer.StateComplete:
		code = ansiGreen
	case transfer.StateFailed:
		code = ansiRed
	case transfer.StatePaused:
		code = ansiYellow
	case transfer.StateInProgress:
		code = ansiCyan
	case transfer.StateCanceled, transfer.StateUnknown:
		code = ansiFaint
	default:
		return s.String()
	}
	return code + s.String() + ansiReset
}
