package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/requester/packages/assertions"
	"github.com/abdul-hamid-achik/requester/packages/http"
)

// Exchange is one request as shown to the user: the requester's dump plus
// whatever checks and extractions ran against its capture
type Exchange struct {
	Name      string
	Dump      *http.Dump
	Checks    []*assertions.Result
	Extracted map[string]any
	Err       error
}

// Passed reports whether the exchange completed and every check passed
func (e *Exchange) Passed() bool {
	return e.Err == nil && assertions.AllPassed(e.Checks)
}

// Duration is the measured request duration, zero before completion
func (e *Exchange) Duration() time.Duration {
	if e.Dump == nil || e.Dump.Incoming.Info == nil {
		return 0
	}
	return e.Dump.Incoming.Info.Duration
}

func (e *Exchange) title() string {
	if e.Name != "" {
		return e.Name
	}
	if e.Dump == nil {
		return "request"
	}
	method := e.Dump.Outgoing.Method
	if method == "" {
		method = "GET"
	}
	return method + " " + e.Dump.Outgoing.URL
}

// Formatter renders exchanges
type Formatter interface {
	FormatExchange(e *Exchange)
	FormatError(err error)
	Flush() error
}

// Format names an output format
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatJUnit   Format = "junit"
	FormatTAP     Format = "tap"
)

// Formats lists every supported format
func Formats() []Format {
	return []Format{FormatConsole, FormatJSON, FormatYAML, FormatJUnit, FormatTAP}
}

// ParseFormat resolves a format name, case-insensitively
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "", FormatConsole:
		return FormatConsole, nil
	case FormatJSON, FormatYAML, FormatJUnit, FormatTAP:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want one of %v)", name, Formats())
	}
}

// Options configure the formatter built by New
type Options struct {
	Writer  io.Writer
	Verbose bool
	NoColor bool
}

// New returns the formatter for format
func New(format Format, opts Options) (Formatter, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	switch format {
	case "", FormatConsole:
		return NewConsoleFormatter(WithWriter(w), WithVerbose(opts.Verbose), WithNoColor(opts.NoColor)), nil
	case FormatJSON, FormatYAML:
		return NewStructuredFormatter(w, format), nil
	case FormatJUnit:
		return NewJUnitFormatter(JUnitWithWriter(w)), nil
	case FormatTAP:
		return NewTAPFormatter(TAPWithWriter(w)), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}
