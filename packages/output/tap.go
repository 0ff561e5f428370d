package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TAPFormatter writes TAP version 13, one test point per check
type TAPFormatter struct {
	writer io.Writer
	points []tapPoint
}

type tapPoint struct {
	ok          bool
	description string
	directive   string
	diagnostic  *tapDiagnostic
}

// tapDiagnostic is the YAML block written under a failing point
type tapDiagnostic struct {
	Message  string `yaml:"message,omitempty"`
	Severity string `yaml:"severity,omitempty"`
	Expected any    `yaml:"expected,omitempty"`
	Actual   any    `yaml:"actual,omitempty"`
	Status   int    `yaml:"status,omitempty"`
	URL      string `yaml:"url,omitempty"`
}

type TAPOption func(*TAPFormatter)

func NewTAPFormatter(opts ...TAPOption) *TAPFormatter {
	f := &TAPFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func TAPWithWriter(w io.Writer) TAPOption {
	return func(f *TAPFormatter) {
		f.writer = w
	}
}

// FormatExchange adds one point per check, or a single point for an
// exchange without checks
func (f *TAPFormatter) FormatExchange(e *Exchange) {
	name := e.title()

	if e.Err != nil {
		f.points = append(f.points, tapPoint{
			description: name,
			diagnostic:  &tapDiagnostic{Message: e.Err.Error(), Severity: "error"},
		})
		return
	}
	if e.Dump == nil || e.Dump.Incoming.Info == nil {
		f.points = append(f.points, tapPoint{ok: true, description: name, directive: "SKIP not sent"})
		return
	}
	if len(e.Checks) == 0 {
		f.points = append(f.points, tapPoint{ok: true, description: name})
		return
	}

	info := e.Dump.Incoming.Info
	for _, c := range e.Checks {
		p := tapPoint{ok: c.Passed, description: fmt.Sprintf("%s: %s %s", name, c.Subject, c.Operator)}
		if !c.Passed {
			p.diagnostic = &tapDiagnostic{
				Message:  c.Message,
				Severity: "fail",
				Expected: c.Expected,
				Actual:   c.Actual,
				Status:   info.StatusCode,
				URL:      info.URL,
			}
		}
		f.points = append(f.points, p)
	}
}

// FormatError records an error that is not tied to an exchange
func (f *TAPFormatter) FormatError(err error) {
	f.FormatExchange(&Exchange{Name: "requester", Err: err})
}

func (f *TAPFormatter) Flush() error {
	w := bufio.NewWriter(f.writer)
	fmt.Fprintf(w, "TAP version 13\n1..%d\n", len(f.points))

	for i, p := range f.points {
		status := "ok"
		if !p.ok {
			status = "not ok"
		}
		fmt.Fprintf(w, "%s %d - %s", status, i+1, p.description)
		if p.directive != "" {
			fmt.Fprintf(w, " # %s", p.directive)
		}
		w.WriteString("\n")

		if p.diagnostic != nil {
			if err := writeDiagnostic(w, p.diagnostic); err != nil {
				return err
			}
		}
	}

	w.WriteString("\n")
	return w.Flush()
}

func writeDiagnostic(w io.Writer, d *tapDiagnostic) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode diagnostic: %w", err)
	}
	fmt.Fprintln(w, "  ---")
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintln(w, "  ...")
	return nil
}
