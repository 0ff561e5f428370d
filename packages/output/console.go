package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case nil:
		return "<none>"
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case map[string][]string:
		return fmt.Sprintf("{headers with %d entries}", len(val))
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool

	green  func(a ...interface{}) string
	red    func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	bold   func(a ...interface{}) string
	dim    func(a ...interface{}) string
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}

	sprint := func(attr color.Attribute) func(a ...interface{}) string {
		c := color.New(attr)
		if f.noColor {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	f.green = sprint(color.FgGreen)
	f.red = sprint(color.FgRed)
	f.yellow = sprint(color.FgYellow)
	f.cyan = sprint(color.FgCyan)
	f.bold = sprint(color.Bold)
	f.dim = sprint(color.Faint)
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

// WithVerbose adds the outgoing request and response headers to the output
func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) statusColor(code int) func(a ...interface{}) string {
	switch {
	case code >= 200 && code < 300:
		return f.green
	case code >= 300 && code < 400:
		return f.cyan
	case code >= 400 && code < 500:
		return f.yellow
	default:
		return f.red
	}
}

func (f *ConsoleFormatter) FormatExchange(e *Exchange) {
	if e.Err != nil {
		fmt.Fprintf(f.writer, "%s %s %s\n", f.red("x"), e.title(), f.red(fmt.Sprintf("(%v)", e.Err)))
		return
	}
	if e.Dump == nil || e.Dump.Incoming.Info == nil {
		fmt.Fprintf(f.writer, "%s %s %s\n", f.yellow("-"), e.title(), f.dim("(not sent)"))
		return
	}

	info := e.Dump.Incoming.Info
	if f.verbose {
		f.formatOutgoing(e)
	}

	status := info.Status
	if status == "" {
		status = fmt.Sprintf("%d", info.StatusCode)
	}
	fmt.Fprintf(f.writer, "%s %s %s\n",
		f.dim(info.Proto),
		f.statusColor(info.StatusCode)(f.bold(status)),
		f.cyan(fmt.Sprintf("(%dms)", info.Duration.Milliseconds())))

	if f.verbose {
		names := make([]string, 0, len(e.Dump.Incoming.Headers))
		for name := range e.Dump.Incoming.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, value := range e.Dump.Incoming.Headers[name] {
				fmt.Fprintf(f.writer, "%s: %s\n", f.dim(name), value)
			}
		}
		if info.RemoteIP != "" {
			fmt.Fprintf(f.writer, "%s %s:%s\n", f.dim("remote:"), info.RemoteIP, info.RemotePort)
		}
	}

	if body := e.Dump.Incoming.Body; body != nil && *body != "" {
		fmt.Fprintln(f.writer)
		fmt.Fprintln(f.writer, prettyBody(*body, info.ContentType))
	}

	f.formatChecks(e)

	if len(e.Extracted) > 0 {
		names := make([]string, 0, len(e.Extracted))
		for name := range e.Extracted {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(f.writer)
		for _, name := range names {
			fmt.Fprintf(f.writer, "%s = %s\n", f.bold(name), formatValue(e.Extracted[name], 200))
		}
	}
}

func (f *ConsoleFormatter) formatOutgoing(e *Exchange) {
	out := e.Dump.Outgoing
	target := out.EffectiveURL
	if target == "" {
		target = out.URL
	}
	fmt.Fprintf(f.writer, "%s %s %s\n", f.dim(">"), f.bold(out.Method), target)
	for _, h := range out.Headers {
		fmt.Fprintf(f.writer, "%s %s: %s\n", f.dim(">"), h.Name, h.Value)
	}
	fmt.Fprintln(f.writer)
}

func (f *ConsoleFormatter) formatChecks(e *Exchange) {
	if len(e.Checks) == 0 {
		return
	}

	fmt.Fprintln(f.writer)
	passed := 0
	for _, c := range e.Checks {
		if c.Passed {
			passed++
			fmt.Fprintf(f.writer, "  %s %s %s\n", f.green("✓"), c.Subject, c.Operator)
			continue
		}
		fmt.Fprintf(f.writer, "  %s %s %s\n", f.red("✗"), c.Subject, c.Operator)
		fmt.Fprintf(f.writer, "      Expected: %s\n", formatValue(c.Expected, 100))
		fmt.Fprintf(f.writer, "      Actual:   %s\n", formatValue(c.Actual, 100))
		if c.Message != "" {
			fmt.Fprintf(f.writer, "      %s\n", c.Message)
		}
	}

	fmt.Fprintf(f.writer, "\nChecks: ")
	if passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", f.green(fmt.Sprintf("%d passed", passed)))
	}
	if failed := len(e.Checks) - passed; failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", f.red(fmt.Sprintf("%d failed", failed)))
	}
	fmt.Fprintf(f.writer, "%d total\n", len(e.Checks))
}

// prettyBody indents JSON bodies and leaves everything else as is
func prettyBody(body, contentType string) string {
	if !strings.Contains(contentType, "json") && !json.Valid([]byte(body)) {
		return body
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(body), "", "  "); err != nil {
		return body
	}
	return buf.String()
}

func (f *ConsoleFormatter) FormatError(err error) {
	fmt.Fprintf(f.writer, "%s %v\n", f.red("Error:"), err)
}

func (f *ConsoleFormatter) Flush() error {
	return nil
}
