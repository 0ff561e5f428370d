package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// maxSystemOut caps the response body copied into a failing suite
const maxSystemOut = 4096

// JUnitCounts are the totals shared by the report and each suite
type JUnitCounts struct {
	Tests    int     `xml:"tests,attr"`
	Failures int     `xml:"failures,attr"`
	Errors   int     `xml:"errors,attr"`
	Skipped  int     `xml:"skipped,attr"`
	Time     float64 `xml:"time,attr"`
}

func (c *JUnitCounts) add(o JUnitCounts) {
	c.Tests += o.Tests
	c.Failures += o.Failures
	c.Errors += o.Errors
	c.Skipped += o.Skipped
	c.Time += o.Time
}

// JUnitReport is the <testsuites> root, one suite per exchange
type JUnitReport struct {
	XMLName xml.Name `xml:"testsuites"`
	Name    string   `xml:"name,attr,omitempty"`
	JUnitCounts
	Timestamp string       `xml:"timestamp,attr,omitempty"`
	Suites    []JUnitSuite `xml:"testsuite"`
}

type JUnitSuite struct {
	Name string `xml:"name,attr"`
	JUnitCounts
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	Properties *JUnitProperties `xml:"properties,omitempty"`
	Cases      []JUnitCase      `xml:"testcase"`
	SystemOut  string           `xml:"system-out,omitempty"`
}

// JUnitProperties holds the transport metadata of the exchange
type JUnitProperties struct {
	Property []JUnitProperty `xml:"property"`
}

type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// JUnitCase is one check, or the request itself when nothing was checked
type JUnitCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitProblem `xml:"failure,omitempty"`
	Error     *JUnitProblem `xml:"error,omitempty"`
	Skipped   *JUnitProblem `xml:"skipped,omitempty"`
}

// JUnitProblem is the body of a <failure>, <error> or <skipped> element
type JUnitProblem struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitFormatter collects exchanges and writes them as JUnit XML on Flush
type JUnitFormatter struct {
	writer io.Writer
	suites []JUnitSuite
	now    func() time.Time
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{
		writer: os.Stdout,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

// FormatExchange adds a suite with one case per check. An exchange without
// checks becomes a single "request" case, skipped when nothing was sent.
func (f *JUnitFormatter) FormatExchange(e *Exchange) {
	name := e.title()
	suite := JUnitSuite{
		Name:       name,
		Timestamp:  f.now().Format(time.RFC3339),
		Properties: exchangeProperties(e),
	}
	suite.Time = e.Duration().Seconds()

	request := JUnitCase{Name: "request", ClassName: name, Time: suite.Time}
	switch {
	case e.Err != nil:
		request.Error = &JUnitProblem{Message: e.Err.Error(), Type: fmt.Sprintf("%T", e.Err)}
		suite.Errors++
		suite.Cases = append(suite.Cases, request)
	case e.Dump == nil || e.Dump.Incoming.Info == nil:
		request.Skipped = &JUnitProblem{Message: "not sent"}
		suite.Skipped++
		suite.Cases = append(suite.Cases, request)
	case len(e.Checks) == 0:
		suite.Cases = append(suite.Cases, request)
	}

	if e.Err == nil {
		for _, c := range e.Checks {
			tc := JUnitCase{Name: c.Subject + " " + c.Operator, ClassName: name}
			if !c.Passed {
				tc.Failure = &JUnitProblem{
					Message: c.Message,
					Type:    c.Operator,
					Content: fmt.Sprintf("%s %s: expected %v, got %v", c.Subject, c.Operator, c.Expected, c.Actual),
				}
				suite.Failures++
			}
			suite.Cases = append(suite.Cases, tc)
		}
	}

	if suite.Failures > 0 && e.Dump != nil && e.Dump.Incoming.Body != nil {
		body := *e.Dump.Incoming.Body
		if len(body) > maxSystemOut {
			body = body[:maxSystemOut] + "\n[truncated]"
		}
		suite.SystemOut = body
	}

	suite.Tests = len(suite.Cases)
	f.suites = append(f.suites, suite)
}

func exchangeProperties(e *Exchange) *JUnitProperties {
	if e.Dump == nil || e.Dump.Incoming.Info == nil {
		return nil
	}
	info := e.Dump.Incoming.Info
	props := &JUnitProperties{}
	set := func(name, value string) {
		if value != "" {
			props.Property = append(props.Property, JUnitProperty{Name: name, Value: value})
		}
	}
	set("method", info.Method)
	set("url", info.URL)
	set("status", strconv.Itoa(info.StatusCode))
	set("remote_ip", info.RemoteIP)
	set("request_id", info.RequestID)
	return props
}

// FormatError records an error that is not tied to an exchange
func (f *JUnitFormatter) FormatError(err error) {
	f.FormatExchange(&Exchange{Name: "requester", Err: err})
}

func (f *JUnitFormatter) Flush() error {
	report := JUnitReport{
		Name:      "requester",
		Timestamp: f.now().Format(time.RFC3339),
		Suites:    f.suites,
	}
	for _, s := range f.suites {
		report.add(s.JUnitCounts)
	}

	if _, err := io.WriteString(f.writer, xml.Header); err != nil {
		return err
	}
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return err
	}
	_, err := fmt.Fprintln(f.writer)
	return err
}
