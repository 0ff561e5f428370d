package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/abdul-hamid-achik/requester/packages/http"
	"gopkg.in/yaml.v3"
)

// WriteDump writes a dump as indented JSON or as YAML
func WriteDump(w io.Writer, d *http.Dump, format Format) error {
	var data []byte
	var err error
	switch format {
	case FormatJSON, "":
		data, err = d.JSON()
		if err == nil {
			data = append(data, '\n')
		}
	case FormatYAML:
		data, err = d.YAML()
	default:
		return fmt.Errorf("dumps are written as json or yaml, not %q", format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode dump: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// StructuredOutput is the document written by the json and yaml formats
type StructuredOutput struct {
	Summary   StructuredSummary    `json:"summary" yaml:"summary"`
	Exchanges []StructuredExchange `json:"exchanges" yaml:"exchanges"`
}

type StructuredSummary struct {
	Total  int `json:"total" yaml:"total"`
	Passed int `json:"passed" yaml:"passed"`
	Failed int `json:"failed" yaml:"failed"`
}

type StructuredExchange struct {
	Name      string            `json:"name" yaml:"name"`
	Passed    bool              `json:"passed" yaml:"passed"`
	Error     string            `json:"error,omitempty" yaml:"error,omitempty"`
	Dump      *http.Dump        `json:"dump,omitempty" yaml:"dump,omitempty"`
	Checks    []StructuredCheck `json:"checks,omitempty" yaml:"checks,omitempty"`
	Extracted map[string]any    `json:"extracted,omitempty" yaml:"extracted,omitempty"`
}

type StructuredCheck struct {
	Subject  string `json:"subject" yaml:"subject"`
	Operator string `json:"operator" yaml:"operator"`
	Expected any    `json:"expected,omitempty" yaml:"expected,omitempty"`
	Actual   any    `json:"actual,omitempty" yaml:"actual,omitempty"`
	Passed   bool   `json:"passed" yaml:"passed"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
}

// StructuredFormatter accumulates exchanges and writes them as one JSON or
// YAML document on Flush
type StructuredFormatter struct {
	writer io.Writer
	format Format
	output StructuredOutput
}

func NewStructuredFormatter(w io.Writer, format Format) *StructuredFormatter {
	return &StructuredFormatter{
		writer: w,
		format: format,
		output: StructuredOutput{Exchanges: make([]StructuredExchange, 0)},
	}
}

func (f *StructuredFormatter) FormatExchange(e *Exchange) {
	se := StructuredExchange{
		Name:      e.title(),
		Passed:    e.Passed(),
		Dump:      e.Dump,
		Extracted: e.Extracted,
	}
	if e.Err != nil {
		se.Error = e.Err.Error()
	}
	for _, c := range e.Checks {
		se.Checks = append(se.Checks, StructuredCheck{
			Subject:  c.Subject,
			Operator: c.Operator,
			Expected: c.Expected,
			Actual:   c.Actual,
			Passed:   c.Passed,
			Message:  c.Message,
		})
	}

	f.output.Summary.Total++
	if se.Passed {
		f.output.Summary.Passed++
	} else {
		f.output.Summary.Failed++
	}
	f.output.Exchanges = append(f.output.Exchanges, se)
}

// FormatError records an error that is not tied to an exchange
func (f *StructuredFormatter) FormatError(err error) {
	f.FormatExchange(&Exchange{Name: "error", Err: err})
}

func (f *StructuredFormatter) Flush() error {
	if f.format == FormatYAML {
		encoder := yaml.NewEncoder(f.writer)
		encoder.SetIndent(2)
		if err := encoder.Encode(f.output); err != nil {
			return err
		}
		return encoder.Close()
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(f.output)
}
