package capture

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/requester/packages/http"
	"github.com/tidwall/gjson"
)

// Source is the part of a response a value is extracted from
type Source string

const (
	SourceBody     Source = "body"
	SourceHeader   Source = "header"
	SourceStatus   Source = "status"
	SourceDuration Source = "duration"
)

// Expr is a parsed extraction expression
type Expr struct {
	Source Source
	Path   string
}

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// ParseExpr parses `status`, `duration`, `header.<Name>` (or `header <Name>`),
// `body` and `body.<path>`. Paths accept gjson syntax and bracket indexes.
func ParseExpr(expr string) (Expr, error) {
	expr = strings.TrimSpace(expr)
	head, path := SplitExpr(expr)

	switch Source(strings.ToLower(head)) {
	case SourceStatus:
		if path != "" {
			return Expr{}, fmt.Errorf("invalid capture %q: status takes no path", expr)
		}
		return Expr{Source: SourceStatus}, nil
	case SourceDuration:
		if path != "" {
			return Expr{}, fmt.Errorf("invalid capture %q: duration takes no path", expr)
		}
		return Expr{Source: SourceDuration}, nil
	case SourceHeader:
		if path == "" {
			return Expr{}, fmt.Errorf("invalid capture %q: header needs a name", expr)
		}
		return Expr{Source: SourceHeader, Path: path}, nil
	case SourceBody:
		return Expr{Source: SourceBody, Path: convertBracketNotation(path)}, nil
	default:
		return Expr{}, fmt.Errorf("invalid capture %q: unknown source %q", expr, head)
	}
}

// SplitExpr splits an expression into its leading keyword and the rest.
// The keyword ends at a dot, a space or a bracket; a bracket stays with the
// rest, so "body[0].id" splits into "body" and "[0].id".
func SplitExpr(expr string) (head, rest string) {
	i := strings.IndexAny(expr, ". \t[")
	if i < 0 {
		return expr, ""
	}
	if expr[i] == '[' {
		return expr[:i], expr[i:]
	}
	return expr[:i], strings.TrimSpace(expr[i+1:])
}

// convertBracketNotation turns "items[0].id" into "items.0.id"
func convertBracketNotation(path string) string {
	return strings.TrimPrefix(bracketIndex.ReplaceAllString(path, ".$1"), ".")
}

type Extractor struct {
	capture  *http.Capture
	bodyJSON gjson.Result
}

func NewExtractor(c *http.Capture) *Extractor {
	e := &Extractor{
		capture: c,
	}
	if gjson.ValidBytes(c.Body) {
		e.bodyJSON = gjson.ParseBytes(c.Body)
	}
	return e
}

// Extract evaluates a parsed expression. Duration is reported in milliseconds.
func (e *Extractor) Extract(expr Expr) (any, bool) {
	switch expr.Source {
	case SourceBody:
		return e.extractFromBody(expr.Path)
	case SourceHeader:
		return e.extractFromHeader(expr.Path)
	case SourceStatus:
		return e.capture.StatusCode, true
	case SourceDuration:
		return e.capture.Duration.Milliseconds(), true
	default:
		return nil, false
	}
}

func (e *Extractor) extractFromBody(path string) (any, bool) {
	if !e.bodyJSON.Exists() {
		if path == "" {
			return e.capture.BodyString(), true
		}
		return nil, false
	}

	if path == "" {
		return e.bodyJSON.Value(), true
	}

	result := e.bodyJSON.Get(path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

func (e *Extractor) extractFromHeader(name string) (any, bool) {
	value := e.capture.Header(name)
	if value == "" {
		return nil, false
	}
	return value, true
}

// Extract evaluates a single expression against the capture. Invalid
// expressions and missing values both report false.
func Extract(c *http.Capture, expr string) (any, bool) {
	if c == nil {
		return nil, false
	}
	parsed, err := ParseExpr(expr)
	if err != nil {
		return nil, false
	}
	return NewExtractor(c).Extract(parsed)
}

// ExtractAll evaluates named expressions. Names whose value cannot be
// extracted are left out of the result.
func ExtractAll(c *http.Capture, exprs map[string]string) map[string]any {
	results := make(map[string]any)
	if c == nil {
		return results
	}

	extractor := NewExtractor(c)
	for name, expr := range exprs {
		parsed, err := ParseExpr(expr)
		if err != nil {
			continue
		}
		if value, ok := extractor.Extract(parsed); ok {
			results[name] = value
		}
	}

	return results
}
