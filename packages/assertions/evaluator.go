package assertions

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/requester/packages/capture"
	"github.com/abdul-hamid-achik/requester/packages/http"
	"github.com/tidwall/gjson"
)

// Operator compares an actual value taken from a capture with an expected one
type Operator string

const (
	OpEquals         Operator = "=="
	OpNotEquals      Operator = "!="
	OpGreaterThan    Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLessThan       Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpContains       Operator = "contains"
	OpNotContains    Operator = "!contains"
	OpStartsWith     Operator = "startsWith"
	OpEndsWith       Operator = "endsWith"
	OpMatches        Operator = "matches"
	OpExists         Operator = "exists"
	OpNotExists      Operator = "!exists"
	OpLength         Operator = "length"
	OpType           Operator = "type"
	OpSchema         Operator = "schema"
)

var operators = map[string]Operator{
	"==":         OpEquals,
	"equals":     OpEquals,
	"!=":         OpNotEquals,
	"not_equals": OpNotEquals,
	">":          OpGreaterThan,
	">=":         OpGreaterOrEqual,
	"<":          OpLessThan,
	"<=":         OpLessOrEqual,
	"contains":   OpContains,
	"!contains":  OpNotContains,
	"startswith": OpStartsWith,
	"endswith":   OpEndsWith,
	"matches":    OpMatches,
	"exists":     OpExists,
	"!exists":    OpNotExists,
	"length":     OpLength,
	"type":       OpType,
	"schema":     OpSchema,
}

// Assertion is one parsed expectation, such as `status == 200` or
// `header content-type contains json`
type Assertion struct {
	Subject  string
	Operator Operator
	Expected any
	Raw      string
}

type Result struct {
	Passed   bool
	Message  string
	Expected any
	Actual   any
	Subject  string
	Operator string
}

// Parse reads an expectation of the form `<subject> <operator> [expected]`.
// A header subject is written header.<Name> or header <Name>. Expected
// values are decoded as JSON when possible and kept as strings otherwise.
func Parse(expr string) (*Assertion, error) {
	fields := strings.Fields(expr)
	if len(fields) < 2 {
		return nil, fmt.Errorf("invalid assertion %q: expected <subject> <operator> [value]", expr)
	}

	subject := fields[0]
	rest := fields[1:]
	if strings.EqualFold(subject, "header") {
		if len(fields) < 3 {
			return nil, fmt.Errorf("invalid assertion %q: header needs a name and an operator", expr)
		}
		subject = "header " + fields[1]
		rest = fields[2:]
	}

	op, ok := operators[strings.ToLower(rest[0])]
	if !ok {
		return nil, fmt.Errorf("invalid assertion %q: unknown operator %q", expr, rest[0])
	}

	if _, _, err := splitSubject(subject); err != nil {
		return nil, fmt.Errorf("invalid assertion %q: %w", expr, err)
	}

	a := &Assertion{Subject: subject, Operator: op, Raw: expr}
	if len(rest) > 1 {
		a.Expected = parseValue(strings.Join(rest[1:], " "))
	} else if op != OpExists && op != OpNotExists {
		return nil, fmt.Errorf("invalid assertion %q: operator %s needs a value", expr, op)
	}
	return a, nil
}

func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return strings.Trim(s, `"'`)
}

type Evaluator struct {
	capture  *http.Capture
	bodyJSON gjson.Result
	baseDir  string // Base directory for resolving schema file paths
}

func NewEvaluator(c *http.Capture) *Evaluator {
	return NewEvaluatorWithBaseDir(c, "")
}

func NewEvaluatorWithBaseDir(c *http.Capture, baseDir string) *Evaluator {
	e := &Evaluator{
		capture: c,
		baseDir: baseDir,
	}
	if gjson.ValidBytes(c.Body) {
		e.bodyJSON = gjson.ParseBytes(c.Body)
	}
	return e
}

// Evaluate runs one assertion against the capture
func (e *Evaluator) Evaluate(a *Assertion) *Result {
	result := &Result{
		Subject:  a.Subject,
		Operator: string(a.Operator),
		Expected: a.Expected,
	}

	actual, err := e.value(a.Subject)
	if err != nil {
		result.Message = err.Error()
		return result
	}
	result.Actual = actual

	check, ok := checks[a.Operator]
	if !ok {
		result.Message = fmt.Sprintf("unknown operator: %v", a.Operator)
		return result
	}
	result.Passed, result.Message = check(e, actual, a.Expected)

	if a.Operator == OpLength {
		if n, ok := lengthOf(actual); ok {
			result.Actual = n
		}
	}
	return result
}

// value resolves a subject against the capture. A missing header or JSON
// field is nil, not an error.
func (e *Evaluator) value(subject string) (any, error) {
	c := e.capture
	head, rest, err := splitSubject(subject)
	if err != nil {
		return nil, err
	}

	switch head {
	case "status":
		return c.StatusCode, nil
	case "duration":
		return c.Duration.Milliseconds(), nil
	case "url":
		return c.URL, nil
	case "remote_ip":
		return c.RemoteIP, nil
	case "content_type":
		return nilIfEmpty(c.ContentType), nil
	case "headers":
		return c.Headers, nil
	case "header":
		return nilIfEmpty(c.Header(rest)), nil
	default:
		return e.bodyValue(rest)
	}
}

// splitSubject returns the lowercased keyword of a subject and its path.
// header takes a name after a dot or a space; only body takes a JSON path.
func splitSubject(subject string) (head, rest string, err error) {
	head, rest = capture.SplitExpr(strings.TrimSpace(subject))
	head = strings.ToLower(head)

	switch head {
	case "status", "duration", "url", "remote_ip", "content_type", "headers":
		if rest != "" {
			return "", "", fmt.Errorf("subject %q: %s takes no path", subject, head)
		}
	case "header":
		if rest == "" {
			return "", "", fmt.Errorf("subject %q: header needs a name", subject)
		}
	case "body":
		rest = strings.TrimPrefix(rest, ".")
	default:
		return "", "", fmt.Errorf("unknown subject %q: want status, duration, url, remote_ip, content_type, header.<name> or body[.path]", subject)
	}
	return head, rest, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// gjsonPath turns items[0].tags[1] into items.0.tags.1
func gjsonPath(path string) string {
	return strings.TrimPrefix(bracketIndex.ReplaceAllString(path, ".$1"), ".")
}

func (e *Evaluator) bodyValue(path string) (any, error) {
	if !e.bodyJSON.Exists() {
		if path == "" {
			return e.capture.BodyString(), nil
		}
		return nil, fmt.Errorf("response body is not JSON")
	}
	if path == "" {
		return e.bodyJSON.Value(), nil
	}
	if r := e.bodyJSON.Get(gjsonPath(path)); r.Exists() {
		return r.Value(), nil
	}
	return nil, nil
}

// check decides one operator and explains a failure
type check func(e *Evaluator, actual, expected any) (bool, string)

var checks = map[Operator]check{
	OpEquals:         equals,
	OpNotEquals:      negate(equals, "expected not to equal %v"),
	OpGreaterThan:    numeric(">", func(a, b float64) bool { return a > b }),
	OpGreaterOrEqual: numeric(">=", func(a, b float64) bool { return a >= b }),
	OpLessThan:       numeric("<", func(a, b float64) bool { return a < b }),
	OpLessOrEqual:    numeric("<=", func(a, b float64) bool { return a <= b }),
	OpContains:       contains,
	OpNotContains:    negate(contains, "expected not to contain %v"),
	OpStartsWith:     text("start with", strings.HasPrefix),
	OpEndsWith:       text("end with", strings.HasSuffix),
	OpMatches:        matches,
	OpExists:         exists(true),
	OpNotExists:      exists(false),
	OpLength:         length,
	OpType:           typeOf,
	OpSchema:         (*Evaluator).schema,
}

func negate(c check, format string) check {
	return func(e *Evaluator, actual, expected any) (bool, string) {
		if ok, _ := c(e, actual, expected); ok {
			return false, fmt.Sprintf(format, expected)
		}
		return true, ""
	}
}

func numeric(op string, cmp func(a, b float64) bool) check {
	return func(_ *Evaluator, actual, expected any) (bool, string) {
		a, aok := toFloat64(actual)
		b, bok := toFloat64(expected)
		if !aok || !bok {
			return false, fmt.Sprintf("cannot compare non-numeric values: %v %s %v", actual, op, expected)
		}
		if cmp(a, b) {
			return true, ""
		}
		return false, fmt.Sprintf("expected %v %s %v", actual, op, expected)
	}
}

func text(verb string, fn func(s, affix string) bool) check {
	return func(_ *Evaluator, actual, expected any) (bool, string) {
		if fn(fmt.Sprint(actual), fmt.Sprint(expected)) {
			return true, ""
		}
		return false, fmt.Sprintf("expected '%v' to %s '%v'", actual, verb, expected)
	}
}

func exists(want bool) check {
	return func(_ *Evaluator, actual, _ any) (bool, string) {
		switch {
		case (actual != nil) == want:
			return true, ""
		case want:
			return false, "expected to exist"
		default:
			return false, "expected not to exist"
		}
	}
}

// sameValue compares loosely: 200 equals 200.0 and "200"
func sameValue(actual, expected any) bool {
	if reflect.DeepEqual(actual, expected) {
		return true
	}
	a, aok := toFloat64(actual)
	b, bok := toFloat64(expected)
	if aok && bok {
		return a == b
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

func equals(_ *Evaluator, actual, expected any) (bool, string) {
	if sameValue(actual, expected) {
		return true, ""
	}
	return false, fmt.Sprintf("expected %v, got %v", expected, actual)
}

func contains(_ *Evaluator, actual, expected any) (bool, string) {
	if items, ok := actual.([]any); ok {
		for _, item := range items {
			if sameValue(item, expected) {
				return true, ""
			}
		}
		return false, fmt.Sprintf("expected array to include %v", expected)
	}
	if strings.Contains(fmt.Sprint(actual), fmt.Sprint(expected)) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to contain '%v'", actual, expected)
}

// matches accepts a bare pattern or one written as /pattern/
func matches(_ *Evaluator, actual, expected any) (bool, string) {
	pattern := strings.TrimSuffix(strings.TrimPrefix(fmt.Sprint(expected), "/"), "/")
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Sprintf("invalid regex pattern: %v", err)
	}
	if re.MatchString(fmt.Sprint(actual)) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to match /%v/", actual, pattern)
}

func lengthOf(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	}
	return 0, false
}

func length(_ *Evaluator, actual, expected any) (bool, string) {
	want, ok := toFloat64(expected)
	if !ok {
		return false, fmt.Sprintf("expected length must be a number, got %v", expected)
	}
	n, ok := lengthOf(actual)
	if !ok {
		return false, fmt.Sprintf("cannot get length of %T", actual)
	}
	if n == int(want) {
		return true, ""
	}
	return false, fmt.Sprintf("expected length %d, got %d", int(want), n)
}

// jsonType names v the way JSON schema does
func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, int, int64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return reflect.TypeOf(v).String()
}

func typeOf(_ *Evaluator, actual, expected any) (bool, string) {
	want, got := fmt.Sprint(expected), jsonType(actual)
	if want == got {
		return true, ""
	}
	return false, fmt.Sprintf("expected type %s, got %s", want, got)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// EvaluateAll parses and evaluates every expression against the capture.
// Expressions that fail to parse produce a failed result.
func EvaluateAll(c *http.Capture, exprs []string, baseDir string) []*Result {
	evaluator := NewEvaluatorWithBaseDir(c, baseDir)
	results := make([]*Result, 0, len(exprs))
	for _, expr := range exprs {
		a, err := Parse(expr)
		if err != nil {
			results = append(results, &Result{Subject: expr, Message: err.Error()})
			continue
		}
		results = append(results, evaluator.Evaluate(a))
	}
	return results
}

// AllPassed reports whether every result passed
func AllPassed(results []*Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
