package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/requester/packages/assertions"
	reqhttp "github.com/abdul-hamid-achik/requester/packages/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sentDump(t *testing.T) *reqhttp.Dump {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Trace", "abc")
		_, _ = w.Write([]byte(`{"id":7,"name":"Ada"}`))
	}))
	t.Cleanup(server.Close)

	target := server.URL + "/users/7"
	r := reqhttp.New(target).WithHeader("Accept", "application/json")
	t.Cleanup(func() { _ = r.Close() })
	_, err := r.Get()
	require.NoError(t, err)
	return r.Dump()
}

func checks(t *testing.T, dump *reqhttp.Dump, exprs ...string) []*assertions.Result {
	t.Helper()
	c := &reqhttp.Capture{
		Info:    *dump.Incoming.Info,
		Body:    []byte(*dump.Incoming.Body),
		Headers: dump.Incoming.Headers,
	}
	return assertions.EvaluateAll(c, exprs, "")
}

func TestParseFormat(t *testing.T) {
	for name, want := range map[string]Format{
		"":        FormatConsole,
		"console": FormatConsole,
		"JSON":    FormatJSON,
		"yml":     FormatYAML,
		"yaml":    FormatYAML,
		" junit ": FormatJUnit,
		"tap":     FormatTAP,
	} {
		got, err := ParseFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseFormat("html")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	for _, format := range Formats() {
		f, err := New(format, Options{Writer: &bytes.Buffer{}})
		require.NoError(t, err)
		assert.NotNil(t, f)
	}

	_, err := New("html", Options{})
	assert.Error(t, err)
}

func TestConsoleFormatter(t *testing.T) {
	dump := sentDump(t)
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true), WithVerbose(true))

	f.FormatExchange(&Exchange{
		Dump:      dump,
		Checks:    checks(t, dump, "status == 200", "body.name == Grace"),
		Extracted: map[string]any{"userId": 7.0},
	})
	require.NoError(t, f.Flush())

	out := buf.String()
	assert.Contains(t, out, "> GET ")
	assert.Contains(t, out, "> Accept: application/json")
	assert.Contains(t, out, "200 OK")
	assert.Contains(t, out, "x-trace: abc")
	assert.Contains(t, out, "\"name\": \"Ada\"")
	assert.Contains(t, out, "✓ status ==")
	assert.Contains(t, out, "✗ body.name ==")
	assert.Contains(t, out, "Expected: Grace")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
	assert.Contains(t, out, "userId = 7")
	assert.NotContains(t, out, "\x1b[")
}

func TestConsoleFormatter_ErrorsAndUnsent(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true))

	f.FormatExchange(&Exchange{Name: "GET http://down.test", Err: errors.New("connection refused")})
	f.FormatExchange(&Exchange{Dump: &reqhttp.Dump{Outgoing: reqhttp.OutgoingDump{URL: "http://later.test"}}})
	f.FormatError(errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "x GET http://down.test (connection refused)")
	assert.Contains(t, out, "- GET http://later.test (not sent)")
	assert.Contains(t, out, "Error: boom")
}

func TestPrettyBody(t *testing.T) {
	assert.Equal(t, "{\n  \"a\": 1\n}", prettyBody(`{"a":1}`, "application/json"))
	assert.Equal(t, "<p>hi</p>", prettyBody("<p>hi</p>", "text/html"))
	assert.Equal(t, "{broken", prettyBody("{broken", "application/json"))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "<none>", formatValue(nil, 10))
	assert.Equal(t, "[array with 2 items]", formatValue([]any{1, 2}, 10))
	assert.Equal(t, "abc...", formatValue("abcdef", 3))
}

func TestWriteDump(t *testing.T) {
	dump := sentDump(t)

	var jsonBuf bytes.Buffer
	require.NoError(t, WriteDump(&jsonBuf, dump, FormatJSON))
	var decoded reqhttp.Dump
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &decoded))
	assert.Equal(t, dump.Incoming.Info.StatusCode, decoded.Incoming.Info.StatusCode)

	var yamlBuf bytes.Buffer
	require.NoError(t, WriteDump(&yamlBuf, dump, FormatYAML))
	var generic map[string]any
	require.NoError(t, yaml.Unmarshal(yamlBuf.Bytes(), &generic))
	assert.Contains(t, generic, "outgoing")
	assert.Contains(t, generic, "incoming")

	assert.Error(t, WriteDump(&bytes.Buffer{}, dump, FormatTAP))
}

func TestStructuredFormatter(t *testing.T) {
	dump := sentDump(t)

	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			f := NewStructuredFormatter(&buf, format)
			f.FormatExchange(&Exchange{Dump: dump, Checks: checks(t, dump, "status == 200")})
			f.FormatError(errors.New("boom"))
			require.NoError(t, f.Flush())

			var out StructuredOutput
			if format == FormatJSON {
				require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
			} else {
				require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
			}

			assert.Equal(t, StructuredSummary{Total: 2, Passed: 1, Failed: 1}, out.Summary)
			require.Len(t, out.Exchanges, 2)
			assert.True(t, out.Exchanges[0].Passed)
			assert.Len(t, out.Exchanges[0].Checks, 1)
			assert.Equal(t, "boom", out.Exchanges[1].Error)
		})
	}
}

func TestJUnitFormatter(t *testing.T) {
	dump := sentDump(t)
	var buf bytes.Buffer
	f := NewJUnitFormatter(JUnitWithWriter(&buf))
	f.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	f.FormatExchange(&Exchange{Name: "get user", Dump: dump, Checks: checks(t, dump, "status == 200", "body.id == 8")})
	f.FormatExchange(&Exchange{Name: "down", Err: errors.New("refused")})
	f.FormatExchange(&Exchange{Name: "unsent", Dump: &reqhttp.Dump{}})
	require.NoError(t, f.Flush())

	out := buf.String()
	require.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))

	var suites JUnitReport
	require.NoError(t, xml.Unmarshal([]byte(strings.SplitN(out, "\n", 2)[1]), &suites))
	assert.Equal(t, 4, suites.Tests)
	assert.Equal(t, 1, suites.Failures)
	assert.Equal(t, 1, suites.Errors)
	assert.Equal(t, 1, suites.Skipped)
	assert.Equal(t, "2024-01-02T03:04:05Z", suites.Timestamp)
	require.Len(t, suites.Suites, 3)

	user := suites.Suites[0]
	assert.Equal(t, "get user", user.Name)
	require.Len(t, user.Cases, 2)
	assert.Nil(t, user.Cases[0].Failure)
	require.NotNil(t, user.Cases[1].Failure)
	assert.Contains(t, user.Cases[1].Failure.Content, "expected 8")
	assert.Equal(t, `{"id":7,"name":"Ada"}`, user.SystemOut)
	require.NotNil(t, user.Properties)
	assert.Contains(t, user.Properties.Property, JUnitProperty{Name: "status", Value: "200"})

	down := suites.Suites[1]
	require.NotNil(t, down.Cases[0].Error)
	assert.Equal(t, "refused", down.Cases[0].Error.Message)
	assert.Nil(t, down.Properties)

	require.NotNil(t, suites.Suites[2].Cases[0].Skipped)
}

func TestTAPFormatter(t *testing.T) {
	dump := sentDump(t)
	var buf bytes.Buffer
	f := NewTAPFormatter(TAPWithWriter(&buf))

	f.FormatExchange(&Exchange{Name: "user", Dump: dump, Checks: checks(t, dump, "status == 200", "body.id == 8")})
	f.FormatExchange(&Exchange{Name: "plain", Dump: dump})
	f.FormatExchange(&Exchange{Name: "unsent", Dump: &reqhttp.Dump{}})
	f.FormatError(errors.New("boom: failed"))
	require.NoError(t, f.Flush())

	out := buf.String()
	assert.Contains(t, out, "TAP version 13\n1..5\n")
	assert.Contains(t, out, "ok 1 - user: status ==\n")
	assert.Contains(t, out, "not ok 2 - user: body.id ==\n")
	assert.Contains(t, out, "ok 3 - plain\n")
	assert.Contains(t, out, "ok 4 - unsent # SKIP not sent\n")
	assert.Contains(t, out, "not ok 5 - requester\n")
	assert.Contains(t, out, "boom: failed")
	assert.Contains(t, out, "  severity: error\n")
	assert.Contains(t, out, "  expected: 8\n  actual: 7\n")
	assert.Contains(t, out, "  status: 200\n")
}
