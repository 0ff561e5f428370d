// Package curl converts curl commands into equivalent requester command lines.
package curl

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Converter converts curl commands to requester commands.
type Converter struct {
	expectSuccess bool
}

// Option is a functional option for Converter.
type Option func(*Converter)

// WithExpectSuccess adds --fail to every generated command.
func WithExpectSuccess(expect bool) Option {
	return func(c *Converter) {
		c.expectSuccess = expect
	}
}

// NewConverter creates a new curl converter.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Header keeps the order headers were given in
type Header struct {
	Name  string
	Value string
}

// ParsedCurl represents a parsed curl command.
type ParsedCurl struct {
	Method          string
	URL             string
	Headers         []Header
	Body            string
	JSON            bool
	Query           bool // -G: data goes into the query string
	BasicAuth       string
	Insecure        bool
	FollowRedirects bool
	Timeout         time.Duration
}

// Header returns the last value set for name, case-insensitively
func (p *ParsedCurl) Header(name string) string {
	value := ""
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			value = h.Value
		}
	}
	return value
}

// ConvertCommand converts a single curl command.
func (c *Converter) ConvertCommand(curlCmd string) (string, error) {
	parsed, err := c.Parse(curlCmd)
	if err != nil {
		return "", err
	}
	return c.Command(parsed), nil
}

// ConvertFile converts a file containing curl commands, one per line with
// backslash continuations, into one requester command per line.
func (c *Converter) ConvertFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	return c.ConvertReader(file)
}

func (c *Converter) ConvertReader(r io.Reader) (string, error) {
	var commands []string
	var currentCmd strings.Builder
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasSuffix(line, "\\") {
			currentCmd.WriteString(strings.TrimSuffix(line, "\\"))
			currentCmd.WriteString(" ")
			continue
		}

		currentCmd.WriteString(line)
		commands = append(commands, currentCmd.String())
		currentCmd.Reset()
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read commands: %w", err)
	}

	if currentCmd.Len() > 0 {
		commands = append(commands, currentCmd.String())
	}

	var sb strings.Builder
	for i, cmd := range commands {
		converted, err := c.ConvertCommand(cmd)
		if err != nil {
			return "", fmt.Errorf("failed to convert command %d: %w", i+1, err)
		}
		sb.WriteString(converted)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

// Parse parses a curl command string into a ParsedCurl struct.
func (c *Converter) Parse(curlCmd string) (*ParsedCurl, error) {
	parsed := &ParsedCurl{}

	tokens := tokenize(strings.TrimSpace(curlCmd))
	if len(tokens) > 0 && tokens[0] == "curl" {
		tokens = tokens[1:]
	}

	var data []string
	explicitMethod := ""
	head := false

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]

		// value returns the argument of the current flag
		value := func() (string, error) {
			if i+1 >= len(tokens) {
				return "", fmt.Errorf("missing value for %s", token)
			}
			i++
			return tokens[i], nil
		}

		switch token {
		case "-X", "--request":
			v, err := value()
			if err != nil {
				return nil, err
			}
			explicitMethod = strings.ToUpper(v)

		case "-H", "--header":
			v, err := value()
			if err != nil {
				return nil, err
			}
			name, val, ok := strings.Cut(v, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return nil, fmt.Errorf("invalid header %q", v)
			}
			parsed.Headers = append(parsed.Headers, Header{Name: strings.TrimSpace(name), Value: strings.TrimSpace(val)})

		case "-d", "--data", "--data-raw", "--data-binary", "--data-ascii", "--data-urlencode":
			v, err := value()
			if err != nil {
				return nil, err
			}
			data = append(data, v)

		case "--json":
			v, err := value()
			if err != nil {
				return nil, err
			}
			data = append(data, v)
			parsed.JSON = true

		case "-G", "--get":
			parsed.Query = true

		case "-I", "--head":
			head = true

		case "-u", "--user":
			v, err := value()
			if err != nil {
				return nil, err
			}
			parsed.BasicAuth = v

		case "-k", "--insecure":
			parsed.Insecure = true

		case "-L", "--location":
			parsed.FollowRedirects = true

		case "-m", "--max-time":
			v, err := value()
			if err != nil {
				return nil, err
			}
			secs, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q", token, v)
			}
			parsed.Timeout = time.Duration(secs * float64(time.Second))

		case "-A", "--user-agent":
			v, err := value()
			if err != nil {
				return nil, err
			}
			parsed.Headers = append(parsed.Headers, Header{Name: "User-Agent", Value: v})

		case "-e", "--referer":
			v, err := value()
			if err != nil {
				return nil, err
			}
			parsed.Headers = append(parsed.Headers, Header{Name: "Referer", Value: v})

		case "-b", "--cookie":
			v, err := value()
			if err != nil {
				return nil, err
			}
			parsed.Headers = append(parsed.Headers, Header{Name: "Cookie", Value: v})

		case "--url":
			v, err := value()
			if err != nil {
				return nil, err
			}
			parsed.URL = v

		default:
			switch {
			case strings.HasPrefix(token, "-"):
				// Skip unknown flags with potential values
				if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") && !isURL(tokens[i+1]) {
					i++
				}
			case parsed.URL == "" && isURL(token):
				parsed.URL = token
			}
		}
	}

	if parsed.URL == "" {
		return nil, fmt.Errorf("no URL found in curl command")
	}

	parsed.Body = strings.Join(data, "&")
	switch {
	case explicitMethod != "":
		parsed.Method = explicitMethod
	case head:
		parsed.Method = "HEAD"
	case parsed.Body != "" && !parsed.Query:
		parsed.Method = "POST"
	default:
		parsed.Method = "GET"
	}

	return parsed, nil
}

var shortcuts = map[string]bool{"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "HEAD": true}

// Args returns the requester arguments that send the same request
func (c *Converter) Args(p *ParsedCurl) []string {
	var args []string
	if shortcuts[p.Method] {
		args = append(args, strings.ToLower(p.Method), p.URL)
	} else {
		args = append(args, "request", p.Method, p.URL)
	}

	jsonBody := p.Body != "" && !p.Query && (p.JSON || isJSONContent(p.Header("Content-Type"))) && json.Valid([]byte(p.Body))

	for _, h := range p.Headers {
		if jsonBody && strings.EqualFold(h.Name, "Content-Type") {
			continue
		}
		args = append(args, "-H", h.Name+": "+h.Value)
	}
	if p.BasicAuth != "" {
		args = append(args, "-H", "Authorization: Basic "+base64.StdEncoding.EncodeToString([]byte(p.BasicAuth)))
	}

	switch {
	case p.Body == "":
	case p.Query:
		for _, pair := range strings.Split(p.Body, "&") {
			args = append(args, "-q", pair)
		}
	case jsonBody:
		args = append(args, "--json", p.Body)
	default:
		args = append(args, "--data", p.Body)
	}

	if p.Insecure {
		args = append(args, "-k")
	}
	if !p.FollowRedirects {
		args = append(args, "--no-follow")
	}
	if p.Timeout > 0 {
		args = append(args, "--timeout", p.Timeout.String())
	}
	if c.expectSuccess {
		args = append(args, "--fail")
	}
	return args
}

// Command renders Args as a shell command line
func (c *Converter) Command(p *ParsedCurl) string {
	args := c.Args(p)
	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, "requester")
	for _, a := range args {
		quoted = append(quoted, shellQuote(a))
	}
	return strings.Join(quoted, " ")
}

func isJSONContent(contentType string) bool {
	mt, _, _ := strings.Cut(contentType, ";")
	mt = strings.ToLower(strings.TrimSpace(mt))
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// shellQuote single-quotes s unless it only holds safe characters
func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=@,%+", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// tokenize splits a curl command into tokens, respecting quotes.
func tokenize(cmd string) []string {
	var tokens []string
	var current strings.Builder
	inSingleQuote := false
	inDoubleQuote := false
	escaped := false
	started := false

	for _, r := range cmd {
		if escaped {
			current.WriteRune(r)
			escaped = false
			continue
		}

		switch r {
		case '\\':
			if inSingleQuote {
				current.WriteRune(r)
			} else {
				escaped = true
			}
		case '\'':
			if !inDoubleQuote {
				inSingleQuote = !inSingleQuote
				started = true
			} else {
				current.WriteRune(r)
			}
		case '"':
			if !inSingleQuote {
				inDoubleQuote = !inDoubleQuote
				started = true
			} else {
				current.WriteRune(r)
			}
		case ' ', '\t', '\n':
			if inSingleQuote || inDoubleQuote {
				current.WriteRune(r)
			} else if current.Len() > 0 || started {
				tokens = append(tokens, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 || started {
		tokens = append(tokens, current.String())
	}

	return tokens
}

// isURL checks if a string looks like a URL.
func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "{{")
}
