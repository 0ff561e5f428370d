package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	neturl "net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RequestIDHeader carries the generated request id when WithRequestID is on
const RequestIDHeader = "X-Request-Id"

// PayloadKind tells how the outgoing body was encoded
type PayloadKind int

const (
	PayloadNone PayloadKind = iota
	PayloadJSON
	PayloadForm
	PayloadRaw
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadJSON:
		return "json"
	case PayloadForm:
		return "form"
	case PayloadRaw:
		return "raw"
	default:
		return "none"
	}
}

// HeaderField is one outgoing header line
type HeaderField struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Event describes one finished request attempt
type Event struct {
	Method     string
	URL        string
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Observer is notified after every request attempt, successful or not
type Observer interface {
	ObserveRequest(Event)
}

// Requester builds and issues requests against a single URL. Configuration
// methods return the requester so calls can be chained. A Requester owns
// its transport and must not be used from several goroutines at once.
type Requester struct {
	rawURL  string
	query   neturl.Values
	headers []HeaderField
	payload []byte
	kind    PayloadKind
	err     error

	frozen    bool
	requested bool
	method    string

	settings     Settings
	client       *http.Client
	transport    *http.Transport
	roundTripper http.RoundTripper
	limiter      *rate.Limiter
	logger       zerolog.Logger
	observer     Observer

	last *Capture
}

// New creates a requester for rawURL. The URL is validated when a request
// is issued, not here.
func New(rawURL string, opts ...ClientOption) *Requester {
	r := &Requester{
		rawURL:   rawURL,
		query:    make(neturl.Values),
		settings: DefaultSettings(),
		logger:   zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.configure()
	return r
}

// Close releases the connections held by the requester's transport. It is
// safe to call more than once.
func (r *Requester) Close() error {
	if r.client != nil {
		r.client.CloseIdleConnections()
	}
	return nil
}

// WithQuery merges params into the query string. A key set twice keeps the
// latest value.
func (r *Requester) WithQuery(params map[string]string) *Requester {
	for k, v := range params {
		r.query.Set(k, v)
	}
	return r
}

// WithQueryValues merges multi-valued params into the query string
func (r *Requester) WithQueryValues(params neturl.Values) *Requester {
	for k, vs := range params {
		r.query[k] = append([]string(nil), vs...)
	}
	return r
}

// SetHeaders replaces the full outgoing header set. Headers are kept in
// sorted key order since map order is random.
func (r *Requester) SetHeaders(headers map[string]string) *Requester {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r.headers = make([]HeaderField, 0, len(keys))
	for _, k := range keys {
		r.headers = append(r.headers, HeaderField{Name: k, Value: headers[k]})
	}
	return r
}

// WithHeader appends one header. Repeating a name sends it several times.
func (r *Requester) WithHeader(name, value string) *Requester {
	r.headers = append(r.headers, HeaderField{Name: name, Value: value})
	return r
}

// WithJSON encodes v as the JSON body, replacing any previous payload.
// An encoding failure is reported by the next request.
func (r *Requester) WithJSON(v any) *Requester {
	data, err := json.Marshal(v)
	if err != nil {
		r.err = &ConfigurationError{Field: "payload", Err: fmt.Errorf("encode json: %w", err)}
		r.payload, r.kind = nil, PayloadNone
		return r
	}
	r.err = nil
	r.payload, r.kind = data, PayloadJSON
	return r
}

// WithForm encodes fields as an URL-encoded form body, replacing any
// previous payload
func (r *Requester) WithForm(fields map[string]string) *Requester {
	values := make(neturl.Values, len(fields))
	for k, v := range fields {
		values.Set(k, v)
	}
	return r.WithFormValues(values)
}

func (r *Requester) WithFormValues(values neturl.Values) *Requester {
	r.err = nil
	r.payload, r.kind = []byte(values.Encode()), PayloadForm
	return r
}

// WithRawPayload sends body verbatim, replacing any previous payload
func (r *Requester) WithRawPayload(body []byte) *Requester {
	r.err = nil
	r.payload, r.kind = append([]byte(nil), body...), PayloadRaw
	return r
}

// Frozen restricts the requester to a single successful request
func (r *Requester) Frozen() *Requester {
	r.frozen = true
	return r
}

// IsFrozen reports whether Frozen was called
func (r *Requester) IsFrozen() bool {
	return r.frozen
}

// Requested reports whether at least one request completed
func (r *Requester) Requested() bool {
	return r.requested
}

func (r *Requester) Get() (*Requester, error)    { return r.Request(http.MethodGet) }
func (r *Requester) Post() (*Requester, error)   { return r.Request(http.MethodPost) }
func (r *Requester) Put() (*Requester, error)    { return r.Request(http.MethodPut) }
func (r *Requester) Patch() (*Requester, error)  { return r.Request(http.MethodPatch) }
func (r *Requester) Delete() (*Requester, error) { return r.Request(http.MethodDelete) }
func (r *Requester) Head() (*Requester, error)   { return r.Request(http.MethodHead) }

// Request issues the configured request with the given method and blocks
// until the response has been read.
func (r *Requester) Request(method string) (*Requester, error) {
	return r.RequestContext(context.Background(), method)
}

// RequestContext is Request with a caller supplied context. The capture of
// a previous request is replaced on success and kept on failure.
func (r *Requester) RequestContext(ctx context.Context, method string) (*Requester, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}

	if r.frozen && r.requested {
		return r, &StateError{Op: method, Err: ErrFrozen}
	}
	if r.err != nil {
		return r, r.err
	}

	target, err := r.EffectiveURL()
	if err != nil {
		return r, err
	}

	r.method = method

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return r, ctxErr
			}
			return r, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
	}

	httpReq, requestID, err := r.build(ctx, method, target)
	if err != nil {
		return r, &ConfigurationError{Field: "request", Err: err}
	}

	var remoteAddr string
	var firstByte time.Time
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Conn != nil {
				remoteAddr = info.Conn.RemoteAddr().String()
			}
		},
		GotFirstResponseByte: func() {
			firstByte = time.Now()
		},
	}
	httpReq = httpReq.WithContext(httptrace.WithClientTrace(httpReq.Context(), trace))

	r.logger.Debug().Str("method", method).Str("url", target).Int("body_size", len(r.payload)).Msg("HTTP request")

	start := time.Now()
	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		return r, r.fail(method, target, time.Since(start), &TransportError{Method: method, URL: target, Err: err})
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	duration := time.Since(start)
	if err != nil {
		return r, r.fail(method, target, duration, &TransportError{Method: method, URL: target, Err: err})
	}

	c := &Capture{
		Info: Info{
			Method:     method,
			URL:        httpResp.Request.URL.String(),
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
			Proto:      httpResp.Proto,
			BodySize:   len(body),
			Duration:   duration,
			RequestID:  requestID,
		},
		Body:    body,
		Headers: captureHeaders(httpResp.Header),
	}
	c.ContentType = parseContentType(httpResp.Header.Get("Content-Type"))
	if !firstByte.IsZero() {
		c.TimeToFirstByte = firstByte.Sub(start)
	}
	if host, port, err := net.SplitHostPort(remoteAddr); err == nil {
		c.RemoteIP, c.RemotePort = host, port
	}

	r.last = c
	r.requested = true

	r.logger.Debug().
		Str("method", method).
		Str("url", c.URL).
		Int("status_code", c.StatusCode).
		Dur("duration", duration).
		Msg("HTTP response")

	if r.observer != nil {
		r.observer.ObserveRequest(Event{Method: method, URL: target, StatusCode: c.StatusCode, Duration: duration})
	}

	return r, nil
}

func (r *Requester) fail(method, target string, d time.Duration, err error) error {
	r.logger.Error().Err(err).Str("method", method).Str("url", target).Msg("HTTP request failed")
	if r.observer != nil {
		r.observer.ObserveRequest(Event{Method: method, URL: target, Duration: d, Err: err})
	}
	return err
}

// EffectiveURL returns the URL a request would be sent to, with the
// configured query merged in.
func (r *Requester) EffectiveURL() (string, error) {
	if strings.TrimSpace(r.rawURL) == "" {
		return "", &ConfigurationError{Field: "url", Err: ErrNoURL}
	}
	if err := ValidateURL(r.rawURL); err != nil {
		return "", &ConfigurationError{Field: "url", Err: err}
	}
	if len(r.query) == 0 {
		return r.rawURL, nil
	}

	u, err := neturl.Parse(r.rawURL)
	if err != nil {
		return "", &ConfigurationError{Field: "url", Err: err}
	}
	u.RawQuery = mergeQuery(u.RawQuery, r.query)
	return u.String(), nil
}

// mergeQuery appends extra to a raw query string. Pairs of raw are kept as
// written unless extra sets the same key, which replaces them.
func mergeQuery(raw string, extra neturl.Values) string {
	kept := make([]string, 0, strings.Count(raw, "&")+2)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if k, err := neturl.QueryUnescape(key); err == nil && extra.Has(k) {
			continue
		}
		kept = append(kept, pair)
	}
	if enc := extra.Encode(); enc != "" {
		kept = append(kept, enc)
	}
	return strings.Join(kept, "&")
}

func (r *Requester) build(ctx context.Context, method, target string) (*http.Request, string, error) {
	var body io.Reader
	if r.kind != PayloadNone {
		body = bytes.NewReader(r.payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, "", err
	}

	for k, v := range r.settings.DefaultHeaders {
		req.Header.Set(k, v)
	}

	seen := make(map[string]bool, len(r.headers))
	for _, h := range r.headers {
		key := http.CanonicalHeaderKey(strings.TrimSpace(h.Name))
		if key == "Host" {
			req.Host = h.Value
			continue
		}
		if seen[key] {
			req.Header.Add(key, h.Value)
		} else {
			req.Header.Set(key, h.Value)
			seen[key] = true
		}
	}

	if req.Header.Get("Content-Type") == "" {
		switch r.kind {
		case PayloadJSON:
			req.Header.Set("Content-Type", "application/json")
		case PayloadForm:
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}

	if r.settings.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", r.settings.UserAgent)
	}

	if r.settings.BasicAuth != nil && req.Header.Get("Authorization") == "" {
		req.SetBasicAuth(r.settings.BasicAuth.Username, r.settings.BasicAuth.Password)
	}

	requestID := req.Header.Get(RequestIDHeader)
	if r.settings.RequestID && requestID == "" {
		requestID = uuid.NewString()
		req.Header.Set(RequestIDHeader, requestID)
	}

	if r.settings.AWSAuth != nil && req.Header.Get("Authorization") == "" {
		signAWS(req, r.payload, r.settings.AWSAuth, time.Now())
	}

	return req, requestID, nil
}

// BuildURL appends params to url as an encoded query string
func BuildURL(url string, params map[string]string) string {
	if len(params) == 0 {
		return url
	}
	values := make(neturl.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + values.Encode()
}

// ValidateURL checks that a URL is well-formed and uses an allowed scheme
func ValidateURL(rawURL string) error {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (only http and https are allowed)", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}
