package http

import (
	"encoding/json"
	"mime"
	neturl "net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Info is the transport metadata of one completed request
type Info struct {
	Method          string        `json:"method" yaml:"method"`
	URL             string        `json:"url" yaml:"url"`
	StatusCode      int           `json:"status_code" yaml:"status_code"`
	Status          string        `json:"status" yaml:"status"`
	Proto           string        `json:"proto" yaml:"proto"`
	ContentType     string        `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	RemoteIP        string        `json:"remote_ip,omitempty" yaml:"remote_ip,omitempty"`
	RemotePort      string        `json:"remote_port,omitempty" yaml:"remote_port,omitempty"`
	BodySize        int           `json:"body_size" yaml:"body_size"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
	TimeToFirstByte time.Duration `json:"time_to_first_byte" yaml:"time_to_first_byte"`
	RequestID       string        `json:"request_id,omitempty" yaml:"request_id,omitempty"`
}

// Capture is the snapshot of one completed request. Header keys are
// lowercased and values keep their order of arrival.
type Capture struct {
	Info
	Body    []byte
	Headers map[string][]string
}

func (c *Capture) BodyString() string {
	return string(c.Body)
}

// JSON decodes the body into v
func (c *Capture) JSON(v any) error {
	if err := json.Unmarshal(c.Body, v); err != nil {
		return &DecodeError{Format: "json", Err: err}
	}
	return nil
}

// Form parses the body as URL-encoded form data. An empty body gives an
// empty map.
func (c *Capture) Form() (neturl.Values, error) {
	values, err := neturl.ParseQuery(strings.TrimSpace(string(c.Body)))
	if err != nil {
		return make(neturl.Values), &DecodeError{Format: "form", Err: err}
	}
	return values, nil
}

// Header returns the first value of the named header
func (c *Capture) Header(name string) string {
	values := c.Headers[strings.ToLower(strings.TrimSpace(name))]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// JSONPath looks a value up in the JSON body using gjson path syntax
func (c *Capture) JSONPath(path string) gjson.Result {
	return gjson.GetBytes(c.Body, path)
}

func (c *Capture) IsJSON() bool {
	mt, _, err := mime.ParseMediaType(c.ContentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func (c *Capture) IsSuccess() bool {
	return c.StatusCode >= 200 && c.StatusCode < 300
}

func (c *Capture) IsRedirect() bool {
	return c.StatusCode >= 300 && c.StatusCode < 400
}

func (c *Capture) IsClientError() bool {
	return c.StatusCode >= 400 && c.StatusCode < 500
}

func (c *Capture) IsServerError() bool {
	return c.StatusCode >= 500 && c.StatusCode < 600
}

func captureHeaders(h map[string][]string) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, values := range h {
		key := strings.ToLower(strings.TrimSpace(k))
		for _, v := range values {
			out[key] = append(out[key], strings.TrimSpace(v))
		}
	}
	return out
}

// parseContentType returns the header value if it is a valid media type
// and an empty string otherwise
func parseContentType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if _, _, err := mime.ParseMediaType(value); err != nil {
		return ""
	}
	return value
}

// Capture returns the snapshot of the last completed request, or nil
func (r *Requester) Capture() *Capture {
	return r.last
}

// Response returns the raw body of the last request. ok is false when no
// request has completed.
func (r *Requester) Response() (body []byte, ok bool) {
	if r.last == nil {
		return nil, false
	}
	return r.last.Body, true
}

// JSONResponse decodes the last response body into v
func (r *Requester) JSONResponse(v any) error {
	if r.last == nil {
		return &DecodeError{Format: "json", Err: ErrNoResponse}
	}
	return r.last.JSON(v)
}

// JSONValue decodes the last response body into a generic value
func (r *Requester) JSONValue() (any, error) {
	var v any
	if err := r.JSONResponse(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// FormResponse parses the last response body as URL-encoded form data
func (r *Requester) FormResponse() (neturl.Values, error) {
	if r.last == nil {
		return make(neturl.Values), &DecodeError{Format: "form", Err: ErrNoResponse}
	}
	return r.last.Form()
}

// JSONPath looks a value up in the last response body
func (r *Requester) JSONPath(path string) gjson.Result {
	if r.last == nil {
		return gjson.Result{}
	}
	return r.last.JSONPath(path)
}

// StatusCode returns the status of the last response, or 0
func (r *Requester) StatusCode() int {
	if r.last == nil {
		return 0
	}
	return r.last.StatusCode
}

func (r *Requester) Success() bool {
	return r.last != nil && r.last.IsSuccess()
}

func (r *Requester) Redirect() bool {
	return r.last != nil && r.last.IsRedirect()
}

func (r *Requester) ClientError() bool {
	return r.last != nil && r.last.IsClientError()
}

func (r *Requester) ServerError() bool {
	return r.last != nil && r.last.IsServerError()
}

// Failed reports a 4xx or 5xx response
func (r *Requester) Failed() bool {
	return r.ClientError() || r.ServerError()
}

// Header returns all response headers of the last request
func (r *Requester) Header() map[string][]string {
	if r.last == nil {
		return nil
	}
	return r.last.Headers
}

// HeaderValue returns the first value of a response header
func (r *Requester) HeaderValue(name string) string {
	if r.last == nil {
		return ""
	}
	return r.last.Header(name)
}

// URL returns the final URL of the last request, after redirects
func (r *Requester) URL() string {
	if r.last == nil {
		return ""
	}
	return r.last.URL
}

func (r *Requester) RemoteIP() string {
	if r.last == nil {
		return ""
	}
	return r.last.RemoteIP
}

func (r *Requester) RemotePort() string {
	if r.last == nil {
		return ""
	}
	return r.last.RemotePort
}

// ContentType returns the response content type. ok is false when the
// server omitted it or sent an invalid value.
func (r *Requester) ContentType() (contentType string, ok bool) {
	if r.last == nil || r.last.ContentType == "" {
		return "", false
	}
	return r.last.ContentType, true
}

// Info returns all transport metadata of the last request
func (r *Requester) Info() (Info, bool) {
	if r.last == nil {
		return Info{}, false
	}
	return r.last.Info, true
}
