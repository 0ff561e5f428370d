package http

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	neturl "net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRedirects is the maximum number of redirects to follow
	DefaultMaxRedirects = 10
	// DefaultMaxIdleConns is the maximum number of idle connections kept by a requester
	DefaultMaxIdleConns = 10
	// DefaultIdleConnTimeout is how long idle connections stay open
	DefaultIdleConnTimeout = 90 * time.Second
)

// BasicAuth holds credentials sent with every request
type BasicAuth struct {
	Username string
	Password string
}

// Settings is the fixed set of transport settings a Requester understands.
type Settings struct {
	Timeout         time.Duration
	FollowRedirects bool
	MaxRedirects    int
	ValidateSSL     bool
	Proxy           string
	UserAgent       string
	BasicAuth       *BasicAuth
	AWSAuth         *AWSAuth
	RateLimit       float64 // requests per second, 0 disables limiting
	RequestID       bool
	DefaultHeaders  map[string]string
}

// DefaultSettings returns the settings used when no option overrides them
func DefaultSettings() Settings {
	return Settings{
		Timeout:         DefaultTimeout,
		FollowRedirects: true,
		MaxRedirects:    DefaultMaxRedirects,
		ValidateSSL:     true,
		DefaultHeaders:  make(map[string]string),
	}
}

// ClientOption configures a Requester at construction time
type ClientOption func(*Requester)

func WithTimeout(d time.Duration) ClientOption {
	return func(r *Requester) {
		r.settings.Timeout = d
	}
}

func WithFollowRedirects(follow bool) ClientOption {
	return func(r *Requester) {
		r.settings.FollowRedirects = follow
	}
}

func WithMaxRedirects(max int) ClientOption {
	return func(r *Requester) {
		r.settings.MaxRedirects = max
	}
}

// WithValidateSSL enables or disables TLS certificate validation
func WithValidateSSL(validate bool) ClientOption {
	return func(r *Requester) {
		r.settings.ValidateSSL = validate
	}
}

// WithProxy routes requests through the given proxy URL
func WithProxy(proxyURL string) ClientOption {
	return func(r *Requester) {
		r.settings.Proxy = proxyURL
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(r *Requester) {
		r.settings.UserAgent = ua
	}
}

// WithBasicAuth sends HTTP basic credentials with every request
func WithBasicAuth(username, password string) ClientOption {
	return func(r *Requester) {
		r.settings.BasicAuth = &BasicAuth{Username: username, Password: password}
	}
}

// WithDefaultHeaders sets headers sent with every request unless the
// request sets the same header itself
func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(r *Requester) {
		for k, v := range headers {
			r.settings.DefaultHeaders[k] = v
		}
	}
}

// WithRateLimit caps the request rate of a requester, in requests per second
func WithRateLimit(rps float64) ClientOption {
	return func(r *Requester) {
		r.settings.RateLimit = rps
	}
}

// WithRequestID attaches a generated X-Request-Id header to each request
func WithRequestID(enabled bool) ClientOption {
	return func(r *Requester) {
		r.settings.RequestID = enabled
	}
}

// WithSettings replaces all settings at once
func WithSettings(s Settings) ClientOption {
	return func(r *Requester) {
		if s.DefaultHeaders == nil {
			s.DefaultHeaders = make(map[string]string)
		}
		r.settings = s
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(r *Requester) {
		r.logger = logger
	}
}

// WithObserver registers an observer notified after every request attempt
func WithObserver(o Observer) ClientOption {
	return func(r *Requester) {
		r.observer = o
	}
}

// WithTransport replaces the owned transport. TLS and proxy settings are
// only applied to *http.Transport values.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(r *Requester) {
		r.roundTripper = rt
	}
}

// Option names a transport setting that can be changed with SetOption.
type Option string

const (
	OptionTimeout         Option = "timeout"          // time.Duration or duration string
	OptionFollowRedirects Option = "follow_redirects" // bool
	OptionMaxRedirects    Option = "max_redirects"    // int
	OptionVerifyTLS       Option = "verify_tls"       // bool
	OptionProxy           Option = "proxy"            // string URL, empty disables
	OptionUserAgent       Option = "user_agent"       // string
	OptionBasicAuth       Option = "basic_auth"       // BasicAuth or [2]string
	OptionAWSAuth         Option = "aws_sigv4"        // AWSAuth
	OptionRateLimit       Option = "rate_limit"       // float64 or int requests per second
	OptionRequestID       Option = "request_id"       // bool
)

// Options lists every supported option key
func Options() []Option {
	return []Option{
		OptionTimeout,
		OptionFollowRedirects,
		OptionMaxRedirects,
		OptionVerifyTLS,
		OptionProxy,
		OptionUserAgent,
		OptionBasicAuth,
		OptionAWSAuth,
		OptionRateLimit,
		OptionRequestID,
	}
}

// ParseOption resolves an option name, case-insensitively
func ParseOption(name string) (Option, error) {
	key := Option(strings.ToLower(strings.TrimSpace(name)))
	for _, opt := range Options() {
		if opt == key {
			return opt, nil
		}
	}
	return "", &ConfigurationError{Field: name, Err: ErrUnknownOption}
}

// SetOption changes one transport setting. Unknown options and values of
// the wrong type are rejected with a *ConfigurationError and leave the
// requester unchanged.
func (r *Requester) SetOption(opt Option, value any) error {
	s := r.settings
	if err := applyOption(&s, opt, value); err != nil {
		return err
	}
	r.settings = s
	r.configure()
	return nil
}

// SetOptions applies every option in the map. All failures are reported
// together; options that were accepted stay applied.
func (r *Requester) SetOptions(options map[Option]any) error {
	keys := make([]string, 0, len(options))
	for opt := range options {
		keys = append(keys, string(opt))
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if err := r.SetOption(Option(k), options[Option(k)]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func applyOption(s *Settings, opt Option, value any) error {
	invalid := func(want string) error {
		return &ConfigurationError{
			Field: string(opt),
			Err:   fmt.Errorf("%w: expected %s, got %T", ErrInvalidOptionValue, want, value),
		}
	}

	switch opt {
	case OptionTimeout:
		switch v := value.(type) {
		case time.Duration:
			if v < 0 {
				return invalid("non-negative duration")
			}
			s.Timeout = v
		case string:
			d, err := time.ParseDuration(v)
			if err != nil || d < 0 {
				return invalid("duration string")
			}
			s.Timeout = d
		default:
			return invalid("time.Duration")
		}
	case OptionFollowRedirects:
		v, ok := value.(bool)
		if !ok {
			return invalid("bool")
		}
		s.FollowRedirects = v
	case OptionMaxRedirects:
		v, ok := value.(int)
		if !ok || v < 0 {
			return invalid("non-negative int")
		}
		s.MaxRedirects = v
	case OptionVerifyTLS:
		v, ok := value.(bool)
		if !ok {
			return invalid("bool")
		}
		s.ValidateSSL = v
	case OptionProxy:
		v, ok := value.(string)
		if !ok {
			return invalid("string")
		}
		if v != "" {
			if _, err := neturl.Parse(v); err != nil {
				return &ConfigurationError{Field: string(opt), Err: fmt.Errorf("%w: %v", ErrInvalidOptionValue, err)}
			}
		}
		s.Proxy = v
	case OptionUserAgent:
		v, ok := value.(string)
		if !ok {
			return invalid("string")
		}
		s.UserAgent = v
	case OptionBasicAuth:
		switch v := value.(type) {
		case BasicAuth:
			s.BasicAuth = &v
		case *BasicAuth:
			s.BasicAuth = v
		case [2]string:
			s.BasicAuth = &BasicAuth{Username: v[0], Password: v[1]}
		default:
			return invalid("BasicAuth")
		}
	case OptionAWSAuth:
		switch v := value.(type) {
		case AWSAuth:
			s.AWSAuth = &v
		case *AWSAuth:
			s.AWSAuth = v
		default:
			return invalid("AWSAuth")
		}
	case OptionRateLimit:
		var rps float64
		switch v := value.(type) {
		case float64:
			rps = v
		case int:
			rps = float64(v)
		default:
			return invalid("float64")
		}
		if rps < 0 {
			return invalid("non-negative rate")
		}
		s.RateLimit = rps
	case OptionRequestID:
		v, ok := value.(bool)
		if !ok {
			return invalid("bool")
		}
		s.RequestID = v
	default:
		return &ConfigurationError{Field: string(opt), Err: ErrUnknownOption}
	}
	return nil
}

// configure pushes the current settings into the owned transport handle.
func (r *Requester) configure() {
	if r.client == nil {
		r.client = &http.Client{}
	}

	if r.roundTripper != nil {
		r.client.Transport = r.roundTripper
	} else {
		if r.transport == nil {
			r.transport = &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        DefaultMaxIdleConns,
				MaxIdleConnsPerHost: DefaultMaxIdleConns,
				IdleConnTimeout:     DefaultIdleConnTimeout,
			}
		}

		if !r.settings.ValidateSSL {
			r.transport.TLSClientConfig = &tls.Config{
				InsecureSkipVerify: true,
			}
		} else {
			r.transport.TLSClientConfig = nil
		}

		if r.settings.Proxy != "" {
			if proxyURL, err := neturl.Parse(r.settings.Proxy); err == nil {
				r.transport.Proxy = http.ProxyURL(proxyURL)
			}
		} else {
			r.transport.Proxy = http.ProxyFromEnvironment
		}

		// Changed TLS or proxy settings only apply to new connections
		r.transport.CloseIdleConnections()
		r.client.Transport = r.transport
	}

	r.client.Timeout = r.settings.Timeout
	r.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if !r.settings.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= r.settings.MaxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}

	if r.settings.RateLimit > 0 {
		if r.limiter == nil {
			r.limiter = rate.NewLimiter(rate.Limit(r.settings.RateLimit), 1)
		} else {
			r.limiter.SetLimit(rate.Limit(r.settings.RateLimit))
		}
	} else {
		r.limiter = nil
	}
}
