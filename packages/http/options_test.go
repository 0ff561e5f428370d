package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOption_Valid(t *testing.T) {
	r := New("http://example.com")

	require.NoError(t, r.SetOption(OptionTimeout, 5*time.Second))
	assert.Equal(t, 5*time.Second, r.client.Timeout)

	require.NoError(t, r.SetOption(OptionTimeout, "250ms"))
	assert.Equal(t, 250*time.Millisecond, r.client.Timeout)

	require.NoError(t, r.SetOption(OptionVerifyTLS, false))
	require.NotNil(t, r.transport.TLSClientConfig)
	assert.True(t, r.transport.TLSClientConfig.InsecureSkipVerify)

	require.NoError(t, r.SetOption(OptionVerifyTLS, true))
	assert.Nil(t, r.transport.TLSClientConfig)

	require.NoError(t, r.SetOption(OptionRateLimit, 10))
	require.NotNil(t, r.limiter)
	require.NoError(t, r.SetOption(OptionRateLimit, 0.0))
	assert.Nil(t, r.limiter)

	require.NoError(t, r.SetOption(OptionBasicAuth, [2]string{"u", "p"}))
	assert.Equal(t, &BasicAuth{Username: "u", Password: "p"}, r.settings.BasicAuth)
}

func TestSetOption_Rejected(t *testing.T) {
	tests := []struct {
		name  string
		opt   Option
		value any
		want  error
	}{
		{"unknown option", Option("cookie_jar"), true, ErrUnknownOption},
		{"timeout wrong type", OptionTimeout, 30, ErrInvalidOptionValue},
		{"timeout bad string", OptionTimeout, "soon", ErrInvalidOptionValue},
		{"negative timeout", OptionTimeout, -time.Second, ErrInvalidOptionValue},
		{"follow redirects wrong type", OptionFollowRedirects, "yes", ErrInvalidOptionValue},
		{"negative max redirects", OptionMaxRedirects, -1, ErrInvalidOptionValue},
		{"proxy wrong type", OptionProxy, 8080, ErrInvalidOptionValue},
		{"bad proxy url", OptionProxy, "http://[::1", ErrInvalidOptionValue},
		{"negative rate", OptionRateLimit, -1.5, ErrInvalidOptionValue},
		{"basic auth wrong type", OptionBasicAuth, "u:p", ErrInvalidOptionValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New("http://example.com")
			before := r.settings

			err := r.SetOption(tt.opt, tt.value)

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, string(tt.opt), cfgErr.Field)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, before.Timeout, r.settings.Timeout)
		})
	}
}

func TestSetOptions_ReportsAllFailures(t *testing.T) {
	r := New("http://example.com")

	err := r.SetOptions(map[Option]any{
		OptionUserAgent:       "requester-test",
		OptionMaxRedirects:    "three",
		Option("no_such"):     1,
		OptionFollowRedirects: false,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOption)
	assert.ErrorIs(t, err, ErrInvalidOptionValue)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	assert.Equal(t, "requester-test", r.settings.UserAgent)
	assert.False(t, r.settings.FollowRedirects)
}

func TestSetOption_AppliesToRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/final" {
			assert.Equal(t, "requester-test", r.Header.Get("User-Agent"))
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, "/final", http.StatusMovedPermanently)
	}))
	defer server.Close()

	r := New(server.URL + "/start")
	require.NoError(t, r.SetOption(OptionUserAgent, "requester-test"))

	_, err := r.Get()
	require.NoError(t, err)
	assert.Equal(t, 200, r.StatusCode())
	assert.Equal(t, server.URL+"/final", r.URL())

	require.NoError(t, r.SetOption(OptionFollowRedirects, false))
	_, err = r.Get()
	require.NoError(t, err)
	assert.Equal(t, 301, r.StatusCode())
	assert.True(t, r.Redirect())
}

func TestSetOption_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	r := New(server.URL)
	require.NoError(t, r.SetOption(OptionRateLimit, 20.0))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := r.Get()
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRateLimit_WaitIsNotATransportError(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer server.Close()

	r := New(server.URL, WithRateLimit(0.1))
	defer r.Close()
	_, err := r.Get()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = r.RequestContext(ctx, http.MethodGet)

	var transportErr *TransportError
	assert.False(t, errors.As(err, &transportErr))
	assert.ErrorIs(t, err, ErrRateLimited)

	canceled, stop := context.WithCancel(context.Background())
	stop()
	_, err = r.RequestContext(canceled, http.MethodGet)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.As(err, &transportErr))

	assert.Equal(t, 1, hits)
	assert.Equal(t, http.StatusOK, r.StatusCode())
}

func TestParseOption(t *testing.T) {
	opt, err := ParseOption(" Follow_Redirects ")
	require.NoError(t, err)
	assert.Equal(t, OptionFollowRedirects, opt)

	_, err = ParseOption("nope")
	assert.ErrorIs(t, err, ErrUnknownOption)

	assert.Len(t, Options(), 10)
}

func TestWithSettings(t *testing.T) {
	s := DefaultSettings()
	s.Timeout = time.Second
	s.DefaultHeaders = nil

	r := New("http://example.com", WithSettings(s))
	assert.Equal(t, time.Second, r.client.Timeout)
	assert.NotNil(t, r.settings.DefaultHeaders)
}
