package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Do(t *testing.T) {
	type seen struct {
		method, path, contentType, body string
	}
	var got seen
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = seen{r.Method, r.URL.Path, r.Header.Get("Content-Type"), string(body)}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":123}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient()
	c, err := client.Post(server.URL+"/users", []byte(`{"name":"Ada"}`), map[string]string{
		"Content-Type": "application/json",
	})
	require.NoError(t, err)

	assert.Equal(t, seen{"POST", "/users", "application/json", `{"name":"Ada"}`}, got)
	assert.Equal(t, 201, c.StatusCode)
	assert.True(t, c.IsSuccess())
	assert.True(t, c.IsJSON())
	assert.Equal(t, int64(123), c.JSONPath("id").Int())

	c, err = client.Get(server.URL+"/users", nil)
	require.NoError(t, err)
	assert.Equal(t, seen{method: "GET", path: "/users"}, got)
	assert.Equal(t, "application/json", c.Header("content-type"))
}

func TestClient_TransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	t.Run("timeout", func(t *testing.T) {
		_, err := NewClient(WithTimeout(50*time.Millisecond)).Get(server.URL, nil)

		var transportErr *TransportError
		require.ErrorAs(t, err, &transportErr)
		assert.Equal(t, "GET", transportErr.Method)
		assert.Equal(t, server.URL, transportErr.URL)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewClient().Do(ctx, http.MethodDelete, server.URL, nil, nil)

		var transportErr *TransportError
		require.ErrorAs(t, err, &transportErr)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestClient_Headers(t *testing.T) {
	var headers http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
	}))
	t.Cleanup(server.Close)

	client := NewClient(
		WithDefaultHeaders(map[string]string{"Authorization": "test-token", "X-Source": "default"}),
		WithUserAgent("custom-agent"),
	)

	_, err := client.Get(server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "test-token", headers.Get("Authorization"))
	assert.Equal(t, "custom-agent", headers.Get("User-Agent"))
	assert.Equal(t, []string{"default"}, headers.Values("X-Source"))

	_, err = client.Get(server.URL, map[string]string{"X-Source": "request", "User-Agent": "caller"})
	require.NoError(t, err)
	assert.Equal(t, []string{"request"}, headers.Values("X-Source"))
	assert.Equal(t, "caller", headers.Get("User-Agent"))
}

func TestClient_Redirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/final":
			_, _ = w.Write([]byte("final"))
		case "/loop":
			http.Redirect(w, r, "/loop", http.StatusFound)
		default:
			http.Redirect(w, r, "/final", http.StatusFound)
		}
	}))
	t.Cleanup(server.Close)

	tests := []struct {
		name     string
		opts     []ClientOption
		path     string
		status   int
		location string
		url      string
	}{
		{"followed", []ClientOption{WithFollowRedirects(true)}, "/start", 200, "", server.URL + "/final"},
		{"not followed", []ClientOption{WithFollowRedirects(false)}, "/start", 302, "/final", server.URL + "/start"},
		{"stops at max", []ClientOption{WithMaxRedirects(2)}, "/loop", 302, "/loop", server.URL + "/loop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.opts...).Get(server.URL+tt.path, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.status, c.StatusCode)
			assert.Equal(t, tt.location, c.Header("Location"))
			assert.Equal(t, tt.url, c.URL)
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"http", "http://example.com", false},
		{"https with path", "https://example.com/a/b?c=d", false},
		{"unsupported scheme", "ftp://example.com", true},
		{"missing host", "http://", true},
		{"relative", "/just/a/path", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuildURL(t *testing.T) {
	assert.Equal(t, "http://example.com", BuildURL("http://example.com", nil))
	assert.Equal(t, "http://example.com?a=1&b=x+y", BuildURL("http://example.com", map[string]string{"b": "x y", "a": "1"}))
	assert.Equal(t, "http://example.com?z=0&a=1", BuildURL("http://example.com?z=0", map[string]string{"a": "1"}))
}

func TestClient_NewLayersExtraOptions(t *testing.T) {
	server := echoServer(t)

	client := NewClient(WithUserAgent("base"), WithRequestID(false))
	r := client.New(server.URL, WithUserAgent("override"), WithRequestID(true))
	defer r.Close()

	assert.Equal(t, "override", r.settings.UserAgent)
	assert.True(t, r.settings.RequestID)

	plain := client.New(server.URL)
	defer plain.Close()
	assert.Equal(t, "base", plain.settings.UserAgent)
}

func TestClient_Verbs(t *testing.T) {
	server := echoServer(t)
	client := NewClient()

	tests := []struct {
		method string
		call   func() (*Capture, error)
		body   string
	}{
		{"PUT", func() (*Capture, error) { return client.Put(server.URL, []byte("put"), nil) }, "put"},
		{"PATCH", func() (*Capture, error) { return client.Patch(server.URL, []byte("patch"), nil) }, "patch"},
		{"DELETE", func() (*Capture, error) { return client.Delete(server.URL, nil) }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			c, err := tt.call()
			require.NoError(t, err)
			assert.Equal(t, tt.method, c.Header("X-Method"))
			assert.Equal(t, tt.body, c.BodyString())
		})
	}
}
