package http

import (
	"context"
	"net/http"
)

// Client creates requesters that share a set of options, such as settings
// loaded from a config file.
type Client struct {
	opts []ClientOption
}

func NewClient(opts ...ClientOption) *Client {
	return &Client{opts: opts}
}

// New creates a requester for rawURL with the client's options followed by
// extra
func (c *Client) New(rawURL string, extra ...ClientOption) *Requester {
	opts := make([]ClientOption, 0, len(c.opts)+len(extra))
	opts = append(opts, c.opts...)
	opts = append(opts, extra...)
	return New(rawURL, opts...)
}

// Do issues a single request with a frozen requester and returns its capture
func (c *Client) Do(ctx context.Context, method, rawURL string, body []byte, headers map[string]string) (*Capture, error) {
	r := c.New(rawURL).Frozen()
	defer r.Close()

	r.SetHeaders(headers)
	if body != nil {
		r.WithRawPayload(body)
	}

	if _, err := r.RequestContext(ctx, method); err != nil {
		return nil, err
	}
	return r.Capture(), nil
}

func (c *Client) Get(url string, headers map[string]string) (*Capture, error) {
	return c.Do(context.Background(), http.MethodGet, url, nil, headers)
}

func (c *Client) Post(url string, body []byte, headers map[string]string) (*Capture, error) {
	return c.Do(context.Background(), http.MethodPost, url, body, headers)
}

func (c *Client) Put(url string, body []byte, headers map[string]string) (*Capture, error) {
	return c.Do(context.Background(), http.MethodPut, url, body, headers)
}

func (c *Client) Patch(url string, body []byte, headers map[string]string) (*Capture, error) {
	return c.Do(context.Background(), http.MethodPatch, url, body, headers)
}

func (c *Client) Delete(url string, headers map[string]string) (*Capture, error) {
	return c.Do(context.Background(), http.MethodDelete, url, nil, headers)
}
