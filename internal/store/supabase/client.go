// Package supabase talks to a hosted Supabase project: PostgREST for table
// access and GoTrue for password sessions.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/byytelope/deptproxy/internal/store"
)

const maxErrorBody = 64 << 10

// Client is safe for concurrent use. Every request carries its own headers.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New returns a client for the project at rawURL. An empty rawURL or apiKey
// yields a client whose calls fail with store.ErrNotConfigured.
func New(rawURL, apiKey string, opts ...Option) (*Client, error) {
	c := &Client{apiKey: strings.TrimSpace(apiKey), http: http.DefaultClient}

	if rawURL = strings.TrimSpace(rawURL); rawURL != "" {
		u, err := url.Parse(strings.TrimRight(rawURL, "/"))
		if err != nil {
			return nil, fmt.Errorf("supabase: parse url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("supabase: url scheme must be http or https, got %q", u.Scheme)
		}
		if u.Path == "" {
			u.Path = "/"
		}
		c.baseURL = u
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Name identifies the backend.
func (c *Client) Name() string {
	return "supabase"
}

// Configured reports whether both the project URL and key are set.
func (c *Client) Configured() bool {
	return c.baseURL != nil && c.apiKey != ""
}

// Close releases idle upstream connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

type request struct {
	method string
	// path segments, already escaped
	path   []string
	query  url.Values
	body   any
	bearer string
	prefer string
}

func (c *Client) endpoint(r request) string {
	u := c.baseURL.JoinPath(r.path...)
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}
	return u.String()
}

// do sends r and returns the response body of a 2xx reply. Non-2xx replies
// are handed to onError together with their status and body.
func (c *Client) do(ctx context.Context, r request, onError func(status int, body []byte) error) ([]byte, error) {
	if !c.Configured() {
		return nil, store.ErrNotConfigured
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("supabase: encode body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r), body)
	if err != nil {
		return nil, fmt.Errorf("supabase: build request: %w", err)
	}

	bearer := r.bearer
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, onError(res.StatusCode, b)
	}

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("supabase: read body: %w", err)
	}

	return b, nil
}
