// Package supabase implements storage.Store over the Supabase Storage REST
// API.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/scribe/pkg/storage"
)

// DefaultMaxSize caps downloads when no limit is configured.
const DefaultMaxSize = 200 << 20

var _ storage.Store = (*Client)(nil)

// Option is a functional option for Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMaxSize caps object downloads at n bytes.
func WithMaxSize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// Client talks to one Supabase project. It is safe for concurrent use.
type Client struct {
	baseURL string
	key     string
	maxSize int64
	http    *http.Client
}

// New returns a Client for the project at projectURL (for example
// https://abc.supabase.co) authenticated with an anon or service key.
func New(projectURL, key string, opts ...Option) (*Client, error) {
	if projectURL == "" {
		return nil, errors.New("supabase: project URL must not be empty")
	}
	if _, err := url.Parse(projectURL); err != nil {
		return nil, fmt.Errorf("supabase: parse project URL: %w", err)
	}
	if key == "" {
		return nil, errors.New("supabase: key must not be empty")
	}
	c := &Client{
		baseURL: strings.TrimRight(projectURL, "/") + "/storage/v1",
		key:     key,
		maxSize: DefaultMaxSize,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Download implements storage.Store.
func (c *Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("supabase: bucket and key are required: %w", storage.ErrNotFound)
	}
	path, err := escapeKey(key)
	if err != nil {
		return nil, err
	}
	resp, err := c.get(ctx, "/object/"+url.PathEscape(bucket)+"/"+path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, bucket+"/"+key)
	}
	if resp.ContentLength > c.maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", storage.ErrTooLarge, key, resp.ContentLength)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("supabase: read %s: %w", key, err)
	}
	if int64(len(data)) > c.maxSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", storage.ErrTooLarge, key, c.maxSize)
	}
	return data, nil
}

// Bucket is a storage bucket as listed by the API.
type Bucket struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Public bool   `json:"public"`
}

// ListBuckets returns all buckets visible to the configured key.
func (c *Client) ListBuckets(ctx context.Context) ([]Bucket, error) {
	resp, err := c.get(ctx, "/bucket")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "bucket list")
	}
	var out []Bucket
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("supabase: decode bucket list: %w", err)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("supabase: create request: %w", err)
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase: http request: %w", err)
	}
	return resp, nil
}

// statusError maps an error response to an error. Supabase reports a missing
// object either as 404 or as 400 with a "not_found" error body.
func (c *Client) statusError(resp *http.Response, what string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	var e struct {
		StatusCode string `json:"statusCode"`
		Error      string `json:"error"`
		Message    string `json:"message"`
	}
	_ = json.Unmarshal(body, &e)

	notFound := resp.StatusCode == http.StatusNotFound ||
		e.StatusCode == "404" ||
		strings.Contains(strings.ToLower(e.Error), "not_found") ||
		strings.Contains(strings.ToLower(e.Error), "not found")
	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if notFound {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, what)
	}
	return fmt.Errorf("supabase: %s returned HTTP %d: %s", what, resp.StatusCode, msg)
}

// escapeKey escapes each path element of an object key, keeping the slashes.
// Dot segments are rejected.
func escapeKey(key string) (string, error) {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, p := range parts {
		if p == "." || p == ".." {
			return "", fmt.Errorf("supabase: %w: %q", storage.ErrInvalidKey, key)
		}
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/"), nil
}
