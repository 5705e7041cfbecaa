// Package huggingface is a minimal client for the Hugging Face Inference API.
//
// It is shared by the huggingface transcriber and summarizer providers, which
// differ only in the request payload and the shape of the response.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the serverless inference endpoint. Model paths are
// appended as "/models/{model}".
const DefaultBaseURL = "https://router.huggingface.co/hf-inference"

// maxErrorBody caps how much of a failed response is included in errors.
const maxErrorBody = 512

// ErrModelLoading is returned when the API answers 503 because the model is
// still being loaded. It is transient.
var ErrModelLoading = errors.New("huggingface: model is loading")

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL overrides [DefaultBaseURL], e.g. for a dedicated inference
// endpoint or a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithWaitForModel asks the API to block until a cold model is loaded instead
// of answering 503.
func WithWaitForModel(wait bool) Option {
	return func(c *Client) { c.waitForModel = wait }
}

// Client sends authenticated requests to the Inference API. It is safe for
// concurrent use.
type Client struct {
	baseURL      string
	token        string
	waitForModel bool
	http         *http.Client
}

// New returns a Client authenticated with token. An empty token is accepted;
// anonymous requests are heavily rate limited.
func New(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:      DefaultBaseURL,
		token:        token,
		waitForModel: true,
		http:         &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Post sends body to the given model and decodes the JSON response into out.
func (c *Client) Post(ctx context.Context, model, contentType string, body []byte, out any) error {
	if model == "" {
		return errors.New("huggingface: model must not be empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/models/"+model, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("huggingface: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.waitForModel {
		req.Header.Set("X-Wait-For-Model", "true")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("huggingface: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("huggingface: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := apiError(data)
		if resp.StatusCode == http.StatusServiceUnavailable {
			return fmt.Errorf("%w: %s", ErrModelLoading, msg)
		}
		return fmt.Errorf("huggingface: %s returned HTTP %d: %s", model, resp.StatusCode, msg)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("huggingface: parse JSON response: %w", err)
	}
	return nil
}

// PostJSON marshals payload and posts it as application/json.
func (c *Client) PostJSON(ctx context.Context, model string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("huggingface: marshal request: %w", err)
	}
	return c.Post(ctx, model, "application/json", body, out)
}

// apiError extracts the "error" field of an API error body, falling back to a
// truncated copy of the raw body.
func apiError(data []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	s := strings.TrimSpace(string(data))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
