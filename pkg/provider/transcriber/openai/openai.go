// Package openai provides a transcriber backed by the OpenAI audio
// transcription endpoint.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/scribe/pkg/audio"
	"github.com/MrWong99/scribe/pkg/provider/transcriber"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "whisper-1"

var _ transcriber.Provider = (*Provider)(nil)

// Provider implements transcriber.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL  string
	language string
	timeout  time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Any server speaking
// the /audio/transcriptions protocol works (e.g. faster-whisper-server).
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithLanguage sets the ISO-639-1 input language hint.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI transcription Provider. An empty model selects
// [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// NewSession creates a private scratch directory for the WAV uploads of one
// caller. The directory is removed on Close.
func (p *Provider) NewSession(ctx context.Context) (transcriber.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "scribe-openai-*")
	if err != nil {
		return nil, fmt.Errorf("openai: create scratch dir: %w", err)
	}
	return &session{p: p, dir: dir}, nil
}

type session struct {
	p   *Provider
	dir string
}

// Transcribe uploads buf as a WAV file. The SDK derives the multipart
// filename, and with it the format, from the *os.File it is given.
func (s *session) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	if s.dir == "" {
		return "", transcriber.ErrSessionClosed
	}
	f, err := os.CreateTemp(s.dir, "segment-*.wav")
	if err != nil {
		return "", fmt.Errorf("openai: create upload file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := f.Write(buf.WAV()); err != nil {
		return "", fmt.Errorf("openai: write upload file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return "", fmt.Errorf("openai: rewind upload file: %w", err)
	}

	params := oai.AudioTranscriptionNewParams{
		File:  f,
		Model: oai.AudioModel(s.p.model),
	}
	if s.p.language != "" {
		params.Language = oai.String(s.p.language)
	}
	resp, err := s.p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (s *session) Close() error {
	if s.dir == "" {
		return nil
	}
	dir := s.dir
	s.dir = ""
	return os.RemoveAll(dir)
}
