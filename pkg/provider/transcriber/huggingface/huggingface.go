// Package huggingface provides a transcriber backed by the Hugging Face
// Inference API automatic-speech-recognition task.
package huggingface

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/MrWong99/scribe/pkg/audio"
	"github.com/MrWong99/scribe/pkg/provider/huggingface"
	"github.com/MrWong99/scribe/pkg/provider/transcriber"
)

// DefaultModel is the ASR model used when none is configured.
const DefaultModel = "openai/whisper-large-v3"

var _ transcriber.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel overrides [DefaultModel].
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithLanguage forces the decoding language (e.g. "english"). Empty lets the
// model detect it.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithClientOptions passes options through to the underlying API client.
func WithClientOptions(opts ...huggingface.Option) Option {
	return func(p *Provider) { p.clientOpts = append(p.clientOpts, opts...) }
}

// Provider implements transcriber.Provider over the Inference API.
type Provider struct {
	client     *huggingface.Client
	model      string
	language   string
	clientOpts []huggingface.Option
}

// New returns a Provider authenticated with token.
func New(token string, opts ...Option) *Provider {
	p := &Provider{model: DefaultModel}
	for _, o := range opts {
		o(p)
	}
	p.client = huggingface.New(token, p.clientOpts...)
	return p
}

// NewSession returns a stateless session over the shared API client.
func (p *Provider) NewSession(context.Context) (transcriber.Session, error) {
	return &session{p: p}, nil
}

type session struct {
	p      *Provider
	closed bool
}

type asrRequest struct {
	Inputs     string        `json:"inputs"`
	Parameters asrParameters `json:"parameters"`
}

type asrParameters struct {
	GenerateKwargs map[string]string `json:"generate_kwargs,omitempty"`
}

type asrResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads buf as WAV. With a language set the audio is sent as a
// base64 JSON payload so generation parameters can travel with it.
func (s *session) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	if s.closed {
		return "", transcriber.ErrSessionClosed
	}
	var (
		out asrResponse
		err error
	)
	if s.p.language == "" {
		err = s.p.client.Post(ctx, s.p.model, "audio/wav", buf.WAV(), &out)
	} else {
		err = s.p.client.PostJSON(ctx, s.p.model, asrRequest{
			Inputs:     base64.StdEncoding.EncodeToString(buf.WAV()),
			Parameters: asrParameters{GenerateKwargs: map[string]string{"language": s.p.language}},
		}, &out)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

func (s *session) Close() error {
	s.closed = true
	return nil
}
