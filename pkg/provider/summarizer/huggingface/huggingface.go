// Package huggingface provides a summarizer backed by the Hugging Face
// Inference API summarization task.
package huggingface

import (
	"context"
	"errors"
	"strings"

	hf "github.com/MrWong99/scribe/pkg/provider/huggingface"
	"github.com/MrWong99/scribe/pkg/provider/summarizer"
)

// DefaultModel is the summarisation model used when none is configured.
const DefaultModel = "facebook/bart-large-cnn"

var _ summarizer.Provider = (*Provider)(nil)

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

// WithClientOptions passes options through to the underlying API client.
func WithClientOptions(opts ...hf.Option) Option {
	return func(p *Provider) { p.clientOpts = append(p.clientOpts, opts...) }
}

// Provider implements summarizer.Provider over the Inference API.
type Provider struct {
	client     *hf.Client
	model      string
	clientOpts []hf.Option
}

// New returns a Provider authenticated with token.
func New(token string, opts ...Option) *Provider {
	p := &Provider{model: DefaultModel}
	for _, o := range opts {
		o(p)
	}
	p.client = hf.New(token, p.clientOpts...)
	return p
}

type request struct {
	Inputs     string     `json:"inputs"`
	Parameters parameters `json:"parameters"`
}

type parameters struct {
	MaxLength int `json:"max_length"`
	MinLength int `json:"min_length"`
}

type result struct {
	SummaryText string `json:"summary_text"`
}

// Summarize implements summarizer.Provider.
func (p *Provider) Summarize(ctx context.Context, text string, length summarizer.Length) (string, error) {
	var out []result
	err := p.client.PostJSON(ctx, p.model, request{
		Inputs:     text,
		Parameters: parameters{MaxLength: length.Max, MinLength: length.Min},
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "", errors.New("huggingface: empty summarization response")
	}
	return strings.TrimSpace(out[0].SummaryText), nil
}
