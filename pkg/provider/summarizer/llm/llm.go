// Package llm provides a summarizer that prompts a chat-completion model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/scribe/pkg/provider/llm"
	"github.com/MrWong99/scribe/pkg/provider/summarizer"
)

// systemPrompt is sent ahead of every transcript. The placeholders are the
// minimum and maximum length in words.
const systemPrompt = `Summarise the following transcript of recorded speech.
Preserve decisions, action items, names, figures and dates. Do not invent details
that are not in the transcript. Reply with the summary only, as plain prose of
between %d and %d words.`

var _ summarizer.Provider = (*Summarizer)(nil)

// Summarizer implements summarizer.Provider on top of an [llm.Provider].
type Summarizer struct {
	llm         llm.Provider
	temperature float64
}

// Option is a functional option for Summarizer.
type Option func(*Summarizer)

// WithTemperature overrides the sampling temperature (default 0.3).
func WithTemperature(t float64) Option {
	return func(s *Summarizer) { s.temperature = t }
}

// New returns a Summarizer backed by provider.
func New(provider llm.Provider, opts ...Option) *Summarizer {
	s := &Summarizer{llm: provider, temperature: 0.3}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Summarize implements summarizer.Provider. Length bounds are passed to the
// model as word counts; the completion is capped at twice the maximum.
func (s *Summarizer) Summarize(ctx context.Context, text string, length summarizer.Length) (string, error) {
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(systemPrompt, length.Min, length.Max),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: text}},
		Temperature:  s.temperature,
		MaxTokens:    2 * length.Max,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	if resp == nil {
		return "", errors.New("summarize: empty completion")
	}
	return strings.TrimSpace(resp.Content), nil
}
