// Package mock provides a test double for the summarizer.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/scribe/pkg/provider/summarizer"
)

// SummarizeCall records a single invocation of Summarize.
type SummarizeCall struct {
	Text   string
	Length summarizer.Length
}

// Provider is a mock implementation of summarizer.Provider.
type Provider struct {
	mu sync.Mutex

	// Summary is returned when SummarizeFunc is nil.
	Summary string

	// SummarizeErr is returned when SummarizeFunc is nil.
	SummarizeErr error

	// SummarizeFunc, if set, computes each result. It runs outside the lock.
	SummarizeFunc func(ctx context.Context, text string, length summarizer.Length) (string, error)

	// SummarizeCalls records every call in arrival order.
	SummarizeCalls []SummarizeCall
}

// Summarize records the call and returns the configured result.
func (p *Provider) Summarize(ctx context.Context, text string, length summarizer.Length) (string, error) {
	p.mu.Lock()
	p.SummarizeCalls = append(p.SummarizeCalls, SummarizeCall{Text: text, Length: length})
	fn, summary, err := p.SummarizeFunc, p.Summary, p.SummarizeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, length)
	}
	return summary, err
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []SummarizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SummarizeCall, len(p.SummarizeCalls))
	copy(out, p.SummarizeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SummarizeCalls = nil
}

var _ summarizer.Provider = (*Provider)(nil)
