package resilience

import (
	"context"

	"github.com/MrWong99/scribe/pkg/provider/summarizer"
)

// SummarizerFallback implements [summarizer.Provider] with failover across
// several backends, each behind its own circuit breaker.
type SummarizerFallback struct {
	group *FallbackGroup[summarizer.Provider]
}

var _ summarizer.Provider = (*SummarizerFallback)(nil)

// NewSummarizerFallback creates a [SummarizerFallback] with primary as the
// preferred backend.
func NewSummarizerFallback(primary summarizer.Provider, primaryName string, cfg FallbackConfig) *SummarizerFallback {
	return &SummarizerFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *SummarizerFallback) AddFallback(name string, p summarizer.Provider) {
	f.group.AddFallback(name, p)
}

// Summarize sends text to the first healthy backend.
func (f *SummarizerFallback) Summarize(ctx context.Context, text string, length summarizer.Length) (string, error) {
	return ExecuteWithResult(ctx, f.group, func(_ string, p summarizer.Provider) (string, error) {
		return p.Summarize(ctx, text, length)
	})
}
