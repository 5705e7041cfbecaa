// Package summarizer defines the Provider interface for text summarisation
// backends.
//
// A summarizer shortens one piece of text to roughly the requested length.
// Splitting long transcripts into windows is the caller's job; providers see
// one window at a time and must be safe for concurrent use.
package summarizer

import (
	"context"
	"errors"
	"fmt"
)

// Default length bounds, in model tokens.
const (
	DefaultMaxLength = 150
	DefaultMinLength = 40
)

// ErrInvalidLength is returned by [Length.Validate].
var ErrInvalidLength = errors.New("summarizer: invalid length bounds")

// Length bounds the size of a summary. The unit is the backend's token, which
// for prompt-based providers is approximated by words.
type Length struct {
	Max int
	Min int
}

// DefaultLength returns the default bounds.
func DefaultLength() Length {
	return Length{Max: DefaultMaxLength, Min: DefaultMinLength}
}

// WithDefaults fills zero fields from [DefaultLength]. A zero Min is kept
// when Max is set below the default minimum.
func (l Length) WithDefaults() Length {
	if l.Max == 0 {
		l.Max = DefaultMaxLength
	}
	if l.Min == 0 && l.Max > DefaultMinLength {
		l.Min = DefaultMinLength
	}
	return l
}

// Validate reports whether the bounds are usable: Min must not be negative
// and Max must exceed Min.
func (l Length) Validate() error {
	if l.Min < 0 {
		return fmt.Errorf("%w: min_length %d is negative", ErrInvalidLength, l.Min)
	}
	if l.Max <= l.Min {
		return fmt.Errorf("%w: max_length %d must be greater than min_length %d", ErrInvalidLength, l.Max, l.Min)
	}
	return nil
}

// Provider is the abstraction over any summarisation backend.
type Provider interface {
	// Summarize returns a summary of text within the given length bounds.
	Summarize(ctx context.Context, text string, length Length) (string, error)
}

// Model describes a summarisation model offered to clients.
type Model struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// AvailableModels lists the summarisation models clients may pick from.
func AvailableModels() []Model {
	return []Model{
		{ID: "facebook/bart-large-cnn", Description: "BART fine-tuned on CNN/Daily Mail; good general-purpose abstractive summaries."},
		{ID: "google/pegasus-xsum", Description: "PEGASUS fine-tuned on XSum; very short, single-sentence summaries."},
		{ID: "t5-small", Description: "Small T5 model; fast but less fluent."},
	}
}
