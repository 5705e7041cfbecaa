// Package summarize condenses transcripts of any length through a
// [summarizer.Provider].
//
// Text that fits one window is summarised in a single call. Longer text is cut
// into overlapping windows on whitespace, the windows are summarised
// concurrently, and the partial summaries are joined in order and summarised
// once more.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/scribe/internal/observe"
	"github.com/MrWong99/scribe/pkg/provider/summarizer"
)

const (
	// DefaultWindow is the window size in characters.
	DefaultWindow = 3500
	// DefaultOverlap is how many characters consecutive windows share.
	DefaultOverlap = 200
	// DefaultConcurrency bounds concurrent window calls.
	DefaultConcurrency = 4
)

// ErrEmptyText is returned for empty or whitespace-only input.
var ErrEmptyText = errors.New("summarize: no text provided for summarization")

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithWindow sets the window size and overlap in characters. Overlaps of half
// the window or more are reduced to a quarter of it.
func WithWindow(size, overlap int) Option {
	return func(p *Pipeline) {
		if size > 0 {
			p.window = size
		}
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithConcurrency bounds how many windows are summarised at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithProviderName labels metrics with the summarizer's name.
func WithProviderName(name string) Option {
	return func(p *Pipeline) { p.providerName = name }
}

// Pipeline summarises text of arbitrary length. Safe for concurrent use.
type Pipeline struct {
	provider     summarizer.Provider
	providerName string
	window       int
	overlap      int
	concurrency  int
	metrics      *observe.Metrics
}

// New returns a Pipeline over provider.
func New(provider summarizer.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{
		provider:     provider,
		providerName: "summarizer",
		window:       DefaultWindow,
		overlap:      DefaultOverlap,
		concurrency:  DefaultConcurrency,
	}
	for _, o := range opts {
		o(p)
	}
	if p.overlap*2 >= p.window {
		p.overlap = p.window / 4
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Summarize returns a summary of text within length. Zero length fields take
// the [summarizer.DefaultLength] values. Any failing window fails the whole
// request.
func (p *Pipeline) Summarize(ctx context.Context, text string, length summarizer.Length) (summary string, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	length = length.WithDefaults()
	if err := length.Validate(); err != nil {
		return "", err
	}

	windows := Windows(text, p.window, p.overlap)
	ctx, span := observe.StartSpan(ctx, "summarize", trace.WithAttributes(
		attribute.Int("text.chars", len(text)),
		attribute.Int("windows", len(windows)),
	))
	start := time.Now()
	defer func() {
		p.metrics.SummarizeDuration.Record(context.WithoutCancel(ctx), time.Since(start).Seconds())
		observe.EndSpan(span, err)
	}()

	if len(windows) == 1 {
		return p.call(ctx, windows[0], length)
	}

	parts := make([]string, len(windows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, w := range windows {
		g.Go(func() error {
			s, err := p.call(gctx, w, length)
			if err != nil {
				return fmt.Errorf("summarize: window %d: %w", i, err)
			}
			parts[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	observe.Logger(ctx).Debug("window summaries done, combining", "windows", len(windows))
	return p.call(ctx, strings.Join(parts, " "), length)
}

func (p *Pipeline) call(ctx context.Context, text string, length summarizer.Length) (string, error) {
	s, err := p.provider.Summarize(ctx, text, length)
	status := "ok"
	if err != nil {
		status = "error"
		p.metrics.RecordProviderError(ctx, p.providerName, "summarizer")
	}
	p.metrics.RecordProviderRequest(ctx, p.providerName, "summarizer", status)
	return s, err
}

// Windows splits text into pieces of at most size characters. Pieces end on
// whitespace where one exists in the second half of the window, and each
// piece after the first starts roughly overlap characters before the end of
// its predecessor, on a word boundary. Text no longer than size is returned
// as a single piece.
func Windows(text string, size, overlap int) []string {
	r := []rune(text)
	if size <= 0 || len(r) <= size {
		return []string{text}
	}

	var out []string
	for start := 0; start < len(r); {
		end := min(start+size, len(r))
		if end < len(r) {
			for i := end; i > start+size/2; i-- {
				if unicode.IsSpace(r[i-1]) {
					end = i
					break
				}
			}
		}
		if w := strings.TrimSpace(string(r[start:end])); w != "" {
			out = append(out, w)
		}
		if end == len(r) {
			break
		}

		next := max(end-overlap, start+1)
		for i := next; i < end; i++ {
			if unicode.IsSpace(r[i]) {
				next = i + 1
				break
			}
		}
		start = next
	}
	return out
}
