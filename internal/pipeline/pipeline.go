// Package pipeline turns decoded audio into a transcript.
//
// Short recordings are transcribed in one call. Longer ones are split into
// fixed-length [Segment]s, fanned out over a bounded pool of workers that
// each own a private transcriber session, and merged back in index order.
// When the parallel path yields no text the whole buffer is transcribed once
// more in a single call before the request is declared failed.
//
// A Pipeline holds no per-request state and is safe for concurrent use.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/scribe/internal/observe"
	"github.com/MrWong99/scribe/pkg/audio"
	"github.com/MrWong99/scribe/pkg/provider/transcriber"
)

const (
	// DefaultSegmentLength is the window length used when none is given.
	DefaultSegmentLength = 15 * time.Second

	// DefaultWorkers is the worker pool size used when none is given.
	DefaultWorkers = 6
)

var (
	// ErrTotalFailure is returned when no text could be produced, even after
	// the sequential fallback. It wraps the last underlying cause.
	ErrTotalFailure = errors.New("pipeline: transcription failed")

	// ErrNoSpeech is wrapped together with ErrTotalFailure when every
	// transcriber call succeeded but returned no words.
	ErrNoSpeech = errors.New("no speech detected")
)

// Options override the pipeline defaults for one request. Zero fields keep
// the defaults.
type Options struct {
	SegmentLength time.Duration
	Workers       int
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithSegmentLength sets the default segment length.
func WithSegmentLength(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.segmentLength = d
		}
	}
}

// WithWorkers sets the default worker pool size.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLoader sets the audio loader used by [Pipeline.Transcribe].
func WithLoader(l *audio.Loader) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.loader = l
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

// WithProviderName labels metrics and spans with the transcriber's name.
func WithProviderName(name string) Option {
	return func(p *Pipeline) { p.providerName = name }
}

// Pipeline orchestrates loading, segmentation, dispatch, merge and fallback.
type Pipeline struct {
	provider      transcriber.Provider
	providerName  string
	segmentLength time.Duration
	workers       int
	loader        *audio.Loader
	metrics       *observe.Metrics
}

// New returns a Pipeline that transcribes with provider. The caller owns the
// provider's lifecycle.
func New(provider transcriber.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{
		provider:      provider,
		providerName:  "transcriber",
		segmentLength: DefaultSegmentLength,
		workers:       DefaultWorkers,
	}
	for _, o := range opts {
		o(p)
	}
	if p.loader == nil {
		p.loader = audio.NewLoader()
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Transcribe decodes src and transcribes it. Undecodable input fails with an
// error wrapping [audio.ErrDecode].
func (p *Pipeline) Transcribe(ctx context.Context, src audio.Source, opts Options) (MergedTranscript, error) {
	buf, err := p.loader.Load(ctx, src)
	if err != nil {
		return MergedTranscript{}, err
	}
	return p.TranscribeBuffer(ctx, buf, opts)
}

// TranscribeBuffer transcribes an already decoded buffer.
//
// Buffers no longer than the segment length take the sequential path and are
// never segmented. Longer buffers take the parallel path; if that yields no
// text, the whole buffer is retried sequentially exactly once. The returned
// transcript is populated even when err is non-nil.
func (p *Pipeline) TranscribeBuffer(ctx context.Context, buf audio.Buffer, opts Options) (merged MergedTranscript, err error) {
	segLen, workers := p.resolve(opts)
	duration := buf.Duration()

	ctx, span := observe.StartSpan(ctx, "pipeline.transcribe", trace.WithAttributes(
		attribute.Float64("audio.seconds", buf.Seconds()),
		attribute.Float64("segment.seconds", segLen.Seconds()),
		attribute.Int("workers", workers),
	))
	p.metrics.ActiveTranscriptions.Add(ctx, 1)
	p.metrics.AudioSeconds.Record(ctx, buf.Seconds())
	start := time.Now()
	defer func() {
		bg := context.WithoutCancel(ctx)
		p.metrics.ActiveTranscriptions.Add(bg, -1)
		p.metrics.TranscriptionDuration.Record(bg, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("mode", string(merged.Mode))))
		span.SetAttributes(
			attribute.String("mode", string(merged.Mode)),
			attribute.Int("segments.processed", merged.SegmentsProcessed),
			attribute.Int("segments.failed", merged.FailedSegments),
		)
		observe.EndSpan(span, err)
	}()

	if buf.Len() == 0 {
		return MergedTranscript{Mode: ModeSequential}, fmt.Errorf("%w: %w", ErrTotalFailure, ErrNoSpeech)
	}

	if duration <= segLen {
		merged = p.sequential(ctx, buf, ModeSequential)
		return merged, p.outcome(ctx, merged)
	}

	segs := Split(buf, segLen)
	d := &Dispatcher{
		Provider:     p.provider,
		Workers:      workers,
		ProviderName: p.providerName,
		Metrics:      p.metrics,
	}
	merged = Merge(d.Dispatch(ctx, segs))
	merged.Mode = ModeParallel
	merged.Duration = duration

	if err := ctx.Err(); err != nil {
		return merged, err
	}
	if !merged.Empty() {
		observe.Logger(ctx).Info("transcription finished",
			"mode", merged.Mode,
			"segments", merged.TotalSegments,
			"failed", merged.FailedSegments,
		)
		return merged, nil
	}

	observe.Logger(ctx).Warn("parallel transcription produced no text, retrying as one call",
		"segments", merged.TotalSegments,
		"failed", merged.FailedSegments,
	)
	p.metrics.Fallbacks.Add(ctx, 1)
	fallback := p.sequential(ctx, buf, ModeFallback)
	return fallback, p.outcome(ctx, fallback)
}

// sequential transcribes the whole buffer with one fresh session.
func (p *Pipeline) sequential(ctx context.Context, buf audio.Buffer, mode Mode) MergedTranscript {
	whole := Segment{Index: 0, Start: 0, End: buf.Seconds(), Audio: buf}
	d := &Dispatcher{
		Provider:     p.provider,
		Workers:      1,
		ProviderName: p.providerName,
		Metrics:      p.metrics,
	}
	m := Merge(d.Dispatch(ctx, []Segment{whole}))
	m.Mode = mode
	m.Duration = buf.Duration()
	return m
}

// outcome maps a finished transcript to the error returned to callers.
func (p *Pipeline) outcome(ctx context.Context, m MergedTranscript) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch {
	case m.Failed():
		return fmt.Errorf("%w: %w", ErrTotalFailure, m.lastError())
	case m.Empty():
		return fmt.Errorf("%w: %w", ErrTotalFailure, ErrNoSpeech)
	}
	observe.Logger(ctx).Info("transcription finished", "mode", m.Mode, "segments", m.TotalSegments)
	return nil
}

func (p *Pipeline) resolve(opts Options) (time.Duration, int) {
	segLen, workers := p.segmentLength, p.workers
	if opts.SegmentLength > 0 {
		segLen = opts.SegmentLength
	}
	if opts.Workers > 0 {
		workers = opts.Workers
	}
	return segLen, workers
}
