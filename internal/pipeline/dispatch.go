package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/scribe/internal/observe"
	"github.com/MrWong99/scribe/pkg/provider/transcriber"
)

// ErrNoWorkers is recorded on segments that were never taken because every
// worker failed to open a transcriber session.
var ErrNoWorkers = errors.New("pipeline: no transcriber session could be opened")

// Dispatcher fans segments out over a bounded pool of workers. Each worker
// opens its own [transcriber.Session] and never shares it.
type Dispatcher struct {
	// Provider opens one session per worker.
	Provider transcriber.Provider

	// Workers bounds concurrency. Values below 1 are treated as 1.
	Workers int

	// ProviderName labels metrics and spans.
	ProviderName string

	// Metrics records per-segment latency and outcome. Nil disables metrics.
	Metrics *observe.Metrics
}

// Dispatch transcribes every segment and returns one result per segment in
// completion order. It blocks until all segments are accounted for.
//
// A failing or panicking transcriber call only fails its own segment. A
// worker whose session panicked opens a fresh session before continuing. Once
// ctx is done, segments not yet started are failed with ctx.Err().
func (d *Dispatcher) Dispatch(ctx context.Context, segs []Segment) []SegmentResult {
	if len(segs) == 0 {
		return nil
	}
	workers := min(max(d.Workers, 1), len(segs))

	tasks := make(chan Segment, len(segs))
	for _, s := range segs {
		tasks <- s
	}
	close(tasks)
	out := make(chan SegmentResult, len(segs))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		openErr error
	)
	for id := range workers {
		wg.Go(func() {
			if err := d.work(ctx, id, tasks, out); err != nil {
				mu.Lock()
				openErr = err
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	// Anything left was never claimed: every worker gave up opening a session.
	leftErr := fmt.Errorf("%w: %w", ErrNoWorkers, openErr)
	if err := ctx.Err(); err != nil {
		leftErr = err
	}
	for s := range tasks {
		out <- failed(s, leftErr)
	}
	close(out)

	results := make([]SegmentResult, 0, len(segs))
	for r := range out {
		results = append(results, r)
	}
	return results
}

// work is one worker's loop. It returns the session-open error that made it
// stop early, or nil once the task channel is drained.
func (d *Dispatcher) work(ctx context.Context, id int, tasks <-chan Segment, out chan<- SegmentResult) error {
	log := observe.Logger(ctx).With("worker", id)
	if d.Metrics != nil {
		d.Metrics.ActiveWorkers.Add(ctx, 1)
		defer d.Metrics.ActiveWorkers.Add(context.WithoutCancel(ctx), -1)
	}

	var sess transcriber.Session
	defer func() {
		if sess != nil {
			closeSession(log, sess)
		}
	}()

	for {
		if sess == nil {
			s, err := openSession(ctx, d.Provider)
			if err != nil {
				log.Warn("worker could not open transcriber session", "err", err)
				return err
			}
			sess = s
		}

		seg, ok := <-tasks
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			out <- failed(seg, err)
			continue
		}

		res, panicked := d.transcribe(ctx, sess, seg)
		if !res.Success {
			log.Warn("segment transcription failed", "index", seg.Index, "err", res.Err)
		}
		out <- res
		if panicked {
			closeSession(log, sess)
			sess = nil
		}
	}
}

// openSession opens a session on p, converting a panic into an error.
func openSession(ctx context.Context, p transcriber.Provider) (sess transcriber.Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			sess, err = nil, fmt.Errorf("pipeline: opening transcriber session panicked: %v", r)
		}
	}()
	return p.NewSession(ctx)
}

// closeSession closes sess. A panic or error while closing is logged and
// otherwise ignored.
func closeSession(log *slog.Logger, sess transcriber.Session) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("transcriber session close panicked", "panic", r)
		}
	}()
	if err := sess.Close(); err != nil {
		log.Debug("transcriber session close failed", "err", err)
	}
}

// transcribe runs one segment through sess, converting a panic into a failed
// result.
func (d *Dispatcher) transcribe(ctx context.Context, sess transcriber.Session, seg Segment) (res SegmentResult, panicked bool) {
	ctx, span := observe.StartSpan(ctx, "pipeline.segment", trace.WithAttributes(
		attribute.Int("segment.index", seg.Index),
		attribute.Float64("segment.start", seg.Start),
		attribute.Float64("segment.end", seg.End),
		attribute.String("provider", d.ProviderName),
	))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			res = failed(seg, fmt.Errorf("pipeline: transcriber panicked: %v", r))
		}
		observe.EndSpan(span, res.Err)
		d.record(ctx, time.Since(start), res.Success)
	}()

	text, err := sess.Transcribe(ctx, seg.Audio)
	if err != nil {
		return failed(seg, err), false
	}
	return SegmentResult{
		Index:   seg.Index,
		Start:   seg.Start,
		End:     seg.End,
		Text:    text,
		Success: true,
	}, false
}

func (d *Dispatcher) record(ctx context.Context, elapsed time.Duration, ok bool) {
	if d.Metrics == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
		d.Metrics.RecordProviderError(ctx, d.ProviderName, "transcriber")
	}
	d.Metrics.RecordSegment(ctx, elapsed.Seconds(), ok)
	d.Metrics.RecordProviderRequest(ctx, d.ProviderName, "transcriber", status)
}

func failed(s Segment, err error) SegmentResult {
	return SegmentResult{Index: s.Index, Start: s.Start, End: s.End, Err: err}
}
