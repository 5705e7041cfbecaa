package pipeline

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Mode records which path produced a transcript.
type Mode string

const (
	// ModeSequential is a single transcriber call over the whole buffer.
	ModeSequential Mode = "sequential"
	// ModeParallel is the segmented, concurrently dispatched path.
	ModeParallel Mode = "parallel"
	// ModeFallback is a sequential run after the parallel path produced no
	// text.
	ModeFallback Mode = "fallback"
)

// SegmentResult is the outcome of transcribing one segment. Exactly one
// result exists per dispatched segment. Err is set iff Success is false.
type SegmentResult struct {
	Index   int
	Start   float64
	End     float64
	Text    string
	Success bool
	Err     error
}

// MergedTranscript is the ordered recombination of segment results.
type MergedTranscript struct {
	// Text joins the trimmed text of every successful segment with a single
	// space, in ascending index order.
	Text string

	SegmentsProcessed int
	TotalSegments     int
	FailedSegments    int

	// Mode is the path that produced Text.
	Mode Mode

	// Duration is the length of the transcribed audio.
	Duration time.Duration

	// Segments holds every result sorted by index.
	Segments []SegmentResult
}

// Failed reports whether no segment succeeded. This is distinct from a run
// whose segments all succeeded but contained no speech.
func (m MergedTranscript) Failed() bool { return m.SegmentsProcessed == 0 }

// Empty reports whether the merged text contains no words.
func (m MergedTranscript) Empty() bool { return strings.TrimSpace(m.Text) == "" }

// Merge sorts results by index, keeps the successful ones and joins their
// text. The output depends only on the multiset of results, not on the order
// in which they completed. The caller's slice is not modified.
func Merge(results []SegmentResult) MergedTranscript {
	sorted := slices.Clone(results)
	slices.SortStableFunc(sorted, func(a, b SegmentResult) int {
		return cmp.Compare(a.Index, b.Index)
	})

	m := MergedTranscript{TotalSegments: len(sorted), Segments: sorted}
	parts := make([]string, 0, len(sorted))
	for _, r := range sorted {
		if !r.Success {
			m.FailedSegments++
			continue
		}
		m.SegmentsProcessed++
		if t := strings.TrimSpace(r.Text); t != "" {
			parts = append(parts, t)
		}
	}
	m.Text = strings.Join(parts, " ")
	return m
}

// lastError returns the error of the highest-indexed failed result, or nil.
func (m MergedTranscript) lastError() error {
	for i := len(m.Segments) - 1; i >= 0; i-- {
		if err := m.Segments[i].Err; err != nil {
			return err
		}
	}
	return nil
}
