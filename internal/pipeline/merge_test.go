package pipeline

import (
	"errors"
	"testing"
)

func ok(i int, text string) SegmentResult {
	return SegmentResult{Index: i, Start: float64(i) * 15, End: float64(i+1) * 15, Text: text, Success: true}
}

func bad(i int, msg string) SegmentResult {
	return SegmentResult{Index: i, Start: float64(i) * 15, End: float64(i+1) * 15, Err: errors.New(msg)}
}

func TestMerge_OrderIndependent(t *testing.T) {
	t.Parallel()

	results := []SegmentResult{ok(2, "c"), ok(0, "a"), ok(1, "b")}
	m := Merge(results)
	if m.Text != "a b c" {
		t.Errorf("Text = %q, want %q", m.Text, "a b c")
	}
	if m.SegmentsProcessed != 3 || m.TotalSegments != 3 || m.FailedSegments != 0 {
		t.Errorf("counts = %d/%d/%d, want 3/3/0", m.SegmentsProcessed, m.TotalSegments, m.FailedSegments)
	}
	for i, r := range m.Segments {
		if r.Index != i {
			t.Errorf("Segments[%d].Index = %d", i, r.Index)
		}
	}
	if results[0].Index != 2 {
		t.Error("Merge reordered the caller's slice")
	}
}

func TestMerge_SkipsFailures(t *testing.T) {
	t.Parallel()

	m := Merge([]SegmentResult{ok(0, "w0"), bad(1, "timeout"), ok(2, "w2")})
	if m.Text != "w0 w2" {
		t.Errorf("Text = %q, want %q", m.Text, "w0 w2")
	}
	if m.SegmentsProcessed != 2 || m.FailedSegments != 1 || m.TotalSegments != 3 {
		t.Errorf("counts = %d/%d/%d, want 2/3/1", m.SegmentsProcessed, m.TotalSegments, m.FailedSegments)
	}
	if m.Failed() {
		t.Error("Failed() = true with two successes")
	}
}

func TestMerge_TotalFailureIsDistinctFromSilence(t *testing.T) {
	t.Parallel()

	failed := Merge([]SegmentResult{bad(0, "x"), bad(1, "y")})
	if !failed.Failed() || !failed.Empty() {
		t.Errorf("all failed: Failed=%v Empty=%v, want true/true", failed.Failed(), failed.Empty())
	}
	if err := failed.lastError(); err == nil || err.Error() != "y" {
		t.Errorf("lastError = %v, want y", err)
	}

	quiet := Merge([]SegmentResult{ok(0, ""), ok(1, "  ")})
	if quiet.Failed() {
		t.Error("silent run reported as total failure")
	}
	if !quiet.Empty() || quiet.SegmentsProcessed != 2 {
		t.Errorf("silent run: Empty=%v processed=%d, want true/2", quiet.Empty(), quiet.SegmentsProcessed)
	}
}

func TestMerge_TrimsAndJoinsWithSingleSpace(t *testing.T) {
	t.Parallel()

	m := Merge([]SegmentResult{ok(1, " world. \n"), ok(0, "Hello,  "), ok(2, "")})
	if m.Text != "Hello, world." {
		t.Errorf("Text = %q", m.Text)
	}
}

func TestMerge_Empty(t *testing.T) {
	t.Parallel()

	m := Merge(nil)
	if m.TotalSegments != 0 || !m.Failed() || m.Text != "" {
		t.Errorf("Merge(nil) = %+v", m)
	}
}
