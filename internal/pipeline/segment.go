package pipeline

import (
	"time"

	"github.com/MrWong99/scribe/pkg/audio"
)

// Segment is a fixed-length, time-ordered window of an audio buffer.
// Start and End are in seconds; Audio shares the parent buffer's samples.
type Segment struct {
	Index int
	Start float64
	End   float64
	Audio audio.Buffer
}

// Split partitions buf into contiguous, non-overlapping windows of length
// segmentLength. The last window holds the remaining samples and may be
// shorter; an empty trailing window is never produced. Boundaries are derived
// from sample offsets, so the windows tile [0, duration) exactly.
//
// A non-positive segmentLength yields a single window over the whole buffer.
// An empty buffer yields no windows.
func Split(buf audio.Buffer, segmentLength time.Duration) []Segment {
	n := buf.Len()
	if n == 0 || buf.SampleRate <= 0 {
		return nil
	}
	step := samplesFor(segmentLength, buf.SampleRate)
	if step <= 0 || step > n {
		step = n
	}

	rate := float64(buf.SampleRate)
	segs := make([]Segment, 0, (n+step-1)/step)
	for from := 0; from < n; from += step {
		to := min(from+step, n)
		segs = append(segs, Segment{
			Index: len(segs),
			Start: float64(from) / rate,
			End:   float64(to) / rate,
			Audio: buf.Slice(from, to),
		})
	}
	return segs
}

// samplesFor converts a duration to a whole number of samples, rounding down.
func samplesFor(d time.Duration, sampleRate int) int {
	if d <= 0 {
		return 0
	}
	return int(int64(d) * int64(sampleRate) / int64(time.Second))
}
