// Package audio holds the decoded audio representation used by the
// transcription pipeline and the loader that produces it.
//
// A [Buffer] is a run of signed 16-bit mono samples at a fixed sample rate.
// Once a Buffer has been produced it is treated as immutable: the pipeline
// hands sub-slices of it to concurrently running workers, which only read.
package audio

import (
	"encoding/binary"
	"time"
)

// DefaultSampleRate is the sample rate (Hz) every decoded Buffer is converted
// to unless the loader is configured otherwise. 16 kHz mono is what hosted
// Whisper-family models expect.
const DefaultSampleRate = 16000

// Buffer is decoded mono PCM audio.
type Buffer struct {
	// Samples holds one int16 per sample, mono.
	Samples []int16

	// SampleRate is the number of samples per second.
	SampleRate int
}

// Len returns the number of samples in b.
func (b Buffer) Len() int { return len(b.Samples) }

// Duration returns the playback length of b. A Buffer with a non-positive
// sample rate has zero duration.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Seconds returns the playback length of b in fractional seconds.
func (b Buffer) Seconds() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Slice returns the samples in [from, to) as a new Buffer sharing the
// underlying array. Indices are clamped to the valid range.
func (b Buffer) Slice(from, to int) Buffer {
	if from < 0 {
		from = 0
	}
	if to > len(b.Samples) {
		to = len(b.Samples)
	}
	if from > to {
		from = to
	}
	return Buffer{Samples: b.Samples[from:to:to], SampleRate: b.SampleRate}
}

// PCM returns the samples as 16-bit signed little-endian bytes.
func (b Buffer) PCM() []byte {
	out := make([]byte, len(b.Samples)*2)
	for i, s := range b.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Float32 returns the samples normalised to [-1.0, 1.0].
func (b Buffer) Float32() []float32 {
	out := make([]float32, len(b.Samples))
	for i, s := range b.Samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// WAV returns b wrapped in a RIFF/WAV container.
func (b Buffer) WAV() []byte {
	return EncodeWAV(b.PCM(), b.SampleRate, 1)
}

// FromPCM decodes 16-bit signed little-endian PCM into a Buffer. A trailing
// odd byte is ignored.
func FromPCM(pcm []byte, sampleRate int) Buffer {
	n := len(pcm) / 2
	samples := make([]int16, n)
	for i := range n {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return Buffer{Samples: samples, SampleRate: sampleRate}
}
