package audio

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func sineWAV(t *testing.T, sampleRate, channels, frames int) []byte {
	t.Helper()
	samples := make([]int16, frames*channels)
	for i := range frames {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		for c := range channels {
			samples[i*channels+c] = v
		}
	}
	return EncodeWAV(Buffer{Samples: samples}.PCM(), sampleRate, channels)
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Fatalf("temp files left behind: %v", names)
	}
}

func TestLoader_WAVRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	want := Buffer{Samples: []int16{0, 100, -100, 32767, -32768, 1234}, SampleRate: 16000}
	l := NewLoader(WithTempDir(dir))

	got, err := l.Load(context.Background(), FromBytes(want.WAV(), "clip.wav"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", got.SampleRate)
	}
	if got.Len() != want.Len() {
		t.Fatalf("Len = %d, want %d", got.Len(), want.Len())
	}
	for i := range want.Samples {
		if got.Samples[i] != want.Samples[i] {
			t.Errorf("sample %d = %d, want %d", i, got.Samples[i], want.Samples[i])
		}
	}
	assertEmptyDir(t, dir)
}

func TestLoader_FromReader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := NewLoader(WithTempDir(dir))
	got, err := l.Load(context.Background(), FromReader(bytes.NewReader(sineWAV(t, 16000, 1, 1600)), "clip.wav"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Len() != 1600 {
		t.Errorf("Len = %d, want 1600", got.Len())
	}
	assertEmptyDir(t, dir)
}

func TestLoader_FromFileIsNotRemoved(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "in.wav")
	if err := os.WriteFile(path, sineWAV(t, 16000, 1, 800), 0o600); err != nil {
		t.Fatal(err)
	}
	l := NewLoader(WithTempDir(t.TempDir()))
	if _, err := l.Load(context.Background(), FromFile(path)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("source file removed: %v", err)
	}
}

func TestLoader_StereoDownmix(t *testing.T) {
	t.Parallel()

	// One frame per pair: L=1000, R=3000 averages to 2000.
	pcm := Buffer{Samples: []int16{1000, 3000, -1000, -3000}}.PCM()
	wav := EncodeWAV(pcm, 16000, 2)

	got, err := NewLoader(WithTempDir(t.TempDir())).Load(context.Background(), FromBytes(wav, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []int16{2000, -2000}
	if got.Len() != len(want) {
		t.Fatalf("Len = %d, want %d", got.Len(), len(want))
	}
	for i := range want {
		if got.Samples[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got.Samples[i], want[i])
		}
	}
}

func TestLoader_Resamples(t *testing.T) {
	t.Parallel()

	// One second at 8 kHz should come out as roughly one second at 16 kHz.
	wav := sineWAV(t, 8000, 1, 8000)
	got, err := NewLoader(WithTempDir(t.TempDir())).Load(context.Background(), FromBytes(wav, "a.wav"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.SampleRate != DefaultSampleRate {
		t.Errorf("SampleRate = %d, want %d", got.SampleRate, DefaultSampleRate)
	}
	if d := got.Len() - 16000; d < -200 || d > 200 {
		t.Errorf("Len = %d, want about 16000", got.Len())
	}
}

// padded returns magic followed by n zero bytes: a recognisable header with
// nothing decodable behind it.
func padded(magic string, n int) []byte {
	return append([]byte(magic), make([]byte, n)...)
}

func TestLoader_CompressedFormats(t *testing.T) {
	t.Parallel()

	// Each fixture holds half a second of 44.1 kHz audio.
	tests := []struct {
		file      string
		format    Format
		tolerance int
	}{
		{"speech_44100hz.flac", FormatFLAC, 200},
		{"speech_44100hz.ogg", FormatVorbis, 200},
		// MP3 encoders pad the stream by a decoder-dependent amount.
		{"speech_44100hz.mp3", FormatMP3, 2400},
	}
	for _, tc := range tests {
		t.Run(tc.file, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join("testdata", tc.file)
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if got := Sniff(data); got != tc.format {
				t.Fatalf("Sniff = %q, want %q", got, tc.format)
			}

			dir := t.TempDir()
			got, err := NewLoader(WithTempDir(dir)).Load(context.Background(), FromBytes(data, tc.file))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got.SampleRate != DefaultSampleRate {
				t.Errorf("SampleRate = %d, want %d", got.SampleRate, DefaultSampleRate)
			}
			want := DefaultSampleRate / 2
			if d := got.Len() - want; d < -200 || d > tc.tolerance {
				t.Errorf("Len = %d, want about %d", got.Len(), want)
			}
			assertEmptyDir(t, dir)
		})
	}
}

func TestLoader_DecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  Source
	}{
		{"garbage", FromBytes([]byte("definitely not audio at all"), "x.wav")},
		{"empty bytes", FromBytes([]byte{}, "x.wav")},
		{"nil source", Source{}},
		{"truncated wav", FromBytes([]byte("RIFF\x10\x00\x00\x00WAVEfmt "), "x.wav")},
		{"webm without ffmpeg", FromBytes([]byte{0x1A, 0x45, 0xDF, 0xA3, 0, 0, 0, 0}, "x.webm")},
		{"truncated ogg", FromBytes(padded("OggS", 100), "x.ogg")},
		{"truncated flac", FromBytes(padded("fLaC", 100), "x.flac")},
		{"truncated mp3", FromBytes(padded("ID3", 100), "x.mp3")},
		{"truncated riff", FromBytes(padded("RIFF", 100), "x.wav")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			_, err := NewLoader(WithTempDir(dir)).Load(context.Background(), tc.src)
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("err = %v, want ErrDecode", err)
			}
			assertEmptyDir(t, dir)
		})
	}
}

func TestLoader_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := t.TempDir()
	_, err := NewLoader(WithTempDir(dir)).Load(ctx, FromBytes(sineWAV(t, 16000, 1, 10), ""))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	assertEmptyDir(t, dir)
}

func TestLoader_TranscodeFallback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var calls int
	l := NewLoader(WithTempDir(dir))
	l.transcode = func(_ context.Context, in, out string, rate int) error {
		calls++
		if rate != DefaultSampleRate {
			t.Errorf("transcode rate = %d, want %d", rate, DefaultSampleRate)
		}
		if _, err := os.Stat(in); err != nil {
			t.Errorf("transcode input missing: %v", err)
		}
		return os.WriteFile(out, sineWAV(t, rate, 1, 320), 0o600)
	}

	webm := []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01, 0x02, 0x03, 0x04}
	got, err := l.Load(context.Background(), FromBytes(webm, "rec.webm"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if calls != 1 {
		t.Errorf("transcode calls = %d, want 1", calls)
	}
	if got.Len() != 320 {
		t.Errorf("Len = %d, want 320", got.Len())
	}
	assertEmptyDir(t, dir)
}

func TestLoader_TranscodeFailureIsDecodeError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := NewLoader(WithTempDir(dir))
	l.transcode = func(context.Context, string, string, int) error {
		return errors.New("ffmpeg exploded")
	}
	_, err := l.Load(context.Background(), FromBytes([]byte("\x00\x00\x00\x20ftypM4A "), "a.m4a"))
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	assertEmptyDir(t, dir)
}
