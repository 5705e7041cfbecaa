package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
)

// ErrDecode is returned when input cannot be parsed as audio. It is fatal for
// the request and is never retried.
var ErrDecode = errors.New("audio: cannot decode input")

// errUnsupportedFormat marks inputs whose container is recognised (or not)
// but which no built-in decoder can read. The loader uses it to decide
// whether an ffmpeg transcode is worth attempting.
var errUnsupportedFormat = errors.New("unsupported container")

// Format identifies an audio container detected by [Sniff].
type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatFLAC    Format = "flac"
	FormatVorbis  Format = "ogg"
	FormatMP3     Format = "mp3"
	FormatWebM    Format = "webm"
	FormatMP4     Format = "mp4"
)

// resampleQuality is passed to beep.Resample. 4 is beep's recommended
// balance between speed and quality for speech.
const resampleQuality = 4

// streamBlock is the number of frames read from a beep stream per call.
const streamBlock = 4096

// Sniff inspects the leading bytes of an audio file and reports its
// container format.
func Sniff(head []byte) Format {
	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(head, []byte("fLaC")):
		return FormatFLAC
	case bytes.HasPrefix(head, []byte("OggS")):
		return FormatVorbis
	case bytes.HasPrefix(head, []byte("ID3")):
		return FormatMP3
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return FormatMP3
	case bytes.HasPrefix(head, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return FormatWebM
	case len(head) >= 8 && bytes.Equal(head[4:8], []byte("ftyp")):
		return FormatMP4
	}
	return FormatUnknown
}

// decodeFile decodes the audio file at path into a mono Buffer at
// sampleRate. It returns an error wrapping errUnsupportedFormat when the
// container has no built-in decoder. A decoder that panics on malformed
// input is reported as an ordinary decode error.
func decodeFile(path string, sampleRate int) (buf Buffer, err error) {
	format := FormatUnknown
	defer func() {
		if r := recover(); r != nil {
			buf, err = Buffer{}, fmt.Errorf("decode %s: decoder panicked: %v", format, r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return Buffer{}, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 12)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return Buffer{}, errors.New("empty input")
		}
		return Buffer{}, fmt.Errorf("read header: %w", err)
	}
	format = Sniff(head[:n])
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Buffer{}, fmt.Errorf("rewind: %w", err)
	}

	var (
		stream beep.StreamSeekCloser
		bf     beep.Format
	)
	switch format {
	case FormatWAV:
		stream, bf, err = wav.Decode(f)
	case FormatFLAC:
		stream, bf, err = flac.Decode(f)
	case FormatVorbis:
		stream, bf, err = vorbis.Decode(f)
	case FormatMP3:
		stream, bf, err = mp3.Decode(f)
	default:
		return Buffer{}, fmt.Errorf("%w: %q", errUnsupportedFormat, string(format))
	}
	if err != nil {
		return Buffer{}, fmt.Errorf("decode %s: %w", format, err)
	}
	defer stream.Close()

	return readStream(stream, bf, sampleRate)
}

// readStream drains s, downmixing to mono and resampling to sampleRate.
func readStream(s beep.Streamer, bf beep.Format, sampleRate int) (Buffer, error) {
	if bf.SampleRate <= 0 {
		return Buffer{}, errors.New("stream reports no sample rate")
	}
	var src beep.Streamer = s
	if int(bf.SampleRate) != sampleRate {
		src = beep.Resample(resampleQuality, bf.SampleRate, beep.SampleRate(sampleRate), s)
	}

	mono := bf.NumChannels == 1
	block := make([][2]float64, streamBlock)
	var samples []int16
	for {
		n, ok := src.Stream(block)
		for i := range n {
			v := block[i][0]
			if !mono {
				v = (block[i][0] + block[i][1]) / 2
			}
			samples = append(samples, floatToInt16(v))
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return Buffer{}, fmt.Errorf("stream: %w", err)
	}
	return Buffer{Samples: samples, SampleRate: sampleRate}, nil
}

// floatToInt16 converts a sample in [-1, 1] to int16, clipping out-of-range
// values.
func floatToInt16(v float64) int16 {
	s := math.Round(v * 32768)
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, s)))
}
