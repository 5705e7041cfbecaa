package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Source describes where a Loader reads audio from. Construct one with
// [FromBytes], [FromReader] or [FromFile].
type Source struct {
	name string
	data []byte
	r    io.Reader
	path string
}

// FromBytes returns a Source backed by an in-memory byte slice. name is an
// optional original filename; only its extension is used, as a hint for the
// temp file.
func FromBytes(b []byte, name string) Source {
	return Source{name: name, data: b}
}

// FromReader returns a Source that is drained once when loaded.
func FromReader(r io.Reader, name string) Source {
	return Source{name: name, r: r}
}

// FromFile returns a Source that decodes an existing file in place. The file
// is never removed by the Loader.
func FromFile(path string) Source {
	return Source{name: filepath.Base(path), path: path}
}

// Name returns the original filename of the source, if known.
func (s Source) Name() string { return s.name }

// Loader decodes audio sources into mono [Buffer]s at a fixed sample rate.
//
// In-memory and streamed sources are written to a private temporary file
// first, because the container decoders need random access. That file is
// removed on every exit path. A Loader is safe for concurrent use.
type Loader struct {
	sampleRate int
	tempDir    string
	ffmpegPath string
	transcode  transcodeFunc
}

// LoaderOption configures a [Loader].
type LoaderOption func(*Loader)

// WithSampleRate overrides the output sample rate (default [DefaultSampleRate]).
func WithSampleRate(hz int) LoaderOption {
	return func(l *Loader) {
		if hz > 0 {
			l.sampleRate = hz
		}
	}
}

// WithTempDir sets the directory used for temporary files. Empty means
// [os.TempDir].
func WithTempDir(dir string) LoaderOption {
	return func(l *Loader) { l.tempDir = dir }
}

// WithFFmpeg enables transcoding of containers the built-in decoders cannot
// read (WebM, MP4/M4A) through the ffmpeg binary at path.
func WithFFmpeg(path string) LoaderOption {
	return func(l *Loader) { l.ffmpegPath = path }
}

// NewLoader returns a Loader with the given options applied.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{sampleRate: DefaultSampleRate}
	for _, o := range opts {
		o(l)
	}
	if l.ffmpegPath != "" && l.transcode == nil {
		l.transcode = ffmpegTranscode(l.ffmpegPath)
	}
	return l
}

// SampleRate returns the rate of Buffers produced by l.
func (l *Loader) SampleRate() int { return l.sampleRate }

// Load decodes src. Any failure to interpret the input as audio is returned
// wrapped in [ErrDecode].
func (l *Loader) Load(ctx context.Context, src Source) (Buffer, error) {
	if err := ctx.Err(); err != nil {
		return Buffer{}, err
	}

	path := src.path
	if path == "" {
		tmp, err := l.materialise(src)
		if err != nil {
			return Buffer{}, err
		}
		defer os.Remove(tmp)
		path = tmp
	}

	buf, err := decodeFile(path, l.sampleRate)
	if errors.Is(err, errUnsupportedFormat) && l.transcode != nil {
		buf, err = l.loadTranscoded(ctx, path)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Buffer{}, ctxErr
		}
		return Buffer{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if buf.Len() == 0 {
		return Buffer{}, fmt.Errorf("%w: no samples", ErrDecode)
	}
	return buf, nil
}

// materialise copies an in-memory or streamed source into a temp file and
// returns its path. The caller owns removal.
func (l *Loader) materialise(src Source) (path string, err error) {
	if src.data == nil && src.r == nil {
		return "", fmt.Errorf("%w: empty source", ErrDecode)
	}
	f, err := os.CreateTemp(l.tempDir, "scribe-*"+filepath.Ext(src.name))
	if err != nil {
		return "", fmt.Errorf("audio: create temp file: %w", err)
	}
	defer func() {
		cerr := f.Close()
		if err == nil && cerr != nil {
			err = fmt.Errorf("audio: close temp file: %w", cerr)
		}
		if err != nil {
			os.Remove(f.Name())
		}
	}()

	if src.data != nil {
		_, err = f.Write(src.data)
	} else {
		_, err = io.Copy(f, src.r)
	}
	if err != nil {
		return "", fmt.Errorf("audio: write temp file: %w", err)
	}
	return f.Name(), nil
}

func (l *Loader) loadTranscoded(ctx context.Context, path string) (Buffer, error) {
	out, err := os.CreateTemp(l.tempDir, "scribe-*.wav")
	if err != nil {
		return Buffer{}, fmt.Errorf("create transcode target: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	if err := l.transcode(ctx, path, outPath, l.sampleRate); err != nil {
		return Buffer{}, err
	}
	return decodeFile(outPath, l.sampleRate)
}
