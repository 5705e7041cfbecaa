// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MrWong99/scribe/pkg/audio"
	"github.com/MrWong99/scribe/pkg/provider/transcriber"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that NativeProvider satisfies transcriber.Provider.
var _ transcriber.Provider = (*NativeProvider)(nil)

// NativeProvider implements transcriber.Provider using whisper.cpp Go
// bindings (CGO), eliminating HTTP overhead entirely. The model is loaded
// once at startup and shared across all sessions.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	threads  uint
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeThreads sets the number of CPU threads each inference context
// uses. Zero keeps the library default.
func WithNativeThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called after every session has
// been closed.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// NewSession creates a whisper.cpp context from the shared model. Contexts
// are not thread safe, so each session gets its own.
func (p *NativeProvider) NewSession(ctx context.Context) (transcriber.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "error", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}
	return &nativeSession{wctx: wctx}, nil
}

// nativeSession owns one whisper.cpp context.
type nativeSession struct {
	wctx   whisperlib.Context
	closed bool
}

// Transcribe runs inference over buf and returns the concatenated segment
// text. whisper.cpp does not observe ctx once Process has started; the
// context is only checked before the call.
func (s *nativeSession) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	if s.closed {
		return "", transcriber.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if buf.SampleRate != audio.DefaultSampleRate {
		return "", fmt.Errorf("whisper: sample rate %d Hz unsupported, need %d", buf.SampleRate, audio.DefaultSampleRate)
	}

	if err := s.wctx.Process(buf.Float32(), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := s.wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close marks the session closed. The bindings release context memory when
// the model is closed.
func (s *nativeSession) Close() error {
	s.closed = true
	return nil
}

// Compile-time assertion that nativeSession satisfies transcriber.Session.
var _ transcriber.Session = (*nativeSession)(nil)
