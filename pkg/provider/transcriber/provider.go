// Package transcriber defines the Provider interface for batch speech
// recognition backends.
//
// A transcriber turns one [audio.Buffer] into text. The central abstraction is
// Session: a worker opens its own session through [Provider.NewSession] and
// uses it for every segment it processes. Sessions own whatever per-caller
// state a backend needs (an inference context, a websocket, a temp directory)
// and are never shared between goroutines. The pipeline opens one session per
// worker and reopens it if a call panics.
//
// Providers themselves must be safe for concurrent use.
package transcriber

import (
	"context"
	"errors"

	"github.com/MrWong99/scribe/pkg/audio"
)

// ErrSessionClosed is returned by [Session.Transcribe] after Close.
var ErrSessionClosed = errors.New("transcriber: session is closed")

// Session is a single caller's handle on a transcription backend. It is not
// safe for concurrent use.
//
// Callers must call Close when the session is no longer needed. Calling Close
// more than once is safe and returns nil.
type Session interface {
	// Transcribe returns the recognised text of buf. An empty string with a nil
	// error means no speech was detected, which is different from failure.
	Transcribe(ctx context.Context, buf audio.Buffer) (string, error)

	// Close releases all resources held by the session.
	Close() error
}

// Provider is the abstraction over any transcription backend.
type Provider interface {
	// NewSession opens a session ready to accept audio immediately.
	//
	// Returns an error if the backend cannot be reached or the configuration is
	// unusable. The caller owns the returned Session.
	NewSession(ctx context.Context) (Session, error)
}

// Func adapts a stateless transcription function to [Provider]. Every session
// returned by a Func provider calls the function directly.
type Func func(ctx context.Context, buf audio.Buffer) (string, error)

// NewSession implements [Provider].
func (f Func) NewSession(context.Context) (Session, error) {
	return &funcSession{fn: f}, nil
}

type funcSession struct {
	fn     Func
	closed bool
}

func (s *funcSession) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	if s.closed {
		return "", ErrSessionClosed
	}
	return s.fn(ctx, buf)
}

func (s *funcSession) Close() error {
	s.closed = true
	return nil
}

var _ Provider = Func(nil)
