// Package mock provides test doubles for the transcriber package interfaces.
//
// Provider hands out a fresh Session on every NewSession call. All sessions
// share the provider's response configuration and report their calls back to
// the provider, so a test can inspect the total number of Transcribe calls
// across every worker.
//
// Example:
//
//	p := &mock.Provider{
//	    TranscribeFunc: func(_ context.Context, buf audio.Buffer) (string, error) {
//	        return fmt.Sprintf("w%d", buf.Samples[0]), nil
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/scribe/pkg/audio"
	"github.com/MrWong99/scribe/pkg/provider/transcriber"
)

// TranscribeCall records a single invocation of Session.Transcribe.
type TranscribeCall struct {
	// Session is the 1-based sequence number of the session that served the call.
	Session int
	// Buf is the buffer passed to Transcribe.
	Buf audio.Buffer
}

// Provider is a mock implementation of transcriber.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned by every Transcribe call when TranscribeFunc is nil.
	Text string

	// TranscribeErr, if non-nil and TranscribeFunc is nil, is returned by every
	// Transcribe call.
	TranscribeErr error

	// TranscribeFunc, if set, computes the result of each Transcribe call.
	TranscribeFunc func(ctx context.Context, buf audio.Buffer) (string, error)

	// NewSessionErr, if non-nil, is returned by NewSession.
	NewSessionErr error

	// NewSessionCalls is the number of times NewSession was called.
	NewSessionCalls int

	// TranscribeCalls records every Transcribe call across all sessions.
	TranscribeCalls []TranscribeCall

	// CloseCalls is the total number of Session.Close calls.
	CloseCalls int
}

// NewSession records the call and returns a new Session or NewSessionErr.
func (p *Provider) NewSession(_ context.Context) (transcriber.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.NewSessionCalls++
	if p.NewSessionErr != nil {
		return nil, p.NewSessionErr
	}
	return &Session{provider: p, id: p.NewSessionCalls}, nil
}

// Calls returns a copy of the recorded Transcribe calls. Thread-safe.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.TranscribeCalls))
	copy(out, p.TranscribeCalls)
	return out
}

// Sessions returns the number of sessions opened so far. Thread-safe.
func (p *Provider) Sessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.NewSessionCalls
}

// Closed returns the number of Close calls across all sessions. Thread-safe.
func (p *Provider) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CloseCalls
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.NewSessionCalls = 0
	p.TranscribeCalls = nil
	p.CloseCalls = 0
}

// Ensure Provider implements transcriber.Provider at compile time.
var _ transcriber.Provider = (*Provider)(nil)

// Session is a mock implementation of transcriber.Session.
type Session struct {
	provider *Provider
	id       int
	closed   bool
}

// Transcribe records the call and returns the provider's configured
// response. Calls run outside the provider lock so a TranscribeFunc may block.
func (s *Session) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	if s.closed {
		return "", transcriber.ErrSessionClosed
	}
	p := s.provider
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Session: s.id, Buf: buf})
	fn, text, err := p.TranscribeFunc, p.Text, p.TranscribeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, buf)
	}
	return text, err
}

// Close records the call. Closing twice only counts once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.provider.mu.Lock()
	s.provider.CloseCalls++
	s.provider.mu.Unlock()
	return nil
}

// ID returns the session's 1-based sequence number.
func (s *Session) ID() int { return s.id }

// Ensure Session implements transcriber.Session at compile time.
var _ transcriber.Session = (*Session)(nil)
