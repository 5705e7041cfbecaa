package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/scribe/pkg/audio"
	"github.com/MrWong99/scribe/pkg/provider/transcriber"
)

// TranscriberFallback implements [transcriber.Provider] with failover across
// several backends. Each backend has its own circuit breaker, shared by every
// session.
type TranscriberFallback struct {
	group *FallbackGroup[transcriber.Provider]
}

var _ transcriber.Provider = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred backend.
func NewTranscriberFallback(primary transcriber.Provider, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend. Must not be called once sessions
// are in use.
func (f *TranscriberFallback) AddFallback(name string, p transcriber.Provider) {
	f.group.AddFallback(name, p)
}

// Names returns the backend names in try order.
func (f *TranscriberFallback) Names() []string { return f.group.Names() }

// States returns the breaker state of every backend.
func (f *TranscriberFallback) States() map[string]State { return f.group.States() }

// NewSession opens a session on the first healthy backend. Sessions on the
// remaining backends are opened lazily, the first time the returned session
// has to fall back to them.
func (f *TranscriberFallback) NewSession(ctx context.Context) (transcriber.Session, error) {
	s := &fallbackSession{group: f.group, open: make(map[string]transcriber.Session)}
	_, err := ExecuteWithResult(ctx, f.group, func(name string, p transcriber.Provider) (struct{}, error) {
		_, err := s.session(ctx, name, p)
		return struct{}{}, err
	})
	if err != nil {
		return nil, fmt.Errorf("resilience: open transcriber session: %w", err)
	}
	return s, nil
}

// fallbackSession is owned by one worker and holds at most one backend
// session per entry.
type fallbackSession struct {
	group  *FallbackGroup[transcriber.Provider]
	open   map[string]transcriber.Session
	closed bool
}

func (s *fallbackSession) session(ctx context.Context, name string, p transcriber.Provider) (transcriber.Session, error) {
	if sess, ok := s.open[name]; ok {
		return sess, nil
	}
	sess, err := p.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	s.open[name] = sess
	return sess, nil
}

// Transcribe tries each backend in order. A backend session whose call fails
// is closed and reopened on its next use.
func (s *fallbackSession) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	if s.closed {
		return "", transcriber.ErrSessionClosed
	}
	return ExecuteWithResult(ctx, s.group, func(name string, p transcriber.Provider) (string, error) {
		sess, err := s.session(ctx, name, p)
		if err != nil {
			return "", err
		}
		text, err := sess.Transcribe(ctx, buf)
		if err != nil && ctx.Err() == nil {
			_ = sess.Close()
			delete(s.open, name)
		}
		return text, err
	})
}

func (s *fallbackSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for name, sess := range s.open {
		if err := sess.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	clear(s.open)
	return errors.Join(errs...)
}
