// Package deepgram provides a Deepgram-backed transcriber using the Deepgram
// streaming WebSocket API.
//
// Each session holds one websocket connection. A segment is streamed as
// binary linear16 frames followed by a Finalize control message; the finals
// Deepgram returns up to and including the one marked from_finalize make up
// the segment's text. The connection is reused for later segments and redialled
// lazily after a transport error.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/scribe/pkg/audio"
	"github.com/MrWong99/scribe/pkg/provider/transcriber"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint      = "wss://api.deepgram.com/v1/listen"
	defaultModel          = "nova-3"
	defaultLanguage       = "en"
	defaultSegmentTimeout = 60 * time.Second

	// frameBytes is the size of each binary audio frame (about 250 ms at 16 kHz).
	frameBytes = 8000
)

var (
	_ transcriber.Provider = (*Provider)(nil)
	_ transcriber.Session  = (*session)(nil)
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the websocket endpoint. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithSegmentTimeout bounds how long Transcribe waits for Deepgram to
// finalise one segment. Defaults to 60 s.
func WithSegmentTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.segmentTimeout = d
		}
	}
}

// Provider implements transcriber.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey         string
	model          string
	language       string
	endpoint       string
	segmentTimeout time.Duration
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:         apiKey,
		model:          defaultModel,
		language:       defaultLanguage,
		endpoint:       deepgramEndpoint,
		segmentTimeout: defaultSegmentTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// NewSession dials Deepgram and returns a session bound to the connection.
func (p *Provider) NewSession(ctx context.Context) (transcriber.Session, error) {
	s := &session{p: p}
	if err := s.dial(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for mono linear16
// audio at sampleRate.
func (p *Provider) buildURL(sampleRate int) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type session struct {
	p      *Provider
	conn   *websocket.Conn
	closed bool
}

func (s *session) dial(ctx context.Context) error {
	wsURL, err := s.p.buildURL(audio.DefaultSampleRate)
	if err != nil {
		return fmt.Errorf("deepgram: build URL: %w", err)
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+s.p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return fmt.Errorf("deepgram: dial: %w", err)
	}
	s.conn = conn
	return nil
}

// Transcribe streams buf and waits for the finalised transcript.
func (s *session) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	if s.closed {
		return "", transcriber.ErrSessionClosed
	}
	if buf.SampleRate != audio.DefaultSampleRate {
		return "", fmt.Errorf("deepgram: sample rate %d Hz unsupported, need %d", buf.SampleRate, audio.DefaultSampleRate)
	}
	if s.conn == nil {
		if err := s.dial(ctx); err != nil {
			return "", err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.p.segmentTimeout)
	defer cancel()

	text, err := s.roundTrip(ctx, buf.PCM())
	if err != nil {
		// The stream state is unknown after a failure; start fresh next time.
		s.conn.Close(websocket.StatusGoingAway, "segment failed")
		s.conn = nil
		return "", err
	}
	return text, nil
}

func (s *session) roundTrip(ctx context.Context, pcm []byte) (string, error) {
	for off := 0; off < len(pcm); off += frameBytes {
		end := min(off+frameBytes, len(pcm))
		if err := s.conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return "", fmt.Errorf("deepgram: write audio: %w", err)
		}
	}
	if err := s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Finalize"}`)); err != nil {
		return "", fmt.Errorf("deepgram: write finalize: %w", err)
	}

	var parts []string
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return "", fmt.Errorf("deepgram: read: %w", err)
		}
		var resp deepgramResponse
		if err := json.Unmarshal(msg, &resp); err != nil || resp.Type != "Results" {
			continue
		}
		if resp.IsFinal && len(resp.Channel.Alternatives) > 0 {
			if t := strings.TrimSpace(resp.Channel.Alternatives[0].Transcript); t != "" {
				parts = append(parts, t)
			}
		}
		if resp.FromFinalize {
			return strings.Join(parts, " "), nil
		}
	}
}

// Close sends CloseStream and closes the connection. Safe to call twice.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
	return s.conn.Close(websocket.StatusNormalClosure, "session closed")
}
