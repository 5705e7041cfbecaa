// Package server exposes the transcription pipeline over HTTP.
//
// Routes:
//
//	POST /api/transcribe           multipart "file" field or raw audio body
//	POST /api/transcribe/storage   JSON {bucket, key}; audio is pulled from the object store
//	POST /api/summarize            JSON {text, max_length, min_length}
//	GET  /api/summarizers          available summarisation models
//	GET  /api/files/{bucket}/{key...}
//	GET  /api/transcripts          recent transcripts, ?limit=N
//	GET  /api/transcripts/{id}
//	GET  /healthz, /readyz, /metrics
//	GET  /                         static bundle with index.html fallback
package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/MrWong99/scribe/internal/health"
	"github.com/MrWong99/scribe/internal/history"
	"github.com/MrWong99/scribe/internal/observe"
	"github.com/MrWong99/scribe/internal/pipeline"
	"github.com/MrWong99/scribe/pkg/audio"
	"github.com/MrWong99/scribe/pkg/provider/summarizer"
	"github.com/MrWong99/scribe/pkg/storage"
)

const (
	// DefaultMaxUploadBytes caps upload bodies when no limit is configured.
	DefaultMaxUploadBytes = 200 << 20

	// DefaultMaxWorkers bounds the per-request workers override.
	DefaultMaxWorkers = 64

	// maxSegmentLength bounds the per-request segment_length override.
	maxSegmentLength = 10 * time.Minute

	// maxJSONBytes caps JSON request bodies.
	maxJSONBytes = 4 << 20
)

// Transcriber turns an audio source into a merged transcript.
// [*pipeline.Pipeline] implements it.
type Transcriber interface {
	Transcribe(ctx context.Context, src audio.Source, opts pipeline.Options) (pipeline.MergedTranscript, error)
}

var _ Transcriber = (*pipeline.Pipeline)(nil)

// Option configures a [Server].
type Option func(*Server)

// WithSummarizer enables summarisation endpoints and ?summarize=true.
func WithSummarizer(s summarizer.Provider) Option {
	return func(srv *Server) { srv.summarizer = s }
}

// WithSummaryLength sets the summary length used when a request gives none.
func WithSummaryLength(l summarizer.Length) Option {
	return func(srv *Server) { srv.summaryLength = l.WithDefaults() }
}

// WithStore enables the object store endpoints.
func WithStore(s storage.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithHistory records finished transcripts and enables /api/transcripts.
func WithHistory(h history.Store) Option {
	return func(srv *Server) {
		if h != nil {
			srv.history = h
		}
	}
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(srv *Server) { srv.health = h }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(srv *Server) { srv.metricsHandler = h }
}

// WithMetrics sets the metrics used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(srv *Server) {
		if m != nil {
			srv.metrics = m
		}
	}
}

// WithStaticDir serves a single-page app bundle from dir.
func WithStaticDir(dir string) Option {
	return func(srv *Server) { srv.staticDir = dir }
}

// WithMaxUploadBytes caps upload request bodies.
func WithMaxUploadBytes(n int64) Option {
	return func(srv *Server) {
		if n > 0 {
			srv.maxUpload = n
		}
	}
}

// WithCORSOrigins allows cross-origin requests from origins. "*" allows all.
func WithCORSOrigins(origins ...string) Option {
	return func(srv *Server) { srv.corsOrigins = origins }
}

// WithDefaults sets the pipeline options applied when a request gives none.
func WithDefaults(opts pipeline.Options) Option {
	return func(srv *Server) { srv.defaults.Store(&opts) }
}

// WithProviderName labels recorded history entries.
func WithProviderName(name string) Option {
	return func(srv *Server) { srv.providerName = name }
}

// Server is the HTTP front end. Create one with [New]; it is safe for
// concurrent use.
type Server struct {
	transcriber   Transcriber
	summarizer    summarizer.Provider
	summaryLength summarizer.Length
	store         storage.Store
	history       history.Store
	health        *health.Handler

	metrics        *observe.Metrics
	metricsHandler http.Handler

	providerName string
	staticDir    string
	maxUpload    int64
	maxWorkers   int
	corsOrigins  []string

	defaults atomic.Pointer[pipeline.Options]
}

// New returns a Server that transcribes with t.
func New(t Transcriber, opts ...Option) *Server {
	s := &Server{
		transcriber:   t,
		summaryLength: summarizer.DefaultLength(),
		history:       history.Noop{},
		maxUpload:     DefaultMaxUploadBytes,
		maxWorkers:    DefaultMaxWorkers,
	}
	s.defaults.Store(&pipeline.Options{})
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// SetDefaults replaces the pipeline defaults for subsequent requests.
func (s *Server) SetDefaults(opts pipeline.Options) {
	s.defaults.Store(&opts)
}

// Defaults returns the current pipeline defaults.
func (s *Server) Defaults() pipeline.Options {
	return *s.defaults.Load()
}

// Handler returns the fully wrapped route tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /api/transcribe/storage", s.handleTranscribeStorage)
	mux.HandleFunc("POST /api/summarize", s.handleSummarize)
	mux.HandleFunc("GET /api/summarizers", s.handleSummarizers)
	mux.HandleFunc("GET /api/files/{bucket}/{key...}", s.handleFile)
	mux.HandleFunc("GET /api/transcripts", s.handleTranscripts)
	mux.HandleFunc("GET /api/transcripts/{id}", s.handleTranscript)

	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	if s.staticDir != "" {
		mux.Handle("GET /", spaHandler(s.staticDir))
	}

	return observe.Middleware(s.metrics)(cors(s.corsOrigins)(mux))
}
