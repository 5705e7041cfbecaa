// Package app wires all scribe subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject implementations via functional options (WithStore,
// WithHistory, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/scribe/internal/config"
	"github.com/MrWong99/scribe/internal/health"
	"github.com/MrWong99/scribe/internal/history"
	"github.com/MrWong99/scribe/internal/history/postgres"
	"github.com/MrWong99/scribe/internal/observe"
	"github.com/MrWong99/scribe/internal/pipeline"
	"github.com/MrWong99/scribe/internal/resilience"
	"github.com/MrWong99/scribe/internal/server"
	"github.com/MrWong99/scribe/internal/summarize"
	"github.com/MrWong99/scribe/pkg/audio"
	"github.com/MrWong99/scribe/pkg/provider/summarizer"
	"github.com/MrWong99/scribe/pkg/provider/transcriber"
	"github.com/MrWong99/scribe/pkg/storage"
	"github.com/MrWong99/scribe/pkg/storage/supabase"
)

// Providers holds the provider instances built by main.go via the config
// registry. Fallback slices are index-aligned with the corresponding
// config.ProvidersConfig fallback entries. A nil Summarizer disables
// summarisation.
type Providers struct {
	Transcriber          transcriber.Provider
	TranscriberFallbacks []transcriber.Provider
	Summarizer           summarizer.Provider
	SummarizerFallbacks  []summarizer.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	level          *slog.LevelVar
	metrics        *observe.Metrics
	metricsHandler http.Handler
	watcher        *config.Watcher
	configPath     string

	store       storage.Store
	history     history.Store
	transcriber *resilience.TranscriberFallback
	summarizer  summarizer.Provider
	pipeline    *pipeline.Pipeline
	server      *server.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects an object store instead of creating a Supabase client.
func WithStore(s storage.Store) Option {
	return func(a *App) { a.store = s }
}

// WithHistory injects a transcript history store instead of creating one
// from config.
func WithHistory(h history.Store) Option {
	return func(a *App) { a.history = h }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler sets the handler mounted at /metrics. Defaults to
// [promhttp.Handler].
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets config reloads change the log level of the handler
// built around v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithConfigWatch makes Run poll path and apply changes via [App.Reload].
func WithConfigWatch(path string) Option {
	return func(a *App) { a.configPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Transcriber == nil {
		return nil, errors.New("app: a transcriber provider is required")
	}
	if n, want := len(providers.TranscriberFallbacks), len(cfg.Providers.TranscriberFallbacks); n != want {
		return nil, fmt.Errorf("app: got %d transcriber fallbacks, config declares %d", n, want)
	}
	if n, want := len(providers.SummarizerFallbacks), len(cfg.Providers.SummarizerFallbacks); n != want {
		return nil, fmt.Errorf("app: got %d summarizer fallbacks, config declares %d", n, want)
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}
	a.closeProviders()

	// ── 1. Object storage ────────────────────────────────────────────────
	if err := a.initStorage(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Transcript history ────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 3. Providers behind circuit breakers ─────────────────────────────
	a.initProviders()

	// ── 4. Transcription pipeline ────────────────────────────────────────
	loader := audio.NewLoader(
		audio.WithFFmpeg(cfg.Pipeline.FFmpegPath),
		audio.WithTempDir(cfg.Pipeline.TempDir),
	)
	a.pipeline = pipeline.New(a.transcriber,
		pipeline.WithSegmentLength(cfg.Pipeline.SegmentLength),
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithLoader(loader),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithProviderName(cfg.Providers.Transcriber.Label()),
	)

	// ── 5. HTTP server ───────────────────────────────────────────────────
	a.initServer()

	// ── 6. Config watcher ────────────────────────────────────────────────
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.Reload)
		if err != nil {
			a.runClosers()
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
		a.watcher = w
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// closeProviders registers Close for every provider that holds resources.
func (a *App) closeProviders() {
	add := func(v any) {
		if c, ok := v.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}
	add(a.providers.Transcriber)
	for _, p := range a.providers.TranscriberFallbacks {
		add(p)
	}
	add(a.providers.Summarizer)
	for _, p := range a.providers.SummarizerFallbacks {
		add(p)
	}
}

// initStorage creates the Supabase client unless one was injected or storage
// is not configured.
func (a *App) initStorage() error {
	if a.store != nil || a.cfg.Storage.URL == "" {
		return nil
	}
	var opts []supabase.Option
	if n := a.cfg.Storage.MaxSizeBytes; n > 0 {
		opts = append(opts, supabase.WithMaxSize(n))
	}
	c, err := supabase.New(a.cfg.Storage.URL, a.cfg.Storage.APIKey, opts...)
	if err != nil {
		return err
	}
	a.store = c
	return nil
}

// initHistory selects PostgreSQL when a DSN is set, an in-process ring when
// a memory capacity is set, and no history otherwise.
func (a *App) initHistory(ctx context.Context) error {
	if a.history != nil {
		return nil
	}
	switch hc := a.cfg.History; {
	case hc.PostgresDSN != "":
		store, err := postgres.NewStore(ctx, hc.PostgresDSN)
		if err != nil {
			return err
		}
		a.history = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		slog.Info("transcript history enabled", "backend", "postgres")
	case hc.MemoryCapacity > 0:
		a.history = history.NewMemory(hc.MemoryCapacity)
		slog.Info("transcript history enabled", "backend", "memory", "capacity", hc.MemoryCapacity)
	default:
		a.history = history.Noop{}
	}
	return nil
}

// initProviders puts the primary and fallback providers behind per-backend
// circuit breakers.
func (a *App) initProviders() {
	pc := a.cfg.Providers
	fb := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker state changed", "provider", name, "from", from, "to", to)
			},
		},
	}

	a.transcriber = resilience.NewTranscriberFallback(a.providers.Transcriber, pc.Transcriber.Label(), fb)
	for i, p := range a.providers.TranscriberFallbacks {
		a.transcriber.AddFallback(pc.TranscriberFallbacks[i].Label(), p)
	}

	if a.providers.Summarizer == nil {
		return
	}
	sf := resilience.NewSummarizerFallback(a.providers.Summarizer, pc.Summarizer.Label(), fb)
	for i, p := range a.providers.SummarizerFallbacks {
		sf.AddFallback(pc.SummarizerFallbacks[i].Label(), p)
	}

	sc := a.cfg.Summarize
	opts := []summarize.Option{
		summarize.WithConcurrency(sc.Concurrency),
		summarize.WithMetrics(a.metrics),
		summarize.WithProviderName(pc.Summarizer.Label()),
	}
	if sc.Window > 0 {
		opts = append(opts, summarize.WithWindow(sc.Window, sc.Overlap))
	}
	a.summarizer = summarize.New(sf, opts...)
}

func (a *App) initServer() {
	sc := a.cfg.Server
	opts := []server.Option{
		server.WithHistory(a.history),
		server.WithHealth(health.New(a.checkers()...)),
		server.WithMetrics(a.metrics),
		server.WithMetricsHandler(a.metricsHandler),
		server.WithStaticDir(sc.StaticDir),
		server.WithMaxUploadBytes(sc.MaxUploadBytes),
		server.WithCORSOrigins(sc.CORSOrigins...),
		server.WithDefaults(pipelineDefaults(a.cfg)),
		server.WithProviderName(a.cfg.Providers.Transcriber.Label()),
	}
	if a.store != nil {
		opts = append(opts, server.WithStore(a.store))
	}
	if a.summarizer != nil {
		opts = append(opts,
			server.WithSummarizer(a.summarizer),
			server.WithSummaryLength(summarizer.Length{
				Max: a.cfg.Summarize.MaxLength,
				Min: a.cfg.Summarize.MinLength,
			}.WithDefaults()),
		)
	}
	a.server = server.New(a.pipeline, opts...)
}

func pipelineDefaults(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		SegmentLength: cfg.Pipeline.SegmentLength,
		Workers:       cfg.Pipeline.Workers,
	}
}

// ─── Handler / Run ───────────────────────────────────────────────────────────

// Handler returns the HTTP handler serving the whole API.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Run listens on the configured address and serves until ctx is cancelled,
// then drains in-flight requests within the shutdown timeout. It returns
// ctx.Err() after a clean stop.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener. It closes ln.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// In-flight requests must outlive ctx to drain.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := a.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = config.DefaultShutdownTimeout
		}
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})
	if a.watcher != nil {
		g.Go(func() error {
			if err := a.watcher.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	slog.Info("app running", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Reload applies a changed configuration. Log level and pipeline defaults
// take effect immediately; every other change is logged as requiring a
// restart.
func (a *App) Reload(prev, next *config.Config) {
	d := config.Diff(prev, next)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.PipelineChanged {
		a.server.SetDefaults(pipelineDefaults(next))
		slog.Info("pipeline defaults changed",
			"segment_length", d.NewSegmentLength,
			"workers", d.NewWorkers,
		)
	}
	for _, section := range d.RestartRequired {
		slog.Warn("config change requires a restart to take effect", "section", section)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers releases what New acquired before it failed.
func (a *App) runClosers() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}
